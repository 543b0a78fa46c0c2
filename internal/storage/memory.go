package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/simple-doc-converter/internal/sasurl"
)

// Memory is an in-process Store used by tests and the local smoke tools. It
// mirrors the service semantics the pipeline depends on: folder-scoped
// listings, ErrNotFound for missing objects, last-write-wins uploads.
type Memory struct {
	mu         sync.Mutex
	containers map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{containers: make(map[string]map[string][]byte)}
}

func contKey(loc sasurl.Location) string {
	return loc.Endpoint + "/" + loc.Container
}

func (m *Memory) List(_ context.Context, loc sasurl.Location, folder string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := loc.FolderPath(folder) + "/"
	var objs []ObjectInfo
	for path, data := range m.containers[contKey(loc)] {
		name := strings.TrimPrefix(path, prefix)
		if name == path || name == "" || strings.Contains(name, "/") {
			continue
		}
		objs = append(objs, ObjectInfo{Name: name, Size: int64(len(data))})
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Name < objs[j].Name })
	return objs, nil
}

func (m *Memory) Download(_ context.Context, loc sasurl.Location, folder, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.containers[contKey(loc)][loc.BlobPath(folder, name)]
	if !ok {
		return nil, fmt.Errorf("download %s/%s: %w", folder, name, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Upload(_ context.Context, loc sasurl.Location, folder, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := contKey(loc)
	if m.containers[key] == nil {
		m.containers[key] = make(map[string][]byte)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.containers[key][loc.BlobPath(folder, name)] = stored
	return nil
}

func (m *Memory) Delete(_ context.Context, loc sasurl.Location, folder, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := loc.BlobPath(folder, name)
	if _, ok := m.containers[contKey(loc)][path]; !ok {
		return fmt.Errorf("delete %s/%s: %w", folder, name, ErrNotFound)
	}
	delete(m.containers[contKey(loc)], path)
	return nil
}
