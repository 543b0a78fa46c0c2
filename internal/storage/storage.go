// Package storage defines the narrow object-store contract the conversion
// pipeline runs against, plus the production Azure blob binding and an
// in-memory implementation.
package storage

import (
	"context"
	"errors"

	"github.com/tendant/simple-doc-converter/internal/sasurl"
)

// Job folder names inside a resolved location. Every location uses the same
// four folders beneath its prefix.
const (
	FolderConfig    = "config"
	FolderFiles     = "files"
	FolderConverted = "converted"
	FolderStatus    = "job_status"
)

// ErrNotFound marks a blob or container that does not exist.
var ErrNotFound = errors.New("object not found")

// TransientError wraps failures worth retrying on a later poll: throttling,
// service errors, timeouts. The transport already retried before this
// surfaces.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a TransientError anywhere in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ObjectInfo describes one object directly inside a job folder.
type ObjectInfo struct {
	Name string
	Size int64
}

// Store is the storage capability. Implementations address objects by
// location, job folder and bare object name; nested paths never leak out.
type Store interface {
	List(ctx context.Context, loc sasurl.Location, folder string) ([]ObjectInfo, error)
	Download(ctx context.Context, loc sasurl.Location, folder, name string) ([]byte, error)
	Upload(ctx context.Context, loc sasurl.Location, folder, name string, data []byte) error
	Delete(ctx context.Context, loc sasurl.Location, folder, name string) error
}
