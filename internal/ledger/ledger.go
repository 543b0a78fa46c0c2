// Package ledger keeps the durable record of per-document conversion
// failures. The backing store is a flat CSV file with a header row so that
// operators can open it directly; rows are append-only and survive worker
// restarts.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-doc-converter/internal/job"
)

var header = []string{"timestamp", "filename", "file_size_bytes", "error_type", "error_message", "attempt_count"}

// Record is one failure entry. Records are never edited in place; an item
// that fails again on a later job appends a new row.
type Record struct {
	Timestamp time.Time
	Name      string
	Size      int64
	Kind      job.ErrorKind
	Message   string
	Attempts  int
}

// Filter narrows Query and Export results. Zero values match everything.
type Filter struct {
	Kind  job.ErrorKind // only this error type
	Name  string        // only filenames containing this substring
	Since time.Duration // only records younger than this
	Limit int           // at most this many, keeping the most recent
}

// Ledger serializes all access to one CSV file. The mutex is the single
// writer lock; readers take it too so a query never observes a half-written
// row.
type Ledger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func New(path string) *Ledger {
	return &Ledger{path: path, now: time.Now}
}

// Path returns the backing file location.
func (l *Ledger) Path() string { return l.path }

// Append writes one record. A zero timestamp is filled with the current time.
func (l *Ledger) Append(rec Record) error {
	return l.AppendAll([]Record{rec})
}

// AppendAll writes a batch of records under a single lock acquisition.
func (l *Ledger) AppendAll(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	for _, rec := range recs {
		if rec.Timestamp.IsZero() {
			rec.Timestamp = l.now()
		}
		if rec.Attempts == 0 {
			rec.Attempts = 1
		}
		if err := w.Write(rec.fields()); err != nil {
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}

// Query returns records matching the filter in file order, oldest first.
// A missing ledger file is an empty ledger.
func (l *Ledger) Query(f Filter) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs, err := l.read()
	if err != nil {
		return nil, err
	}
	return l.filter(recs, f), nil
}

// Summary aggregates the ledger for reporting.
type Summary struct {
	Total       int
	UniqueFiles int
	ByKind      map[job.ErrorKind]int
	Last24h     int
	Oldest      time.Time
	Newest      time.Time
}

func (l *Ledger) Summarize() (Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs, err := l.read()
	if err != nil {
		return Summary{}, err
	}

	s := Summary{ByKind: make(map[job.ErrorKind]int)}
	names := make(map[string]struct{})
	dayAgo := l.now().Add(-24 * time.Hour)
	for _, r := range recs {
		s.Total++
		names[r.Name] = struct{}{}
		s.ByKind[r.Kind]++
		if r.Timestamp.After(dayAgo) {
			s.Last24h++
		}
		if s.Oldest.IsZero() || r.Timestamp.Before(s.Oldest) {
			s.Oldest = r.Timestamp
		}
		if r.Timestamp.After(s.Newest) {
			s.Newest = r.Timestamp
		}
	}
	s.UniqueFiles = len(names)
	return s, nil
}

// Prune drops records older than the given age and reports how many were
// removed. The file is rewritten through a temp file and renamed into place
// so a crash never leaves a truncated ledger.
func (l *Ledger) Prune(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recs, err := l.read()
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	cutoff := l.now().Add(-olderThan)
	kept := recs[:0]
	for _, r := range recs {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(recs) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeAll(tmp, kept); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return 0, fmt.Errorf("replace ledger: %w", err)
	}
	return removed, nil
}

// Export writes the filtered ledger, header included, to w.
func (l *Ledger) Export(w io.Writer, f Filter) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs, err := l.read()
	if err != nil {
		return err
	}
	return writeAll(w, l.filter(recs, f))
}

func (l *Ledger) filter(recs []Record, f Filter) []Record {
	out := make([]Record, 0, len(recs))
	var since time.Time
	if f.Since > 0 {
		since = l.now().Add(-f.Since)
	}
	for _, r := range recs {
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if f.Name != "" && !strings.Contains(r.Name, f.Name) {
			continue
		}
		if !since.IsZero() && r.Timestamp.Before(since) {
			continue
		}
		out = append(out, r)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// read loads every well-formed row. Rows that fail to parse are skipped, not
// fatal; one corrupt line must not make the whole history unreadable.
func (l *Ledger) read() ([]Record, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var recs []Record
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == header[0] {
				continue
			}
		}
		rec, ok := parseRow(row)
		if ok {
			recs = append(recs, rec)
		}
	}
}

func (r Record) fields() []string {
	return []string{
		r.Timestamp.Format(time.RFC3339Nano),
		r.Name,
		strconv.FormatInt(r.Size, 10),
		string(r.Kind),
		r.Message,
		strconv.Itoa(r.Attempts),
	}
}

func parseRow(row []string) (Record, bool) {
	if len(row) < 6 {
		return Record{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		if ts, err = time.Parse(time.RFC3339, row[0]); err != nil {
			return Record{}, false
		}
	}
	size, err := strconv.ParseInt(row[2], 10, 64)
	if err != nil {
		return Record{}, false
	}
	attempts, err := strconv.Atoi(row[5])
	if err != nil {
		return Record{}, false
	}
	return Record{
		Timestamp: ts,
		Name:      row[1],
		Size:      size,
		Kind:      job.ErrorKind(row[3]),
		Message:   row[4],
		Attempts:  attempts,
	}, true
}

func writeAll(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range recs {
		if err := cw.Write(rec.fields()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
