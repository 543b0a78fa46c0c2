// Package sasurl resolves SAS-style container URLs into storage locations.
//
// A location descriptor looks like
//
//	https://account.blob.core.windows.net/container/sub/folders?sv=...&sig=...
//
// The first path segment names the container root, every further segment
// becomes part of the working prefix, and the query string is the SAS token.
// Job folders (config/, files/, converted/, job_status/) always live beneath
// the prefix.
package sasurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMalformed marks descriptors that lack a usable container root.
var ErrMalformed = errors.New("malformed location")

// Location is an immutable reference to a working area inside one container.
type Location struct {
	Endpoint  string   // scheme://host of the storage account
	Container string   // container root, first path segment
	Prefix    []string // remaining path segments, never nil
	SAS       string   // raw query string, empty when the URL carried none
}

// Resolve parses a descriptor into a Location.
//
// All path segments after the container are kept as the prefix, including a
// trailing segment that happens to be named like the control folder. Folder
// paths are then built beneath that prefix, so a descriptor ending in
// ".../config" gets a second config/ level underneath. That matches how
// deployed containers are actually laid out and must not be normalized away.
func Resolve(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty descriptor", ErrMalformed)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Location{}, fmt.Errorf("%w: unsupported scheme %q in %s", ErrMalformed, u.Scheme, redact(raw))
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("%w: missing host in %s", ErrMalformed, redact(raw))
	}

	var segments []string
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return Location{}, fmt.Errorf("%w: missing container in %s", ErrMalformed, redact(raw))
	}

	prefix := make([]string, len(segments)-1)
	copy(prefix, segments[1:])

	return Location{
		Endpoint:  u.Scheme + "://" + u.Host,
		Container: segments[0],
		Prefix:    prefix,
		SAS:       u.RawQuery,
	}, nil
}

// FolderPath returns the blob path of a job folder beneath the prefix.
func (l Location) FolderPath(folder string) string {
	parts := make([]string, 0, len(l.Prefix)+1)
	parts = append(parts, l.Prefix...)
	parts = append(parts, folder)
	return strings.Join(parts, "/")
}

// BlobPath returns the full blob path of an object inside a job folder.
func (l Location) BlobPath(folder, name string) string {
	return l.FolderPath(folder) + "/" + name
}

// Redacted renders the location without its SAS token, safe for logs.
func (l Location) Redacted() string {
	parts := make([]string, 0, len(l.Prefix)+2)
	parts = append(parts, l.Endpoint, l.Container)
	parts = append(parts, l.Prefix...)
	return strings.Join(parts, "/")
}

// String is Redacted; a Location never prints its token.
func (l Location) String() string { return l.Redacted() }

// ValidateSAS reports whether the token carries the query parameters the
// storage service requires for authentication. A missing parameter usually
// means a truncated copy-paste; resolution still succeeds, callers decide
// whether to warn.
func (l Location) ValidateSAS() error {
	values, err := url.ParseQuery(l.SAS)
	if err != nil {
		return fmt.Errorf("parse sas token: %w", err)
	}
	var missing []string
	for _, p := range []string{"sv", "sig"} {
		if values.Get(p) == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("sas token for %s missing parameters: %s", l.Redacted(), strings.Join(missing, ", "))
	}
	return nil
}

func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
