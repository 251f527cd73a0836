// Package store implements the transport and filesystem layers the loader
// reads from and the editor writes to: a scheme-dispatched Fetcher for
// pulling role metadata, and an atomic FilesystemStore for emitting it.
package store

import "fmt"

// Fetcher retrieves one named metadata file, capping the response at
// maxBytes. Passing maxBytes <= 0 requests an implementation-defined
// default cap rather than an unbounded read — timestamp.json in particular
// is never size-pinned ahead of time, so a Fetcher must never trust the
// server to behave.
type Fetcher interface {
	Fetch(name string, maxBytes int64) ([]byte, error)
}

// Writer persists a named metadata file's bytes, removes a single named
// file (used to purge a role a recursive remove-role has orphaned), and
// removes the on-disk store entirely (used when bootstrapping a fresh
// repository over a stale one, or by test fixtures).
type Writer interface {
	SetMeta(name string, blob []byte) error
	RemoveMeta(name string) error
	RemoveAll() error
}

// ErrMetaNotFound is returned by a Fetcher when the named file does not
// exist at all (a 404, or a missing file on disk) as distinct from a read
// or transport failure.
type ErrMetaNotFound struct {
	Resource string
}

func (e ErrMetaNotFound) Error() string {
	return fmt.Sprintf("tuf: metadata not found: %s", e.Resource)
}

// ErrMaliciousServer indicates a Fetcher's remote peer attempted to send
// more data than the byte cap allowed for the request, a hallmark of an
// endless-data or decompression-bomb attack against an unpinned role like
// timestamp.json.
type ErrMaliciousServer struct {
	Resource string
}

func (e ErrMaliciousServer) Error() string {
	return fmt.Sprintf("tuf: server sent more data than permitted for %s", e.Resource)
}
