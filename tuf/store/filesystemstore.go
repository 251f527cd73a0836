package store

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FilesystemStore is the Outbound Writer: it persists role metadata files
// under a single directory, writing each one to a temporary sibling and
// renaming it into place so that a reader (another process, or this one on
// its next invocation) never observes a partially written file. The
// teacher's equivalent, trustmanager's fileStore.Add, writes directly with
// ioutil.WriteFile; this upgrades that to the temp+rename pattern the
// concurrency model requires.
type FilesystemStore struct {
	baseDir   string
	extension string
}

// NewFilesystemStore returns a store rooted at baseDir, creating it if it
// does not already exist. Metadata file names are joined with extension
// (conventionally "json").
func NewFilesystemStore(baseDir, extension string) (*FilesystemStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating filesystem store directory")
	}
	return &FilesystemStore{baseDir: baseDir, extension: extension}, nil
}

func (s *FilesystemStore) pathFor(name string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.%s", name, s.extension))
}

// Fetch reads a previously stored metadata file, enforcing maxBytes the
// same way a remote Fetcher would, so loader code can treat local and
// remote sources identically.
func (s *FilesystemStore) Fetch(name string, maxBytes int64) ([]byte, error) {
	path := s.pathFor(name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(ErrMetaNotFound{Resource: name})
		}
		return nil, errors.Wrapf(err, "statting %s", path)
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if info.Size() > maxBytes {
		return nil, errors.WithStack(ErrMaliciousServer{Resource: name})
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return b, nil
}

// SetMeta atomically replaces name's stored bytes: write to a temp file in
// the same directory, fsync it, then rename over the target. The rename
// step is what makes a concurrent reader never see a half-written file. A
// delegated role name like "targets/releases" is stored at a matching
// nested path, so the parent directory is created first if this is the
// first file written under it.
func (s *FilesystemStore) SetMeta(name string, blob []byte) error {
	path := s.pathFor(name)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := ioutil.TempFile(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file for atomic write")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "syncing %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "renaming %s into place as %s", tmpPath, path)
	}
	return nil
}

// RemoveMeta deletes a single named metadata file, used to purge a role a
// recursive remove-role has orphaned. Removing an already-absent file is
// not an error, since the caller is asserting an end state ("this role no
// longer exists"), not performing a precondition check.
func (s *FilesystemStore) RemoveMeta(name string) error {
	if err := os.Remove(s.pathFor(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", name)
	}
	return nil
}

// RemoveAll deletes the entire store directory's contents, used when a
// caller wants to bootstrap a fresh repository from scratch.
func (s *FilesystemStore) RemoveAll() error {
	entries, err := ioutil.ReadDir(s.baseDir)
	if err != nil {
		return errors.Wrap(err, "listing filesystem store directory")
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.baseDir, e.Name())); err != nil {
			return errors.Wrapf(err, "removing %s", e.Name())
		}
	}
	return nil
}
