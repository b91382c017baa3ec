// Package paramstore is a thin client for the external, persistent
// key-value configuration store that supplies vehicle parameters. This
// system only ever reads one key, "CarParams", as an opaque blob; the store
// itself — how it is written, and by whom — is out of scope (§1).
package paramstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotSet is returned by Get when key has not been written yet.
var ErrNotSet = errors.New("paramstore: key not set")

// Store is the minimal read contract this system needs.
type Store interface {
	// Get returns the raw value for key, or ErrNotSet if it hasn't been
	// written yet.
	Get(key string) ([]byte, error)
}

// FileStore reads parameters from flat files in a directory, one file per
// key, matching the on-disk layout of the real configuration daemon this
// system treats as an external collaborator.
type FileStore struct {
	Dir string
}

// DefaultDir is where the configuration daemon is expected to publish
// parameters on the vehicle compute unit.
const DefaultDir = "/dev/shm/params/d"

// NewFileStore returns a Store rooted at dir. An empty dir uses DefaultDir.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{Dir: dir}
}

func (s *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotSet
		}
		return nil, fmt.Errorf("paramstore: read %s: %w", key, err)
	}
	return data, nil
}
