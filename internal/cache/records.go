package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cairn/internal/core"
	"cairn/internal/index"
)

// ErrNotCached reports that the store holds no entry for the identity.
var ErrNotCached = errors.New("not in cache")

// RecordsStore persists fetched index records, one JSON file per package
// name. Writes go through a temporary file and rename so readers never see
// a partially written entry.
type RecordsStore struct {
	dir string
}

// NewRecordsStore creates a records store rooted at dir.
func NewRecordsStore(dir string) *RecordsStore {
	return &RecordsStore{dir: dir}
}

func (s *RecordsStore) path(pkg core.PackageName) string {
	return filepath.Join(s.dir, "index", pkg.Slug()+".json")
}

// Load returns the cached records for pkg. Returns ErrNotCached when no
// entry exists; any other failure means the entry is unreadable.
func (s *RecordsStore) Load(pkg core.PackageName) (index.IndexRecords, error) {
	data, err := os.ReadFile(s.path(pkg))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, err
	}
	return index.DecodeRecords(data)
}

// Store atomically replaces the cached records for pkg.
func (s *RecordsStore) Store(pkg core.PackageName, records index.IndexRecords) error {
	data, err := index.EncodeRecords(records)
	if err != nil {
		return err
	}

	path := s.path(pkg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".records-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return writeErr
		}
		return closeErr
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
