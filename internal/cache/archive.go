package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cairn/internal/core"
	"cairn/internal/flock"
)

// ArchiveStore manages downloaded package archives. Downloads are staged in
// an exclusively locked scratch file next to the final location and renamed
// into place only after a complete write, so a crash or cancellation never
// leaves a partial archive visible.
type ArchiveStore struct {
	dir string
}

// NewArchiveStore creates an archive store rooted at dir.
func NewArchiveStore(dir string) *ArchiveStore {
	return &ArchiveStore{dir: dir}
}

// FinalPath is where the completed archive for id lives.
func (s *ArchiveStore) FinalPath(id core.PackageId) string {
	return filepath.Join(s.dir, "dl", id.Tarball())
}

func (s *ArchiveStore) scratchPath(id core.PackageId) string {
	return s.FinalPath(id) + ".part"
}

// CreateScratch acquires the exclusively locked scratch file for id,
// waiting out any concurrent holder. The caller owns the returned guard.
func (s *ArchiveStore) CreateScratch(ctx context.Context, id core.PackageId) (*flock.FileLockGuard, error) {
	return flock.AcquireWait(ctx, s.scratchPath(id))
}

// Promote makes a completely written scratch file visible as the final
// archive and hands back a lock guard on the final location. The scratch
// guard is consumed: its lock is released once the final lock is held.
func (s *ArchiveStore) Promote(ctx context.Context, id core.PackageId, scratch *flock.FileLockGuard) (*flock.FileLockGuard, error) {
	if err := scratch.File().Sync(); err != nil {
		scratch.Discard()
		return nil, fmt.Errorf("failed to sync archive: %w", err)
	}

	// Rename is atomic: readers either see the previous archive or the
	// complete new one, never a partial write.
	if err := os.Rename(scratch.Path(), s.FinalPath(id)); err != nil {
		scratch.Discard()
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := scratch.Close(); err != nil {
		return nil, err
	}
	return flock.AcquireWait(ctx, s.FinalPath(id))
}

// Open returns a lock guard on the completed archive for id, or ErrNotCached
// when none exists.
func (s *ArchiveStore) Open(ctx context.Context, id core.PackageId) (*flock.FileLockGuard, error) {
	path := s.FinalPath(id)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotCached
	}

	guard, err := flock.AcquireWait(ctx, path)
	if err != nil {
		return nil, err
	}

	// The file may have been removed between the stat and the lock.
	info, err := guard.File().Stat()
	if err != nil || info.Size() == 0 {
		guard.Close()
		return nil, ErrNotCached
	}
	return guard, nil
}
