// Package flock provides an exclusively locked file handle used to stage
// downloaded artifacts and guard shared cache locations across processes.
package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Acquire when another holder owns the lock.
var ErrLocked = errors.New("file is locked by another process")

// retryInterval is how often AcquireWait re-attempts a contended lock.
const retryInterval = 50 * time.Millisecond

// FileLockGuard is an open file protected by an exclusive advisory lock.
// The lock is held until Close (or Discard) and is released on every exit
// path; the zero value is not usable.
type FileLockGuard struct {
	path string
	file *os.File

	mu     sync.Mutex
	closed bool
}

// Acquire opens path for reading and writing, creating it if needed, and
// takes an exclusive lock without blocking. Returns ErrLocked if another
// holder owns the lock.
func Acquire(path string) (*FileLockGuard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	return &FileLockGuard{path: path, file: file}, nil
}

// AcquireWait is like Acquire but waits for a contended lock to be released,
// polling until ctx is done.
func AcquireWait(ctx context.Context, path string) (*FileLockGuard, error) {
	for {
		guard, err := Acquire(path)
		if err == nil {
			return guard, nil
		}
		if !errors.Is(err, ErrLocked) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Path returns the locked file's path.
func (g *FileLockGuard) Path() string {
	return g.path
}

// File returns the underlying open file. The file remains valid until Close.
func (g *FileLockGuard) File() *os.File {
	return g.file
}

// Truncate resets the file to empty, rewinding the write offset. Used when
// reusing a scratch file left over from a failed download.
func (g *FileLockGuard) Truncate() error {
	if err := g.file.Truncate(0); err != nil {
		return err
	}
	_, err := g.file.Seek(0, 0)
	return err
}

// Close releases the lock and closes the file. Safe to call more than once.
func (g *FileLockGuard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true

	unlockErr := unix.Flock(int(g.file.Fd()), unix.LOCK_UN)
	closeErr := g.file.Close()
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", g.path, unlockErr)
	}
	return closeErr
}

// Discard releases the lock and removes the file. Used to drop partially
// written artifacts after a failed or cancelled download.
func (g *FileLockGuard) Discard() error {
	if err := g.Close(); err != nil {
		return err
	}
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
