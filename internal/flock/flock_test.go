package flock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.tar.zst")

	guard, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer guard.Close()

	if _, err := Acquire(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire should return ErrLocked, got %v", err)
	}

	if err := guard.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Lock must be free after release.
	second, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	second.Close()
}

func TestCloseIdempotent(t *testing.T) {
	guard, err := Acquire(filepath.Join(t.TempDir(), "f"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := guard.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := guard.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestAcquireWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")

	guard, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(150 * time.Millisecond)
		guard.Close()
		close(released)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	waited, err := AcquireWait(ctx, path)
	if err != nil {
		t.Fatalf("AcquireWait: %v", err)
	}
	defer waited.Close()

	select {
	case <-released:
	default:
		t.Error("AcquireWait returned while the lock was still held")
	}
}

func TestAcquireWaitCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")

	guard, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer guard.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := AcquireWait(ctx, path); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AcquireWait should propagate ctx error, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial")

	guard, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := guard.File().WriteString("partial bytes"); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := guard.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file should be removed after Discard, stat err = %v", err)
	}
}

func TestTruncate(t *testing.T) {
	guard, err := Acquire(filepath.Join(t.TempDir(), "f"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer guard.Close()

	if _, err := guard.File().WriteString("stale content"); err != nil {
		t.Fatal(err)
	}
	if err := guard.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	info, err := guard.File().Stat()
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("size after Truncate = %d, want 0", info.Size())
	}
}
