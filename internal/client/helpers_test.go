package client

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		CacheDir:       t.TempDir(),
		RequestTimeout: 5 * time.Second,
	}
}

func mustName(t *testing.T, name string) core.PackageName {
	t.Helper()
	pkg, err := core.NewPackageName(name)
	if err != nil {
		t.Fatal(err)
	}
	return pkg
}

func mustId(t *testing.T, name, version, source string) core.PackageId {
	t.Helper()
	id, err := core.NewPackageId(name, version, source)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustPackage(t *testing.T, name, version string) core.Package {
	t.Helper()
	return core.Package{
		Id:       mustId(t, name, version, ""),
		Manifest: &core.Manifest{Name: name, Version: version},
	}
}

// noNetwork fails the test if the client attempts network access.
func noNetwork(t *testing.T) BeforeNetworkCallback {
	t.Helper()
	return func() error {
		t.Error("before-network callback fired for a request that must not touch the network")
		return nil
	}
}

// countNetwork records how many requests announced network access.
func countNetwork(counter *atomic.Int32) BeforeNetworkCallback {
	return func() error {
		counter.Add(1)
		return nil
	}
}

// scratchInDir stages downloads in dir, mirroring what a caching layer
// provides to a backend.
func scratchInDir(dir, name string) CreateScratchFileCallback {
	return func(cfg *config.Config) (*flock.FileLockGuard, error) {
		return flock.Acquire(filepath.Join(dir, name))
	}
}

// noScratch fails the test if the client allocates a scratch file.
func noScratch(t *testing.T) CreateScratchFileCallback {
	t.Helper()
	return func(cfg *config.Config) (*flock.FileLockGuard, error) {
		t.Error("create-scratch-file callback fired for a request that must not persist bytes")
		return nil, nil
	}
}
