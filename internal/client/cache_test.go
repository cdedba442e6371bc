package client

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/index"
)

// fakeInner is a scripted backend for exercising the caching layer. It
// mimics the HTTP backend's conditional-fetch shape: every request fires
// the before-network callback, and a matching cache key answers InCache.
type fakeInner struct {
	NoPublish

	mu         sync.Mutex
	records    index.IndexRecords
	recordsKey string // current validator for records; "" disables caching
	archive    []byte
	archiveKey string
	missing    bool

	latency time.Duration

	getCalls   atomic.Int32
	dlCalls    atomic.Int32
	seenKeys   []string
	publishes  atomic.Int32
	supportsPb bool
}

var _ RegistryClient = (*fakeInner)(nil)

func (f *fakeInner) GetRecords(ctx context.Context, pkg core.PackageName, cacheKey string, beforeNetwork BeforeNetworkCallback) (RegistryResource[index.IndexRecords], error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	f.seenKeys = append(f.seenKeys, cacheKey)
	records, key, missing := f.records, f.recordsKey, f.missing
	f.mu.Unlock()

	var zero RegistryResource[index.IndexRecords]
	if err := beforeNetwork(); err != nil {
		return zero, err
	}
	if missing {
		return NotFoundResource[index.IndexRecords](), nil
	}
	if cacheKey != "" && cacheKey == key {
		return InCacheResource[index.IndexRecords](), nil
	}
	return DownloadResource(records, key), nil
}

func (f *fakeInner) Download(ctx context.Context, id core.PackageId, cacheKey string, beforeNetwork BeforeNetworkCallback, createScratchFile CreateScratchFileCallback) (RegistryResource[*flock.FileLockGuard], error) {
	f.dlCalls.Add(1)
	f.mu.Lock()
	archive, key, missing := f.archive, f.archiveKey, f.missing
	f.mu.Unlock()

	var zero RegistryResource[*flock.FileLockGuard]
	if err := beforeNetwork(); err != nil {
		return zero, err
	}
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	if missing {
		return NotFoundResource[*flock.FileLockGuard](), nil
	}
	if cacheKey != "" && cacheKey == key {
		return InCacheResource[*flock.FileLockGuard](), nil
	}

	guard, err := createScratchFile(nil)
	if err != nil {
		return zero, err
	}
	if err := guard.Truncate(); err != nil {
		guard.Discard()
		return zero, err
	}
	if _, err := guard.File().Write(archive); err != nil {
		guard.Discard()
		return zero, err
	}
	return DownloadResource(guard, key), nil
}

func (f *fakeInner) SupportsPublish(ctx context.Context) (bool, error) {
	return f.supportsPb, nil
}

func (f *fakeInner) Publish(ctx context.Context, pkg core.Package, tarball *flock.FileLockGuard) error {
	f.publishes.Add(1)
	return nil
}

func newCachingClient(t *testing.T, inner RegistryClient) (*CachingClient, *config.Config) {
	t.Helper()
	cfg := testConfig(t)
	c, err := NewCachingClient(inner, "https://registry.example.com", cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, cfg
}

func TestCacheGetRecordsMissThenHit(t *testing.T) {
	inner := &fakeInner{
		records:    index.IndexRecords{{Version: "1.0.0", Checksum: "sha256:aa"}},
		recordsKey: "rk-1",
	}
	c, _ := newCachingClient(t, inner)
	ctx := context.Background()
	pkg := mustName(t, "starknet-utils")

	res, err := c.GetRecords(ctx, pkg, "", func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, ResourceDownload, res.Kind())
	require.Len(t, res.Resource(), 1)

	// The second call revalidates against the inner client and serves the
	// persisted records.
	res, err = c.GetRecords(ctx, pkg, "", func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, ResourceDownload, res.Kind())
	require.Equal(t, "1.0.0", res.Resource()[0].Version)

	require.Equal(t, int32(2), inner.getCalls.Load())
	// The stored key was replayed on the second call.
	require.Equal(t, []string{"", "rk-1"}, inner.seenKeys)
}

func TestCacheGetRecordsCallerKey(t *testing.T) {
	inner := &fakeInner{
		records:    index.IndexRecords{{Version: "1.0.0"}},
		recordsKey: "rk-1",
	}
	c, _ := newCachingClient(t, inner)
	ctx := context.Background()
	pkg := mustName(t, "starknet-utils")

	res, err := c.GetRecords(ctx, pkg, "", func() error { return nil })
	require.NoError(t, err)
	key, ok := res.CacheKey()
	require.True(t, ok)

	// A caller replaying the issued key gets the validity signal, not data.
	res, err = c.GetRecords(ctx, pkg, key, func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, ResourceInCache, res.Kind())
}

func TestCacheNotFoundPassthrough(t *testing.T) {
	inner := &fakeInner{missing: true}
	c, _ := newCachingClient(t, inner)
	ctx := context.Background()
	pkg := mustName(t, "nope")

	for i := 0; i < 2; i++ {
		res, err := c.GetRecords(ctx, pkg, "", func() error { return nil })
		require.NoError(t, err)
		require.Equal(t, ResourceNotFound, res.Kind())
	}

	// No negative caching: both requests reached the inner client.
	require.Equal(t, int32(2), inner.getCalls.Load())
}

func TestCacheNonCacheableKeyNotPersisted(t *testing.T) {
	inner := &fakeInner{
		records:    index.IndexRecords{{Version: "1.0.0"}},
		recordsKey: "", // backend marks results non-cacheable
	}
	c, _ := newCachingClient(t, inner)
	ctx := context.Background()
	pkg := mustName(t, "starknet-utils")

	res, err := c.GetRecords(ctx, pkg, "", func() error { return nil })
	require.NoError(t, err)
	_, ok := res.CacheKey()
	require.False(t, ok)

	_, err = c.GetRecords(ctx, pkg, "", func() error { return nil })
	require.NoError(t, err)

	// The inner client was never handed a reusable key.
	require.Equal(t, []string{"", ""}, inner.seenKeys)
}

func TestCacheCorruptRecordsRefetch(t *testing.T) {
	inner := &fakeInner{
		records:    index.IndexRecords{{Version: "1.0.0"}},
		recordsKey: "rk-1",
	}
	c, cfg := newCachingClient(t, inner)
	ctx := context.Background()
	pkg := mustName(t, "starknet-utils")

	_, err := c.GetRecords(ctx, pkg, "", func() error { return nil })
	require.NoError(t, err)

	// Corrupt the persisted entry behind the decorator's back.
	dir := cfg.RegistryCacheDir(core.SourceIdent("https://registry.example.com"))
	path := dir + "/index/starknet-utils.json"
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	res, err := c.GetRecords(ctx, pkg, "", func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, ResourceDownload, res.Kind())
	require.Equal(t, "1.0.0", res.Resource()[0].Version)

	// hit validation, then the degraded full fetch
	require.Equal(t, []string{"", "rk-1", ""}, inner.seenKeys)
}

func TestCacheDownloadConcurrentDedup(t *testing.T) {
	inner := &fakeInner{
		archive:    []byte("shared archive bytes"),
		archiveKey: "ak-1",
		latency:    100 * time.Millisecond,
	}
	c, _ := newCachingClient(t, inner)
	id := mustId(t, "starknet-utils", "1.0.0", "https://registry.example.com")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Download(context.Background(), id, "", func() error { return nil }, noScratch(t))
			if err != nil {
				errs <- err
				return
			}
			guard := res.Resource()
			defer guard.Close()

			data, err := os.ReadFile(guard.Path())
			if err != nil {
				errs <- err
				return
			}
			if string(data) != "shared archive bytes" {
				errs <- os.ErrInvalid
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("worker: %v", err)
	}

	// All callers shared a single inner fetch.
	require.Equal(t, int32(1), inner.dlCalls.Load())
}

func TestCacheDownloadCallerKey(t *testing.T) {
	inner := &fakeInner{archive: []byte("bytes"), archiveKey: "ak-1"}
	c, _ := newCachingClient(t, inner)
	ctx := context.Background()
	id := mustId(t, "starknet-utils", "1.0.0", "https://registry.example.com")

	res, err := c.Download(ctx, id, "", func() error { return nil }, noScratch(t))
	require.NoError(t, err)
	require.Equal(t, ResourceDownload, res.Kind())
	key, ok := res.CacheKey()
	require.True(t, ok)
	res.Resource().Close()

	res, err = c.Download(ctx, id, key, func() error { return nil }, noScratch(t))
	require.NoError(t, err)
	require.Equal(t, ResourceInCache, res.Kind())
}

func TestCacheDownloadMissingArchiveRefetch(t *testing.T) {
	inner := &fakeInner{archive: []byte("bytes"), archiveKey: "ak-1"}
	c, cfg := newCachingClient(t, inner)
	ctx := context.Background()
	id := mustId(t, "starknet-utils", "1.0.0", "https://registry.example.com")

	res, err := c.Download(ctx, id, "", func() error { return nil }, noScratch(t))
	require.NoError(t, err)
	res.Resource().Close()

	// Drop the archive while keeping the stored cache key.
	dir := cfg.RegistryCacheDir(core.SourceIdent("https://registry.example.com"))
	require.NoError(t, os.Remove(dir+"/dl/"+id.Tarball()))

	res, err = c.Download(ctx, id, "", func() error { return nil }, noScratch(t))
	require.NoError(t, err)
	require.Equal(t, ResourceDownload, res.Kind())

	guard := res.Resource()
	defer guard.Close()
	data, err := os.ReadFile(guard.Path())
	require.NoError(t, err)
	require.Equal(t, "bytes", string(data))

	// validation hit, then the degraded full fetch
	require.Equal(t, int32(3), inner.dlCalls.Load())
}

func TestCacheDownloadNotFound(t *testing.T) {
	inner := &fakeInner{missing: true}
	c, _ := newCachingClient(t, inner)

	res, err := c.Download(context.Background(), mustId(t, "nope", "1.0.0", "https://registry.example.com"),
		"", func() error { return nil }, noScratch(t))
	require.NoError(t, err)
	require.Equal(t, ResourceNotFound, res.Kind())
}

func TestCachePublishPassthrough(t *testing.T) {
	inner := &fakeInner{supportsPb: true}
	c, _ := newCachingClient(t, inner)
	ctx := context.Background()

	supported, err := c.SupportsPublish(ctx)
	require.NoError(t, err)
	require.True(t, supported)

	require.NoError(t, c.Publish(ctx, mustPackage(t, "starknet-utils", "1.0.0"), nil))
	require.Equal(t, int32(1), inner.publishes.Load())
}
