package client

import (
	"context"
	"errors"
	"testing"

	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/index"
)

func TestRegistryResourceVariants(t *testing.T) {
	notFound := NotFoundResource[index.IndexRecords]()
	if notFound.Kind() != ResourceNotFound {
		t.Errorf("NotFoundResource kind = %v", notFound.Kind())
	}

	inCache := InCacheResource[index.IndexRecords]()
	if inCache.Kind() != ResourceInCache {
		t.Errorf("InCacheResource kind = %v", inCache.Kind())
	}
	if _, ok := inCache.CacheKey(); ok {
		t.Error("InCacheResource should not carry a cache key")
	}

	records := index.IndexRecords{{Version: "1.0.0"}}
	download := DownloadResource(records, "etag-1")
	if download.Kind() != ResourceDownload {
		t.Errorf("DownloadResource kind = %v", download.Kind())
	}
	if got := download.Resource(); len(got) != 1 || got[0].Version != "1.0.0" {
		t.Errorf("Resource() = %+v", got)
	}
	key, ok := download.CacheKey()
	if !ok || key != "etag-1" {
		t.Errorf("CacheKey() = %q, %v", key, ok)
	}

	// An empty key marks the result as non-cacheable.
	uncacheable := DownloadResource(records, "")
	if _, ok := uncacheable.CacheKey(); ok {
		t.Error("empty cache key should report non-cacheable")
	}
}

func TestOnceBeforeNetworkPanicsOnSecondCall(t *testing.T) {
	calls := 0
	cb := OnceBeforeNetwork(func() error {
		calls++
		return nil
	})

	if err := cb(); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	defer func() {
		if recover() == nil {
			t.Error("second invocation should panic")
		}
	}()
	cb()
}

func TestOnceBeforeNetworkPropagatesError(t *testing.T) {
	wantErr := errors.New("offline mode")
	cb := OnceBeforeNetwork(func() error { return wantErr })

	if err := cb(); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestOnceCreateScratchFilePanicsOnSecondCall(t *testing.T) {
	cb := OnceCreateScratchFile(func(cfg *config.Config) (*flock.FileLockGuard, error) {
		return nil, errors.New("unused")
	})

	cb(nil)

	defer func() {
		if recover() == nil {
			t.Error("second invocation should panic")
		}
	}()
	cb(nil)
}

func TestNoPublish(t *testing.T) {
	var np NoPublish

	supported, err := np.SupportsPublish(context.Background())
	if err != nil {
		t.Fatalf("SupportsPublish: %v", err)
	}
	if supported {
		t.Error("NoPublish should report publishing unsupported")
	}

	defer func() {
		if recover() == nil {
			t.Error("Publish on a non-publishing backend should panic")
		}
	}()
	np.Publish(context.Background(), core.Package{}, nil)
}
