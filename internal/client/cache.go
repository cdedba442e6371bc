package client

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"cairn/internal/cache"
	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/index"
)

// CachingClient caches another client's results on disk. It looks up a
// locally stored cache key per package identity, delegates with it, and
// only the inner client decides whether the network is needed; on a valid
// key the inner client's InCache answer is served from the local store
// without re-persisting anything.
//
// Concurrent requests for the same identity are deduplicated so at most one
// inner fetch per identity is in flight at a time.
type CachingClient struct {
	inner    RegistryClient
	cfg      *config.Config
	keys     *cache.KeyStore
	records  *cache.RecordsStore
	archives *cache.ArchiveStore
	sf       singleflight.Group
	log      *logrus.Entry
}

// Ensure CachingClient implements RegistryClient
var _ RegistryClient = (*CachingClient)(nil)

// NewCachingClient wraps inner with an on-disk cache namespaced by
// sourceURL under the configured cache directory.
func NewCachingClient(inner RegistryClient, sourceURL string, cfg *config.Config) (*CachingClient, error) {
	dir := cfg.RegistryCacheDir(core.SourceIdent(sourceURL))

	keys, err := cache.OpenKeyStore(filepath.Join(dir, "cache-keys.db"))
	if err != nil {
		return nil, err
	}

	return &CachingClient{
		inner:    inner,
		cfg:      cfg,
		keys:     keys,
		records:  cache.NewRecordsStore(dir),
		archives: cache.NewArchiveStore(dir),
		log:      logrus.WithField("registry", sourceURL),
	}, nil
}

// Close releases the cache-key store.
func (c *CachingClient) Close() error {
	return c.keys.Close()
}

// GetRecords serves records from the local store when the inner client
// confirms the stored cache key, fetching and persisting fresh records
// otherwise. NotFound is passed through without a negative cache entry.
func (c *CachingClient) GetRecords(ctx context.Context, pkg core.PackageName, cacheKey string, beforeNetwork BeforeNetworkCallback) (RegistryResource[index.IndexRecords], error) {
	var zero RegistryResource[index.IndexRecords]

	network := latchBeforeNetwork(beforeNetwork)
	v, err, _ := c.sf.Do("records:"+pkg.Slug(), func() (interface{}, error) {
		return c.fetchRecords(ctx, pkg, network)
	})
	if err != nil {
		return zero, err
	}

	res := v.(RegistryResource[index.IndexRecords])
	if res.Kind() == ResourceDownload {
		if key, ok := res.CacheKey(); ok && cacheKey != "" && key == cacheKey {
			return InCacheResource[index.IndexRecords](), nil
		}
	}
	return res, nil
}

// fetchRecords resolves one records request against the inner client and
// the local store. It returns NotFound or a Download carrying the records
// now present in the store; the InCache variant never escapes here.
func (c *CachingClient) fetchRecords(ctx context.Context, pkg core.PackageName, network BeforeNetworkCallback) (RegistryResource[index.IndexRecords], error) {
	var zero RegistryResource[index.IndexRecords]

	storedKey, err := c.keys.Get(cache.KindRecords, pkg.Slug())
	if err != nil {
		// An unreadable key store degrades to a miss, not a failure.
		c.log.WithError(err).Debug("cache-key store unreadable")
		storedKey = ""
	}

	res, err := c.inner.GetRecords(ctx, pkg, storedKey, network)
	if err != nil {
		return zero, err
	}

	if res.Kind() == ResourceInCache {
		if storedKey == "" {
			return zero, fmt.Errorf("registry client reported a cache hit without being given a cache key")
		}
		records, loadErr := c.records.Load(pkg)
		if loadErr == nil {
			c.log.WithField("package", pkg).Debug("index records cache hit")
			return DownloadResource(records, storedKey), nil
		}

		// Corrupt or missing local entry: degrade to a full fetch.
		c.log.WithField("package", pkg).WithError(loadErr).Debug("cached records unreadable, refetching")
		res, err = c.inner.GetRecords(ctx, pkg, "", network)
		if err != nil {
			return zero, err
		}
		if res.Kind() == ResourceInCache {
			return zero, fmt.Errorf("registry client reported a cache hit without being given a cache key")
		}
	}

	if res.Kind() == ResourceNotFound {
		return res, nil
	}

	if err := c.records.Store(pkg, res.Resource()); err != nil {
		return zero, fmt.Errorf("failed to cache index records: %w", err)
	}
	if key, ok := res.CacheKey(); ok {
		if err := c.keys.Put(cache.KindRecords, pkg.Slug(), key); err != nil {
			return zero, err
		}
	} else if err := c.keys.Delete(cache.KindRecords, pkg.Slug()); err != nil {
		return zero, err
	}
	return res, nil
}

// archiveFlight is the shared outcome of one deduplicated download.
type archiveFlight struct {
	notFound bool
	cacheKey string
}

// Download ensures the archive for id is present and fully written in the
// local store, then hands each caller its own exclusive guard on it. The
// caller's createScratchFile is not consumed: staging happens inside the
// cache's own archive store.
func (c *CachingClient) Download(ctx context.Context, id core.PackageId, cacheKey string, beforeNetwork BeforeNetworkCallback, createScratchFile CreateScratchFileCallback) (RegistryResource[*flock.FileLockGuard], error) {
	var zero RegistryResource[*flock.FileLockGuard]

	network := latchBeforeNetwork(beforeNetwork)
	v, err, _ := c.sf.Do("download:"+id.Tarball(), func() (interface{}, error) {
		return c.fetchArchive(ctx, id, network)
	})
	if err != nil {
		return zero, err
	}

	flight := v.(archiveFlight)
	if flight.notFound {
		return NotFoundResource[*flock.FileLockGuard](), nil
	}

	if cacheKey != "" && cacheKey == flight.cacheKey {
		return InCacheResource[*flock.FileLockGuard](), nil
	}

	guard, err := c.archives.Open(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("failed to open cached archive: %w", err)
	}
	return DownloadResource(guard, flight.cacheKey), nil
}

// fetchArchive resolves one download against the inner client, promoting a
// fresh download into the archive store and recording its cache key.
func (c *CachingClient) fetchArchive(ctx context.Context, id core.PackageId, network BeforeNetworkCallback) (archiveFlight, error) {
	storedKey, err := c.keys.Get(cache.KindDownload, id.Tarball())
	if err != nil {
		c.log.WithError(err).Debug("cache-key store unreadable")
		storedKey = ""
	}

	res, err := c.inner.Download(ctx, id, storedKey, network, c.scratchFor(ctx, id))
	if err != nil {
		return archiveFlight{}, err
	}

	if res.Kind() == ResourceInCache {
		if storedKey == "" {
			return archiveFlight{}, fmt.Errorf("registry client reported a cache hit without being given a cache key")
		}
		if guard, openErr := c.archives.Open(ctx, id); openErr == nil {
			guard.Close()
			c.log.WithField("package", id.String()).Debug("archive cache hit")
			return archiveFlight{cacheKey: storedKey}, nil
		}

		// The key validated but the archive is gone: degrade to a full fetch.
		c.log.WithField("package", id.String()).Debug("cached archive missing, refetching")
		res, err = c.inner.Download(ctx, id, "", network, c.scratchFor(ctx, id))
		if err != nil {
			return archiveFlight{}, err
		}
		if res.Kind() == ResourceInCache {
			return archiveFlight{}, fmt.Errorf("registry client reported a cache hit without being given a cache key")
		}
	}

	if res.Kind() == ResourceNotFound {
		return archiveFlight{notFound: true}, nil
	}

	final, err := c.archives.Promote(ctx, id, res.Resource())
	if err != nil {
		return archiveFlight{}, err
	}
	// Callers acquire their own guards; the flight does not hold the lock.
	if err := final.Close(); err != nil {
		return archiveFlight{}, err
	}

	flight := archiveFlight{}
	if key, ok := res.CacheKey(); ok {
		flight.cacheKey = key
		if err := c.keys.Put(cache.KindDownload, id.Tarball(), key); err != nil {
			return archiveFlight{}, err
		}
	} else if err := c.keys.Delete(cache.KindDownload, id.Tarball()); err != nil {
		return archiveFlight{}, err
	}
	return flight, nil
}

// scratchFor stages inner downloads in the archive store's scratch area.
func (c *CachingClient) scratchFor(ctx context.Context, id core.PackageId) CreateScratchFileCallback {
	return OnceCreateScratchFile(func(cfg *config.Config) (*flock.FileLockGuard, error) {
		return c.archives.CreateScratch(ctx, id)
	})
}

// SupportsPublish delegates to the wrapped client.
func (c *CachingClient) SupportsPublish(ctx context.Context) (bool, error) {
	return c.inner.SupportsPublish(ctx)
}

// Publish delegates to the wrapped client; publish results are never cached.
func (c *CachingClient) Publish(ctx context.Context, pkg core.Package, tarball *flock.FileLockGuard) error {
	return c.inner.Publish(ctx, pkg, tarball)
}

// latchBeforeNetwork adapts a single-use callback for internal
// re-delegation: the first invocation runs cb, later invocations replay its
// result. The caller's callback still executes at most once.
func latchBeforeNetwork(cb BeforeNetworkCallback) BeforeNetworkCallback {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			err = cb()
		})
		return err
	}
}
