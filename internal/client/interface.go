package client

import (
	"context"
	"sync/atomic"

	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/index"
)

// ResourceKind tags the outcome of a registry fetch.
type ResourceKind int

const (
	// ResourceNotFound means the requested resource does not exist at this
	// registry. Terminal for the request.
	ResourceNotFound ResourceKind = iota
	// ResourceInCache means the caller's cache key is still valid and its
	// previously cached value must be used. Carries no payload.
	ResourceInCache
	// ResourceDownload means fresh data was obtained and must replace the
	// caller's cache.
	ResourceDownload
)

// RegistryResource is the result of loading data from a registry.
type RegistryResource[T any] struct {
	kind     ResourceKind
	resource T
	cacheKey string
}

// NotFoundResource reports that the resource does not exist.
func NotFoundResource[T any]() RegistryResource[T] {
	return RegistryResource[T]{kind: ResourceNotFound}
}

// InCacheResource reports that the caller's cached value is still valid.
// Clients must only return this when the caller supplied a cache key.
func InCacheResource[T any]() RegistryResource[T] {
	return RegistryResource[T]{kind: ResourceInCache}
}

// DownloadResource carries freshly fetched data. cacheKey is an opaque,
// backend-issued token the caller replays on the next request; an empty
// cacheKey means this result must never be cached.
func DownloadResource[T any](resource T, cacheKey string) RegistryResource[T] {
	return RegistryResource[T]{kind: ResourceDownload, resource: resource, cacheKey: cacheKey}
}

// Kind returns the result variant.
func (r RegistryResource[T]) Kind() ResourceKind {
	return r.kind
}

// Resource returns the downloaded payload. Only meaningful for
// ResourceDownload results.
func (r RegistryResource[T]) Resource() T {
	return r.resource
}

// CacheKey returns the new opaque cache key and whether the result is
// cacheable at all.
func (r RegistryResource[T]) CacheKey() (string, bool) {
	return r.cacheKey, r.cacheKey != ""
}

// BeforeNetworkCallback is invoked by a client right before any network
// transmission starts. An error aborts the request without touching the
// network. Single-use: a client calls it at most once per operation.
type BeforeNetworkCallback func() error

// CreateScratchFileCallback creates a write-locked scratch file for staging
// a downloaded artifact. Clients call it only once they know bytes must be
// persisted, so callers can defer allocating cache space. Single-use.
type CreateScratchFileCallback func(cfg *config.Config) (*flock.FileLockGuard, error)

// OnceBeforeNetwork guards cb against double invocation; a second call is a
// contract violation and panics.
func OnceBeforeNetwork(cb BeforeNetworkCallback) BeforeNetworkCallback {
	var fired atomic.Bool
	return func() error {
		if !fired.CompareAndSwap(false, true) {
			panic("before-network callback invoked more than once")
		}
		return cb()
	}
}

// OnceCreateScratchFile guards cb against double invocation.
func OnceCreateScratchFile(cb CreateScratchFileCallback) CreateScratchFileCallback {
	var fired atomic.Bool
	return func(cfg *config.Config) (*flock.FileLockGuard, error) {
		if !fired.CompareAndSwap(false, true) {
			panic("create-scratch-file callback invoked more than once")
		}
		return cb(cfg)
	}
}

// RegistryClient defines operations all registry backends must support.
// Implementations are safe for concurrent use.
//
// Every operation follows the same before-network discipline: beforeNetwork
// must be invoked right before actual network requests, its error must
// bubble out immediately, and it must not be invoked at all when the
// request is satisfied without network access.
type RegistryClient interface {
	// GetRecords fetches the index records for a package name.
	//
	// cacheKey, when non-empty, is an opaque token previously issued by this
	// same backend; a still-valid key yields an InCache result. Backends are
	// not expected to cache records internally; caching layers are composed
	// on top.
	GetRecords(ctx context.Context, pkg core.PackageName, cacheKey string, beforeNetwork BeforeNetworkCallback) (RegistryResource[index.IndexRecords], error)

	// Download fetches the package archive for id, staging the bytes in a
	// scratch file obtained from createScratchFile. The returned guard holds
	// an exclusive lock on the downloaded archive and is valid to read
	// immediately.
	Download(ctx context.Context, id core.PackageId, cacheKey string, beforeNetwork BeforeNetworkCallback, createScratchFile CreateScratchFileCallback) (RegistryResource[*flock.FileLockGuard], error)

	// SupportsPublish states whether packages can be published to this
	// registry. Permitted to do network lookups, for example to fetch
	// registry capability metadata.
	SupportsPublish(ctx context.Context) (bool, error)

	// Publish uploads a just-packaged tarball for pkg. Must only be called
	// after SupportsPublish returned true; backends that cannot publish
	// treat a call as a caller-side logic bug and panic.
	Publish(ctx context.Context, pkg core.Package, tarball *flock.FileLockGuard) error
}

// NoPublish provides the default publish behavior for backends that do not
// support publishing. Embed it to inherit SupportsPublish and Publish.
type NoPublish struct{}

// SupportsPublish reports that publishing is unsupported.
func (NoPublish) SupportsPublish(ctx context.Context) (bool, error) {
	return false, nil
}

// Publish panics: calling it on a non-publishing backend is a programming
// error in the caller, not a recoverable runtime condition.
func (NoPublish) Publish(ctx context.Context, pkg core.Package, tarball *flock.FileLockGuard) error {
	panic("this registry does not support publishing")
}
