package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/index"
)

// LocalClient serves a registry rooted in a local directory:
//
//	<root>/index/<name>.json
//	<root>/<name>-<version>.tar.zst
//
// It never touches the network, so the before-network callback is never
// invoked, and its results are never cacheable: local data is authoritative
// on every call.
type LocalClient struct {
	NoPublish

	root string
	cfg  *config.Config
	log  *logrus.Entry
}

// Ensure LocalClient implements RegistryClient
var _ RegistryClient = (*LocalClient)(nil)

// NewLocalClient creates a client for the registry directory at root.
func NewLocalClient(root string, cfg *config.Config) (*LocalClient, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve registry path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, NewRegistryError(ErrInvalidRegistry, fmt.Sprintf("cannot open %s: %v", abs, err))
	}
	if !info.IsDir() {
		return nil, NewRegistryError(ErrInvalidRegistry, fmt.Sprintf("%s is not a directory", abs))
	}

	return &LocalClient{
		root: abs,
		cfg:  cfg,
		log:  logrus.WithField("registry", abs),
	}, nil
}

func (c *LocalClient) GetRecords(ctx context.Context, pkg core.PackageName, cacheKey string, beforeNetwork BeforeNetworkCallback) (RegistryResource[index.IndexRecords], error) {
	var zero RegistryResource[index.IndexRecords]

	data, err := os.ReadFile(filepath.Join(c.root, "index", pkg.Slug()+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return NotFoundResource[index.IndexRecords](), nil
	}
	if err != nil {
		return zero, fmt.Errorf("failed to read index records: %w", err)
	}

	records, err := index.DecodeRecords(data)
	if err != nil {
		return zero, NewRegistryError(ErrInvalidRecords, err.Error())
	}

	c.log.WithField("package", pkg).Debug("read index records")
	return DownloadResource(records, ""), nil
}

func (c *LocalClient) Download(ctx context.Context, id core.PackageId, cacheKey string, beforeNetwork BeforeNetworkCallback, createScratchFile CreateScratchFileCallback) (RegistryResource[*flock.FileLockGuard], error) {
	var zero RegistryResource[*flock.FileLockGuard]

	archive, err := os.Open(filepath.Join(c.root, id.Tarball()))
	if errors.Is(err, os.ErrNotExist) {
		return NotFoundResource[*flock.FileLockGuard](), nil
	}
	if err != nil {
		return zero, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	guard, err := createScratchFile(c.cfg)
	if err != nil {
		return zero, err
	}

	if err := guard.Truncate(); err != nil {
		guard.Discard()
		return zero, fmt.Errorf("failed to reset scratch file: %w", err)
	}

	if _, err := io.Copy(guard.File(), archive); err != nil {
		guard.Discard()
		return zero, fmt.Errorf("failed to copy archive to %s: %w", guard.Path(), err)
	}

	if _, err := guard.File().Seek(0, 0); err != nil {
		guard.Discard()
		return zero, err
	}

	c.log.WithField("package", id.String()).Debug("copied archive from local registry")
	return DownloadResource(guard, ""), nil
}
