package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultRequestTimeout bounds a single registry HTTP request.
const DefaultRequestTimeout = 30 * time.Second

// Config is the shared, read-only process configuration handle. It is
// passed into scratch-file creation so download staging lands inside the
// configured cache tree.
type Config struct {
	// CacheDir is the root of the on-disk registry cache.
	CacheDir string
	// RequestTimeout bounds individual registry HTTP requests.
	RequestTimeout time.Duration
}

// Load builds the process configuration from the environment, applying
// defaults for anything unset.
func Load() (*Config, error) {
	cacheDir := os.Getenv("CAIRN_CACHE_DIR")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cairn", "cache")
	}

	return &Config{
		CacheDir:       cacheDir,
		RequestTimeout: DefaultRequestTimeout,
	}, nil
}

// RegistryCacheDir returns the cache subtree for one registry source.
func (c *Config) RegistryCacheDir(sourceIdent string) string {
	return filepath.Join(c.CacheDir, "registry", sourceIdent)
}
