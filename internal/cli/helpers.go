package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cairn/internal/client"
	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/index"
	"cairn/internal/version"
)

// openClient builds a cached registry client for the active registry and
// returns the registry settings alongside it.
func openClient() (*client.CachingClient, config.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Registry{}, fmt.Errorf("failed to load config: %w", err)
	}

	cliCfg, err := config.LoadCLI()
	if err != nil {
		return nil, config.Registry{}, fmt.Errorf("failed to load config: %w", err)
	}

	c, err := client.GetClient(cliCfg, cfg)
	if err != nil {
		return nil, config.Registry{}, err
	}
	return c, cliCfg.Registries[cliCfg.Current], nil
}

// progressCallback announces the network round trip once, before it happens.
func progressCallback(what string) client.BeforeNetworkCallback {
	return client.OnceBeforeNetwork(func() error {
		log.Debugf("contacting registry for %s", what)
		return nil
	})
}

// scratchCallback stages a download in the system temp directory. The
// cached client stages inside its own archive store and leaves this
// unused, but the contract requires a usable callback.
func scratchCallback(id core.PackageId) client.CreateScratchFileCallback {
	return client.OnceCreateScratchFile(func(cfg *config.Config) (*flock.FileLockGuard, error) {
		return flock.Acquire(filepath.Join(os.TempDir(), id.Tarball()+".part"))
	})
}

// parsePackageSpec splits "name@version" into its parts. The version is
// optional.
func parsePackageSpec(spec string) (core.PackageName, string, error) {
	nameStr := spec
	ver := ""

	// Scoped names start with '@', so only split on a later '@'.
	if idx := strings.LastIndex(spec, "@"); idx > 0 {
		nameStr = spec[:idx]
		ver = spec[idx+1:]
	}

	name, err := core.NewPackageName(nameStr)
	if err != nil {
		return "", "", err
	}
	if ver != "" {
		if err := core.ValidVersion(ver); err != nil {
			return "", "", err
		}
	}
	return name, ver, nil
}

// latestVersion picks the highest non-yanked version from index records.
func latestVersion(records index.IndexRecords) (string, error) {
	var best *version.Version
	bestStr := ""
	for _, rec := range records {
		if rec.Yanked {
			continue
		}
		v, err := version.Parse(rec.Version)
		if err != nil {
			log.Debugf("skipping unparseable version %q: %v", rec.Version, err)
			continue
		}
		if best == nil || v.IsGreaterThan(best) {
			best = v
			bestStr = rec.Version
		}
	}
	if best == nil {
		return "", fmt.Errorf("no installable versions found")
	}
	return bestStr, nil
}
