package client

import (
	"fmt"

	"cairn/internal/config"
)

// NewRegistryClient creates the appropriate client based on registry type
func NewRegistryClient(registry config.Registry, cfg *config.Config) (RegistryClient, error) {
	switch registryType := registry.GetEffectiveType(); registryType {
	case config.RegistryTypeHTTP:
		return NewHTTPClient(registry.URL, registry.Token, cfg), nil

	case config.RegistryTypeLocal:
		return NewLocalClient(registry.URL, cfg)

	case config.RegistryTypeGit:
		return NewGitClient(registry.URL, registry.Token, cfg)

	default:
		return nil, fmt.Errorf("unsupported registry type: %s", registryType)
	}
}

// NewCachedRegistryClient creates a backend client for registry and wraps
// it in the on-disk caching layer.
func NewCachedRegistryClient(registry config.Registry, cfg *config.Config) (*CachingClient, error) {
	inner, err := NewRegistryClient(registry, cfg)
	if err != nil {
		return nil, err
	}
	return NewCachingClient(inner, registry.URL, cfg)
}

// GetClient creates a cached client for the currently active registry.
func GetClient(cliCfg config.CLIConfig, cfg *config.Config) (*CachingClient, error) {
	if cliCfg.Current == "" {
		return nil, fmt.Errorf("no active registry configured")
	}

	registry, exists := cliCfg.Registries[cliCfg.Current]
	if !exists {
		return nil, fmt.Errorf("active registry '%s' not found in configuration", cliCfg.Current)
	}

	return NewCachedRegistryClient(registry, cfg)
}

// GetClientForRegistry creates a cached client for a specific named registry.
func GetClientForRegistry(cliCfg config.CLIConfig, registryName string, cfg *config.Config) (*CachingClient, error) {
	registry, exists := cliCfg.Registries[registryName]
	if !exists {
		return nil, fmt.Errorf("registry '%s' not found", registryName)
	}

	return NewCachedRegistryClient(registry, cfg)
}
