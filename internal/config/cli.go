package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// RegistryType identifies which backend serves a configured registry.
type RegistryType string

const (
	RegistryTypeHTTP  RegistryType = "http"
	RegistryTypeLocal RegistryType = "local"
	RegistryTypeGit   RegistryType = "git"
)

// Registry is one configured registry source.
type Registry struct {
	URL   string       `toml:"url"`
	Type  RegistryType `toml:"type,omitempty"`
	Token string       `toml:"token,omitempty"` // Bearer token for this registry
}

// ValidateRegistryType rejects unknown registry types.
func ValidateRegistryType(t RegistryType) error {
	switch t {
	case RegistryTypeHTTP, RegistryTypeLocal, RegistryTypeGit:
		return nil
	default:
		return fmt.Errorf("unknown registry type '%s' (expected http, git, or local)", t)
	}
}

// GetEffectiveType returns the registry type, defaulting to HTTP.
func (r Registry) GetEffectiveType() RegistryType {
	if r.Type == "" {
		return RegistryTypeHTTP
	}
	return r.Type
}

// CLIConfig is the ~/.cairn/config.toml contents.
type CLIConfig struct {
	Current    string              `toml:"current"`
	Registries map[string]Registry `toml:"registries"`
}

// ConfigDir returns the CLI config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cairn"), nil
}

// ConfigPath returns the full path to config.toml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadCLI loads CLI configuration from ~/.cairn/config.toml
func LoadCLI() (CLIConfig, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return CLIConfig{}, err
	}
	return LoadCLIFrom(configPath)
}

// LoadCLIFrom loads CLI configuration from an explicit path.
func LoadCLIFrom(configPath string) (CLIConfig, error) {
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		// Return empty config if file doesn't exist
		return CLIConfig{
			Registries: make(map[string]Registry),
		}, nil
	}
	if err != nil {
		return CLIConfig{}, err
	}

	var config CLIConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return CLIConfig{}, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	if config.Registries == nil {
		config.Registries = make(map[string]Registry)
	}

	return config, nil
}

// SaveCLI saves CLI configuration to ~/.cairn/config.toml
func SaveCLI(config CLIConfig) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveCLITo(configPath, config)
}

// SaveCLITo saves CLI configuration to an explicit path.
func SaveCLITo(configPath string, config CLIConfig) error {
	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0o600)
}
