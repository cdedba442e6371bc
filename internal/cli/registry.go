package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"cairn/internal/config"
)

var registryType string

// registryCmd represents the registry command group
var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage registry configuration",
	Long:  `Add, list, and select the registries cairn talks to.`,
}

var registryAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a registry",
	Long: `Add a registry to the configuration.

The URL is interpreted according to --type: a base URL for http
registries, a clone URL for git registries, or a directory path for
local registries.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegistryAdd(args[0], args[1], config.RegistryType(registryType))
	},
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured registries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegistryList()
	},
}

var registryUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set active registry",
	Long: `Set the active registry.

The active registry is used by records, fetch, and publish.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegistryUse(args[0])
	},
}

func init() {
	registryAddCmd.Flags().StringVarP(&registryType, "type", "t", string(config.RegistryTypeHTTP),
		"registry type (http, git, local)")

	registryCmd.AddCommand(registryAddCmd)
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryUseCmd)
}

func runRegistryAdd(name, url string, registryType config.RegistryType) error {
	if err := config.ValidateRegistryType(registryType); err != nil {
		return err
	}

	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Registries[name] = config.Registry{
		URL:  url,
		Type: registryType,
	}

	// Set as current if it's the first one
	if cfg.Current == "" {
		cfg.Current = name
	}

	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Added registry '%s'\n", name)
	fmt.Printf("🌐 URL: %s\n", url)
	fmt.Printf("📋 Type: %s\n", registryType)

	if cfg.Current == name {
		fmt.Printf("⭐ Set as active registry\n")
	}

	return nil
}

func runRegistryList() error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(cfg.Registries) == 0 {
		fmt.Printf("No registries configured.\n")
		fmt.Printf("Add a registry with: cairn registry add <name> <url> [--type http|git|local]\n")
		return nil
	}

	names := make([]string, 0, len(cfg.Registries))
	for name := range cfg.Registries {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("📋 Configured registries:\n\n")
	for _, name := range names {
		reg := cfg.Registries[name]
		marker := "  "
		if cfg.Current == name {
			marker = "⭐"
		}
		fmt.Printf("%s %s (%s) %s\n", marker, name, reg.GetEffectiveType(), reg.URL)
	}

	return nil
}

func runRegistryUse(name string) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, exists := cfg.Registries[name]; !exists {
		return fmt.Errorf("registry '%s' not found", name)
	}

	cfg.Current = name
	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("⭐ Active registry: %s\n", name)
	return nil
}
