package cli

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cairn/internal/config"
)

var loginRegistry string

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an authentication token for a registry",
	Long: `Prompt for an authentication token and store it in the configuration
for the active registry (or the one named with --registry).

HTTP registries send the token as a Bearer credential; git registries
use it as the password for the clone URL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin()
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginRegistry, "registry", "r", "", "registry to store the token for (default: active)")
}

func runLogin() error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	name := loginRegistry
	if name == "" {
		name = cfg.Current
	}
	if name == "" {
		return fmt.Errorf("no registry selected; add one with 'cairn registry add' first")
	}

	reg, exists := cfg.Registries[name]
	if !exists {
		return fmt.Errorf("registry '%s' not found", name)
	}

	fmt.Printf("Token for %s (%s): ", name, reg.URL)
	tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	fmt.Println() // New line after hidden input

	token := strings.TrimSpace(string(tokenBytes))
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	reg.Token = token
	cfg.Registries[name] = reg

	if err := config.SaveCLI(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Token stored for registry '%s'\n", name)
	return nil
}
