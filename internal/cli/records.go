package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cairn/internal/client"
	"cairn/internal/core"
)

// recordsCmd represents the records command
var recordsCmd = &cobra.Command{
	Use:   "records <package>",
	Short: "List published versions of a package",
	Long: `Fetch the index records for a package from the active registry
and print its published versions along with their dependencies.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecords(cmd, args[0])
	},
}

func runRecords(cmd *cobra.Command, nameStr string) error {
	name, err := core.NewPackageName(nameStr)
	if err != nil {
		return err
	}

	c, _, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.GetRecords(cmd.Context(), name, "", progressCallback(string(name)))
	if err != nil {
		return fmt.Errorf("failed to fetch records: %w", err)
	}

	switch res.Kind() {
	case client.ResourceNotFound:
		return fmt.Errorf("package '%s' not found in registry", name)
	case client.ResourceInCache:
		// Unreachable without a cache key; treat like an empty result.
		return fmt.Errorf("registry returned no records for '%s'", name)
	}

	records := res.Resource()
	fmt.Printf("📦 %s\n\n", name)
	for _, rec := range records {
		line := fmt.Sprintf("  %s", rec.Version)
		if rec.Yanked {
			line += " (yanked)"
		}
		if len(rec.Dependencies) > 0 {
			deps := make([]string, 0, len(rec.Dependencies))
			for _, dep := range rec.Dependencies {
				deps = append(deps, fmt.Sprintf("%s %s", dep.Name, dep.Req))
			}
			line += "  deps: " + strings.Join(deps, ", ")
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d version(s)\n", len(records))

	return nil
}
