package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cairn/internal/client"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/pack"
	"cairn/internal/version"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the package in the current directory",
	Long: `Package the files listed in Cairn.toml into an archive and upload
it to the active registry.

The registry must support publishing and the version must not already
exist in the index. Requires an authentication token to be configured
for the registry (see 'cairn login').`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublish(cmd)
	},
}

func runPublish(cmd *cobra.Command) error {
	manifest, err := core.LoadManifest(core.ManifestFileName)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", core.ManifestFileName, err)
	}
	if err := manifest.Validate(); err != nil {
		return err
	}
	if !version.IsValidVersion(manifest.Version) {
		return fmt.Errorf("invalid version '%s' in manifest", manifest.Version)
	}

	c, reg, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()

	ok, err := c.SupportsPublish(ctx)
	if err != nil {
		return fmt.Errorf("failed to query registry capabilities: %w", err)
	}
	if !ok {
		return fmt.Errorf("registry '%s' does not support publishing", reg.URL)
	}

	id, err := manifest.PackageId(reg.URL)
	if err != nil {
		return err
	}
	if err := checkVersionUnpublished(cmd, c, id); err != nil {
		return err
	}

	archivePath := filepath.Join(os.TempDir(), id.Tarball())
	info, err := pack.Pack(".", manifest.Files, archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer os.Remove(archivePath)

	fmt.Printf("📦 Packed %s (%d bytes, sha256 %s)\n", id, info.SizeBytes, info.SHA256)

	guard, err := flock.Acquire(archivePath)
	if err != nil {
		return fmt.Errorf("failed to lock archive: %w", err)
	}
	defer guard.Close()

	pkg := core.Package{Id: id, Manifest: manifest}
	if err := c.Publish(ctx, pkg, guard); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return fmt.Errorf("registry rejected credentials; run 'cairn login' first: %w", err)
		}
		return fmt.Errorf("failed to publish %s: %w", id, err)
	}

	fmt.Printf("✅ Published %s\n", id)
	return nil
}

// checkVersionUnpublished fails when the manifest version is already in the
// registry index or is not an increase over the latest published version.
func checkVersionUnpublished(cmd *cobra.Command, c *client.CachingClient, id core.PackageId) error {
	res, err := c.GetRecords(cmd.Context(), id.Name, "", progressCallback(string(id.Name)))
	if err != nil {
		return fmt.Errorf("failed to fetch existing records: %w", err)
	}
	if res.Kind() != client.ResourceDownload {
		return nil // first publish of this package
	}

	records := res.Resource()
	if rec := records.FindVersion(id.Version); rec != nil {
		return fmt.Errorf("version %s of '%s' is already published", id.Version, id.Name)
	}
	latest, err := latestVersion(records)
	if err != nil {
		return nil
	}
	return version.ValidateVersionIncrease(latest, id.Version)
}
