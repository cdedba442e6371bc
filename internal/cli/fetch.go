package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cairn/internal/client"
	"cairn/internal/core"
	"cairn/internal/lock"
	"cairn/internal/pack"
)

var fetchOutput string

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <package>[@version]",
	Short: "Download a package archive from the registry",
	Long: `Download a package archive from the active registry into the local
cache and unpack it. Without an explicit version the highest published
version is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(cmd, args[0])
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "directory to unpack into (default: ./<name>)")
}

func runFetch(cmd *cobra.Command, spec string) error {
	name, ver, err := parsePackageSpec(spec)
	if err != nil {
		return err
	}

	c, reg, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()

	if ver == "" {
		res, err := c.GetRecords(ctx, name, "", progressCallback(string(name)))
		if err != nil {
			return fmt.Errorf("failed to fetch records: %w", err)
		}
		if res.Kind() == client.ResourceNotFound {
			return fmt.Errorf("package '%s' not found in registry", name)
		}
		ver, err = latestVersion(res.Resource())
		if err != nil {
			return fmt.Errorf("package '%s': %w", name, err)
		}
		log.Debugf("resolved %s to version %s", name, ver)
	}

	id, err := core.NewPackageId(string(name), ver, reg.URL)
	if err != nil {
		return err
	}

	res, err := c.Download(ctx, id, "", progressCallback(id.String()), scratchCallback(id))
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", id, err)
	}
	if res.Kind() == client.ResourceNotFound {
		return fmt.Errorf("%s not found in registry", id)
	}

	guard := res.Resource()
	defer guard.Close()

	dest := fetchOutput
	if dest == "" {
		dest = filepath.Base(string(name))
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := pack.Unpack(guard.Path(), dest); err != nil {
		return fmt.Errorf("failed to unpack archive: %w", err)
	}

	if err := pinFetched(id, guard.Path()); err != nil {
		log.WithError(err).Warn("failed to update lockfile")
	}

	fmt.Printf("✅ Fetched %s\n", id)
	fmt.Printf("📁 Unpacked to %s\n", dest)

	return nil
}

// pinFetched records the fetched version and archive checksum in cairn.lock.
func pinFetched(id core.PackageId, archivePath string) error {
	sum, err := pack.CalculateSHA256(archivePath)
	if err != nil {
		return err
	}

	lf, err := lock.Load(lock.FileName)
	if err != nil {
		return err
	}
	lf.Pin(string(id.Name), lock.Entry{
		Version: id.Version,
		SHA256:  sum,
		Source:  id.SourceURL,
	})
	return lf.Save(lock.FileName)
}
