// Package pack creates and extracts the .tar.zst archives exchanged with
// registries.
package pack

import (
	"archive/tar"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zstd"
)

// ArchiveInfo contains information about a created archive
type ArchiveInfo struct {
	Path      string
	SHA256    string
	SizeBytes int64
}

// Pack creates a tar.zst archive from file patterns rooted at baseDir.
func Pack(baseDir string, patterns []string, outputPath string) (*ArchiveInfo, error) {
	// Collect all files matching the patterns
	var files []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(baseDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to match pattern %s: %w", pattern, err)
		}

		for _, match := range matches {
			// Skip directories
			if info, err := os.Stat(match); err != nil || info.IsDir() {
				continue
			}

			rel, err := filepath.Rel(baseDir, match)
			if err != nil {
				return nil, err
			}
			if !seen[rel] {
				files = append(files, rel)
				seen[rel] = true
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files matched the specified patterns")
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	// Do not leave a partial archive behind on failure.
	fail := func(err error) (*ArchiveInfo, error) {
		outFile.Close()
		os.Remove(outputPath)
		return nil, err
	}

	hasher := sha256.New()
	multiWriter := io.MultiWriter(outFile, hasher)

	zstWriter, err := zstd.NewWriter(multiWriter)
	if err != nil {
		return fail(err)
	}
	tarWriter := tar.NewWriter(zstWriter)

	for _, rel := range files {
		if err := addFileToArchive(tarWriter, baseDir, rel); err != nil {
			return fail(fmt.Errorf("failed to add file %s: %w", rel, err))
		}
	}

	// Flush everything before reading back the hash and size.
	if err := tarWriter.Close(); err != nil {
		return fail(err)
	}
	if err := zstWriter.Close(); err != nil {
		return fail(err)
	}
	if err := outFile.Close(); err != nil {
		return fail(err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	return &ArchiveInfo{
		Path:      outputPath,
		SHA256:    fmt.Sprintf("%x", hasher.Sum(nil)),
		SizeBytes: info.Size(),
	}, nil
}

// addFileToArchive adds a single file to the tar archive
func addFileToArchive(tarWriter *tar.Writer, baseDir, rel string) error {
	file, err := os.Open(filepath.Join(baseDir, rel))
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}

	// Use forward slashes in archive
	header.Name = filepath.ToSlash(rel)

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}

// Unpack extracts a tar.zst archive to a destination directory
func Unpack(archivePath string, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	zstReader, err := zstd.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zstReader.Close()

	tarReader := tar.NewReader(zstReader)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		if err := extractFile(tarReader, header, destDir); err != nil {
			return fmt.Errorf("failed to extract file %s: %w", header.Name, err)
		}
	}

	return nil
}

// extractFile extracts a single file from tar archive
func extractFile(tarReader *tar.Reader, header *tar.Header, destDir string) error {
	// Clean the file path to prevent directory traversal
	cleanName := filepath.Clean(header.Name)
	if strings.Contains(cleanName, "..") {
		return fmt.Errorf("invalid file path: %s", header.Name)
	}

	destPath := filepath.Join(destDir, cleanName)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	outFile, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, tarReader)
	return err
}

// CalculateSHA256 calculates SHA256 hash of a file
func CalculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
