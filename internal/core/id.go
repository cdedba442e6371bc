package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PackageId identifies one fetchable artifact: a package name plus a
// resolved version and the registry it was resolved against.
type PackageId struct {
	Name    PackageName
	Version string
	// SourceURL identifies the registry this id was resolved against.
	SourceURL string
}

// NewPackageId validates the parts and assembles a PackageId.
func NewPackageId(name, version, sourceURL string) (PackageId, error) {
	pkgName, err := NewPackageName(name)
	if err != nil {
		return PackageId{}, err
	}
	if err := ValidVersion(version); err != nil {
		return PackageId{}, err
	}
	return PackageId{Name: pkgName, Version: version, SourceURL: sourceURL}, nil
}

func (id PackageId) String() string {
	if id.SourceURL == "" {
		return fmt.Sprintf("%s v%s", id.Name, id.Version)
	}
	return fmt.Sprintf("%s v%s (%s)", id.Name, id.Version, id.SourceURL)
}

// Tarball returns the canonical archive file name for this package id.
func (id PackageId) Tarball() string {
	return fmt.Sprintf("%s-%s.tar.zst", id.Name.Slug(), id.Version)
}

// Slug returns a filesystem-safe form of the name (scoped names contain '/').
func (n PackageName) Slug() string {
	slug := make([]byte, 0, len(n))
	for i := 0; i < len(n); i++ {
		switch c := n[i]; c {
		case '/', '@':
			if c == '/' {
				slug = append(slug, '_')
			}
		default:
			slug = append(slug, c)
		}
	}
	return string(slug)
}

// SourceIdent returns a short stable identifier for a registry URL, used to
// namespace cache directories per source.
func SourceIdent(sourceURL string) string {
	h := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(h[:8])
}
