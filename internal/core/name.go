package core

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidName    = errors.New("invalid package name")
	ErrInvalidVersion = errors.New("invalid version")
)

// nameRegex matches valid package names (with or without scope)
var nameRegex = regexp.MustCompile(`^(@[a-z0-9][a-z0-9\-_]*\/)?[a-z0-9][a-z0-9\-_]*$`)

// versionRegex matches semantic versions
var versionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9\-.]+)?(\+[a-zA-Z0-9\-.]+)?$`)

// PackageName is the unique, human-readable identifier of a package within
// a registry namespace.
type PackageName string

// NewPackageName validates name and returns it as a PackageName.
func NewPackageName(name string) (PackageName, error) {
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if !nameRegex.MatchString(name) {
		return "", fmt.Errorf("%w: %q must be lowercase alphanumeric with optional @scope/ prefix", ErrInvalidName, name)
	}
	return PackageName(name), nil
}

func (n PackageName) String() string {
	return string(n)
}

// ValidVersion reports whether version is an acceptable semantic version.
func ValidVersion(version string) error {
	if version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidVersion)
	}
	if !versionRegex.MatchString(version) {
		return fmt.Errorf("%w: %q must be semantic version (x.y.z)", ErrInvalidVersion, version)
	}
	return nil
}
