package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed semantic version.
type Version struct {
	Major int
	Minor int
	Patch int
	Pre   string // pre-release identifier, e.g. "alpha.2"
	Build string // build metadata, ignored in comparisons
}

// Parse parses a semantic version string.
func Parse(s string) (*Version, error) {
	if s == "" {
		return nil, fmt.Errorf("version cannot be empty")
	}

	var build string
	if idx := strings.Index(s, "+"); idx != -1 {
		build = s[idx+1:]
		s = s[:idx]
	}

	var pre string
	if idx := strings.Index(s, "-"); idx != -1 {
		pre = s[idx+1:]
		s = s[:idx]
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid version format: expected x.y.z, got %s", s)
	}

	nums := make([]int, 3)
	for i, label := range []string{"major", "minor", "patch"} {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s version: %s", label, parts[i])
		}
		nums[i] = n
	}

	return &Version{
		Major: nums[0],
		Minor: nums[1],
		Patch: nums[2],
		Pre:   pre,
		Build: build,
	}, nil
}

func (v *Version) String() string {
	result := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		result += "-" + v.Pre
	}
	if v.Build != "" {
		result += "+" + v.Build
	}
	return result
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other.
func (v *Version) Compare(other *Version) int {
	if v.Major != other.Major {
		if v.Major > other.Major {
			return 1
		}
		return -1
	}
	if v.Minor != other.Minor {
		if v.Minor > other.Minor {
			return 1
		}
		return -1
	}
	if v.Patch != other.Patch {
		if v.Patch > other.Patch {
			return 1
		}
		return -1
	}

	// Per semver, 1.0.0-alpha < 1.0.0.
	if v.Pre == "" && other.Pre != "" {
		return 1
	}
	if v.Pre != "" && other.Pre == "" {
		return -1
	}
	if v.Pre != other.Pre {
		if v.Pre > other.Pre {
			return 1
		}
		return -1
	}

	return 0
}

// IsGreaterThan returns true if v > other
func (v *Version) IsGreaterThan(other *Version) bool {
	return v.Compare(other) > 0
}

// IsLessThan returns true if v < other
func (v *Version) IsLessThan(other *Version) bool {
	return v.Compare(other) < 0
}

// IsEqual returns true if v == other (ignoring build metadata)
func (v *Version) IsEqual(other *Version) bool {
	return v.Compare(other) == 0
}

// CompareVersions compares two version strings.
func CompareVersions(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version %s: %w", a, err)
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version %s: %w", b, err)
	}
	return va.Compare(vb), nil
}

// IsValidVersion checks if a string is a valid semantic version
func IsValidVersion(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// ValidateVersionIncrease ensures newVersion is greater than currentVersion.
func ValidateVersionIncrease(currentVersion, newVersion string) error {
	current, err := Parse(currentVersion)
	if err != nil {
		return fmt.Errorf("invalid current version %s: %w", currentVersion, err)
	}

	next, err := Parse(newVersion)
	if err != nil {
		return fmt.Errorf("invalid new version %s: %w", newVersion, err)
	}

	if !next.IsGreaterThan(current) {
		return fmt.Errorf("new version %s must be greater than current version %s", newVersion, currentVersion)
	}

	return nil
}
