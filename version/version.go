// Package version provides NuGet version parsing, comparison and ranges.
//
// It supports both NuGet SemVer 2.0 format and legacy 4-part versions.
//
// Example:
//
//	v, err := version.Parse("1.2.3-beta.1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(v.Major, v.Minor, v.Patch) // 1 2 3
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// NuGetVersion represents a package version.
//
// It supports both SemVer 2.0 format (Major.Minor.Patch[-Prerelease][+Metadata])
// and legacy 4-part versions (Major.Minor.Build.Revision).
type NuGetVersion struct {
	Major    int
	Minor    int
	Patch    int
	Revision int

	// IsLegacyVersion indicates this is a 4-part version, not SemVer 2.0
	IsLegacyVersion bool

	// ReleaseLabels contains prerelease labels (e.g., ["beta", "1"] for "1.0.0-beta.1")
	ReleaseLabels []string

	// Metadata is ignored in comparison per SemVer 2.0
	Metadata string
}

// Parse parses a version string into a NuGetVersion.
//
// Supported formats:
//   - SemVer 2.0: Major.Minor.Patch[-Prerelease][+Metadata]
//   - Legacy: Major.Minor.Build.Revision
//   - Short: Major or Major.Minor (missing parts are zero)
func Parse(s string) (*NuGetVersion, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("version string cannot be empty")
	}

	v := &NuGetVersion{}

	versionPart, metadata, hasMetadata := strings.Cut(s, "+")
	if hasMetadata {
		if metadata == "" {
			return nil, fmt.Errorf("invalid version %q: empty metadata", s)
		}
		v.Metadata = metadata
	}

	numberPart, labels, hasLabels := strings.Cut(versionPart, "-")
	if hasLabels {
		if labels == "" {
			return nil, fmt.Errorf("invalid version %q: empty prerelease label", s)
		}
		v.ReleaseLabels = strings.Split(labels, ".")
		for _, label := range v.ReleaseLabels {
			if label == "" {
				return nil, fmt.Errorf("invalid version %q: empty prerelease label", s)
			}
		}
	}

	numbers := strings.Split(numberPart, ".")
	if len(numbers) > 4 {
		return nil, fmt.Errorf("invalid version format: %q", s)
	}

	parts := make([]int, 4)
	for i, n := range numbers {
		value, err := strconv.Atoi(n)
		if err != nil || value < 0 {
			return nil, fmt.Errorf("invalid version %q: bad numeric part %q", s, n)
		}
		parts[i] = value
	}

	v.Major, v.Minor, v.Patch, v.Revision = parts[0], parts[1], parts[2], parts[3]
	v.IsLegacyVersion = len(numbers) == 4

	return v, nil
}

// MustParse parses a version string and panics on error.
// Use this only when you know the version string is valid.
func MustParse(s string) *NuGetVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsPrerelease reports whether the version carries release labels.
func (v *NuGetVersion) IsPrerelease() bool {
	return len(v.ReleaseLabels) > 0
}

// Compare returns -1, 0 or 1 comparing v to other.
// Build metadata does not participate.
func (v *NuGetVersion) Compare(other *NuGetVersion) int {
	switch {
	case v == nil && other == nil:
		return 0
	case v == nil:
		return -1
	case other == nil:
		return 1
	}

	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	if c := compareInt(v.Revision, other.Revision); c != 0 {
		return c
	}

	return compareReleaseLabels(v.ReleaseLabels, other.ReleaseLabels)
}

// Equal reports whether both versions have the same precedence.
func (v *NuGetVersion) Equal(other *NuGetVersion) bool {
	return v.Compare(other) == 0
}

// LessThan reports whether v sorts before other.
func (v *NuGetVersion) LessThan(other *NuGetVersion) bool {
	return v.Compare(other) < 0
}

// GreaterThan reports whether v sorts after other.
func (v *NuGetVersion) GreaterThan(other *NuGetVersion) bool {
	return v.Compare(other) > 0
}

// String returns the normalized form of the version including metadata.
func (v *NuGetVersion) String() string {
	s := v.ToNormalizedString()
	if v.Metadata != "" {
		s += "+" + v.Metadata
	}
	return s
}

// ToNormalizedString returns the canonical form used for identity and file paths:
// three numeric parts (four when a revision is present), release labels, no metadata.
func (v *NuGetVersion) ToNormalizedString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Revision > 0 {
		fmt.Fprintf(&b, ".%d", v.Revision)
	}
	if len(v.ReleaseLabels) > 0 {
		b.WriteString("-")
		b.WriteString(strings.Join(v.ReleaseLabels, "."))
	}
	return b.String()
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareReleaseLabels applies SemVer 2.0 precedence: a release sorts after any
// prerelease; numeric labels sort before alphanumeric ones and compare numerically;
// alphanumeric labels compare case-insensitively; a shorter label list sorts first.
func compareReleaseLabels(a, b []string) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return 1
	case len(b) == 0:
		return -1
	}

	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareLabel(a[i], b[i]); c != 0 {
			return c
		}
	}

	return compareInt(len(a), len(b))
}

func compareLabel(a, b string) int {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	aNumeric, bNumeric := aErr == nil, bErr == nil

	switch {
	case aNumeric && bNumeric:
		return compareInt(an, bn)
	case aNumeric:
		return -1
	case bNumeric:
		return 1
	}

	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
