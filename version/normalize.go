package version

import (
	"fmt"
	"slices"
)

// Normalize parses a version string and returns its normalized form.
//
// Examples:
//   - "1.01.1" → "1.1.1"
//   - "1" → "1.0.0"
//   - "1.0.0.0" → "1.0.0"
//   - "1.0.0+build" → "1.0.0"
func Normalize(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", fmt.Errorf("cannot normalize invalid version: %w", err)
	}
	return v.ToNormalizedString(), nil
}

// NormalizeOrOriginal attempts to normalize a version string.
// If normalization fails, returns the original string.
func NormalizeOrOriginal(s string) string {
	normalized, err := Normalize(s)
	if err != nil {
		return s
	}
	return normalized
}

// Sort orders versions ascending by precedence; equal versions keep their order.
func Sort(versions []*NuGetVersion) {
	slices.SortStableFunc(versions, func(a, b *NuGetVersion) int {
		return a.Compare(b)
	})
}

// Dedupe returns versions sorted ascending with equal-precedence duplicates removed.
func Dedupe(versions []*NuGetVersion) []*NuGetVersion {
	out := slices.Clone(versions)
	Sort(out)
	return slices.CompactFunc(out, func(a, b *NuGetVersion) bool {
		return a.Equal(b)
	})
}
