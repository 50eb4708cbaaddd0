package version

import (
	"fmt"
	"strings"
)

// FloatBehavior defines how floating versions behave.
type FloatBehavior int

const (
	// FloatNone means no floating
	FloatNone FloatBehavior = iota

	// FloatPrerelease floats to latest prerelease: 1.0.0-*
	FloatPrerelease

	// FloatRevision floats to latest revision: 1.0.0.*
	FloatRevision

	// FloatPatch floats to latest patch: 1.0.*
	FloatPatch

	// FloatMinor floats to latest minor: 1.*
	FloatMinor

	// FloatMajor floats to latest major: *
	FloatMajor
)

// String returns the string representation of FloatBehavior.
func (f FloatBehavior) String() string {
	switch f {
	case FloatNone:
		return "none"
	case FloatPrerelease:
		return "prerelease"
	case FloatRevision:
		return "revision"
	case FloatPatch:
		return "patch"
	case FloatMinor:
		return "minor"
	case FloatMajor:
		return "major"
	default:
		return "unknown"
	}
}

// FloatRange represents a floating version range. MinVersion holds the fixed
// prefix padded with zeros; it is nil for "*".
type FloatRange struct {
	MinVersion    *NuGetVersion
	FloatBehavior FloatBehavior

	// prefix is the label text preceding "-*" for prerelease floats ("1.0.0-beta*").
	prefix string
}

// ParseFloatRange parses floating version ranges like 1.0.*, 1.0.0-*, or *.
func ParseFloatRange(s string) (*FloatRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("float range cannot be empty")
	}

	if s == "*" {
		return &FloatRange{FloatBehavior: FloatMajor}, nil
	}

	if !strings.HasSuffix(s, "*") || strings.Count(s, "*") != 1 {
		return nil, fmt.Errorf("float range must end with a single wildcard: %s", s)
	}

	// Prerelease float: 1.0.0-* or 1.0.0-beta*
	if numberPart, label, ok := strings.Cut(s, "-"); ok {
		v, err := Parse(numberPart)
		if err != nil {
			return nil, fmt.Errorf("invalid float range: %w", err)
		}
		return &FloatRange{
			MinVersion:    v,
			FloatBehavior: FloatPrerelease,
			prefix:        strings.TrimSuffix(label, "*"),
		}, nil
	}

	parts := strings.Split(s, ".")
	if parts[len(parts)-1] != "*" {
		return nil, fmt.Errorf("invalid float range: %s", s)
	}

	var behavior FloatBehavior
	switch len(parts) - 1 {
	case 1:
		behavior = FloatMinor
	case 2:
		behavior = FloatPatch
	case 3:
		behavior = FloatRevision
	default:
		return nil, fmt.Errorf("invalid wildcard position in: %s", s)
	}

	v, err := Parse(strings.Join(parts[:len(parts)-1], "."))
	if err != nil {
		return nil, fmt.Errorf("invalid float range: %w", err)
	}

	return &FloatRange{
		MinVersion:    v,
		FloatBehavior: behavior,
	}, nil
}

// IsFloatRange reports whether s uses floating syntax.
func IsFloatRange(s string) bool {
	return strings.Contains(s, "*")
}

// Satisfies returns true if the version falls inside the floating window.
func (f *FloatRange) Satisfies(v *NuGetVersion) bool {
	if v == nil {
		return false
	}

	if f.FloatBehavior == FloatMajor || f.MinVersion == nil {
		return !v.IsPrerelease()
	}

	switch f.FloatBehavior {
	case FloatPrerelease:
		if v.Major != f.MinVersion.Major || v.Minor != f.MinVersion.Minor ||
			v.Patch != f.MinVersion.Patch || v.Revision != f.MinVersion.Revision {
			return false
		}
		if !v.IsPrerelease() {
			return true
		}
		return strings.HasPrefix(strings.ToLower(strings.Join(v.ReleaseLabels, ".")), strings.ToLower(f.prefix))
	case FloatRevision:
		return !v.IsPrerelease() && v.Major == f.MinVersion.Major &&
			v.Minor == f.MinVersion.Minor && v.Patch == f.MinVersion.Patch
	case FloatPatch:
		return !v.IsPrerelease() && v.Major == f.MinVersion.Major && v.Minor == f.MinVersion.Minor
	case FloatMinor:
		return !v.IsPrerelease() && v.Major == f.MinVersion.Major
	default:
		return false
	}
}

// FindBestMatch finds the highest version that satisfies this floating range.
func (f *FloatRange) FindBestMatch(versions []*NuGetVersion) *NuGetVersion {
	var best *NuGetVersion
	for _, v := range versions {
		if f.Satisfies(v) && (best == nil || v.GreaterThan(best)) {
			best = v
		}
	}
	return best
}

// String returns the string representation of the floating range.
func (f *FloatRange) String() string {
	if f.MinVersion == nil {
		return "*"
	}

	switch f.FloatBehavior {
	case FloatPrerelease:
		return f.MinVersion.ToNormalizedString() + "-" + f.prefix + "*"
	case FloatRevision:
		return fmt.Sprintf("%d.%d.%d.*", f.MinVersion.Major, f.MinVersion.Minor, f.MinVersion.Patch)
	case FloatPatch:
		return fmt.Sprintf("%d.%d.*", f.MinVersion.Major, f.MinVersion.Minor)
	case FloatMinor:
		return fmt.Sprintf("%d.*", f.MinVersion.Major)
	default:
		return "*"
	}
}
