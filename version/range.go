package version

import (
	"fmt"
	"strings"
)

// Range represents a range of acceptable versions.
//
// Syntax:
//
//	[1.0, 2.0]   - 1.0 ≤ x ≤ 2.0 (inclusive)
//	(1.0, 2.0)   - 1.0 < x < 2.0 (exclusive)
//	[1.0, 2.0)   - 1.0 ≤ x < 2.0 (mixed)
//	[1.0, )      - x ≥ 1.0 (open upper)
//	(, 2.0]      - x ≤ 2.0 (open lower)
//	[1.0]        - x == 1.0 (exact)
//	1.0          - x ≥ 1.0 (implicit minimum)
//	1.*          - highest 1.x available (floating)
type Range struct {
	MinVersion   *NuGetVersion
	MaxVersion   *NuGetVersion
	MinInclusive bool
	MaxInclusive bool

	// Float is set for floating ranges; MinVersion mirrors its fixed prefix.
	Float *FloatRange
}

// ParseVersionRange parses a version range string.
func ParseVersionRange(s string) (*Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("version range cannot be empty")
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "(") {
		return parseRangeSyntax(s)
	}

	if IsFloatRange(s) {
		f, err := ParseFloatRange(s)
		if err != nil {
			return nil, fmt.Errorf("invalid version range: %w", err)
		}
		r := &Range{Float: f, MinInclusive: true}
		if f.MinVersion != nil {
			// Prerelease floats start below the release they name.
			r.MinVersion = &NuGetVersion{
				Major:    f.MinVersion.Major,
				Minor:    f.MinVersion.Minor,
				Patch:    f.MinVersion.Patch,
				Revision: f.MinVersion.Revision,
			}
			if f.FloatBehavior == FloatPrerelease {
				r.MinVersion.ReleaseLabels = []string{"0"}
			}
		}
		return r, nil
	}

	v, err := Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version range: %w", err)
	}

	return &Range{
		MinVersion:   v,
		MinInclusive: true,
	}, nil
}

// MustParseRange parses a version range string and panics on error.
// Use this only when you know the range string is valid.
func MustParseRange(s string) *Range {
	r, err := ParseVersionRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// NewExactRange returns the range [v].
func NewExactRange(v *NuGetVersion) *Range {
	return &Range{MinVersion: v, MaxVersion: v, MinInclusive: true, MaxInclusive: true}
}

// parseRangeSyntax parses bracket range syntax like [1.0, 2.0).
func parseRangeSyntax(s string) (*Range, error) {
	if !strings.HasSuffix(s, "]") && !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("range must end with ] or )")
	}

	minInclusive := strings.HasPrefix(s, "[")
	maxInclusive := strings.HasSuffix(s, "]")

	parts := strings.Split(s[1:len(s)-1], ",")

	var minPart, maxPart string
	switch len(parts) {
	case 1:
		// [1.0.0] is an exact match; (1.0.0) is meaningless
		minPart = strings.TrimSpace(parts[0])
		maxPart = minPart
		if !minInclusive || !maxInclusive || minPart == "" {
			return nil, fmt.Errorf("invalid exact range %q", s)
		}
	case 2:
		minPart = strings.TrimSpace(parts[0])
		maxPart = strings.TrimSpace(parts[1])
	default:
		return nil, fmt.Errorf("range must have one or two parts separated by comma")
	}

	r := &Range{
		MinInclusive: minInclusive,
		MaxInclusive: maxInclusive,
	}

	var err error
	if minPart != "" {
		if r.MinVersion, err = Parse(minPart); err != nil {
			return nil, fmt.Errorf("invalid min version: %w", err)
		}
	}
	if maxPart != "" {
		if r.MaxVersion, err = Parse(maxPart); err != nil {
			return nil, fmt.Errorf("invalid max version: %w", err)
		}
	}

	if r.MinVersion != nil && r.MaxVersion != nil {
		c := r.MinVersion.Compare(r.MaxVersion)
		if c > 0 || (c == 0 && (!minInclusive || !maxInclusive)) {
			return nil, fmt.Errorf("range %q is empty", s)
		}
	}

	return r, nil
}

// IsFloating reports whether the range resolves to the highest matching version.
func (r *Range) IsFloating() bool {
	return r.Float != nil
}

// IsFixed reports whether the range pins exactly one version ([x]).
func (r *Range) IsFixed() bool {
	return r.Float == nil && r.MinVersion != nil && r.MaxVersion != nil &&
		r.MinInclusive && r.MaxInclusive && r.MinVersion.Equal(r.MaxVersion)
}

// AllowsPrerelease reports whether prerelease versions are eligible best matches.
func (r *Range) AllowsPrerelease() bool {
	if r.Float != nil {
		return r.Float.FloatBehavior == FloatPrerelease
	}
	return (r.MinVersion != nil && r.MinVersion.IsPrerelease()) ||
		(r.MaxVersion != nil && r.MaxVersion.IsPrerelease())
}

// Satisfies returns true if the version satisfies this range.
func (r *Range) Satisfies(v *NuGetVersion) bool {
	if v == nil {
		return false
	}

	if r.Float != nil {
		return r.Float.Satisfies(v)
	}

	if r.MinVersion != nil {
		cmp := v.Compare(r.MinVersion)
		if cmp < 0 || (cmp == 0 && !r.MinInclusive) {
			return false
		}
	}

	if r.MaxVersion != nil {
		cmp := v.Compare(r.MaxVersion)
		if cmp > 0 || (cmp == 0 && !r.MaxInclusive) {
			return false
		}
	}

	return true
}

// IsBelowMinimum reports whether v violates the lower bound of the range.
func (r *Range) IsBelowMinimum(v *NuGetVersion) bool {
	if r.MinVersion == nil {
		return false
	}
	cmp := v.Compare(r.MinVersion)
	return cmp < 0 || (cmp == 0 && !r.MinInclusive)
}

// IsAboveMaximum reports whether v violates the upper bound of the range.
func (r *Range) IsAboveMaximum(v *NuGetVersion) bool {
	if r.Float != nil {
		return !r.IsBelowMinimum(v) && !r.Float.Satisfies(v)
	}
	if r.MaxVersion == nil {
		return false
	}
	cmp := v.Compare(r.MaxVersion)
	return cmp > 0 || (cmp == 0 && !r.MaxInclusive)
}

// FindBestMatch selects the version a restore would pick from versions.
//
// Floating ranges pick the highest satisfying version. Other ranges pick the
// lowest satisfying version, the one nearest to the declared minimum.
// Prerelease versions are skipped unless the range opts into them.
// Returns nil if no version satisfies the range.
func (r *Range) FindBestMatch(versions []*NuGetVersion) *NuGetVersion {
	allowPrerelease := r.AllowsPrerelease()

	var best *NuGetVersion
	for _, v := range versions {
		if !r.Satisfies(v) || (v.IsPrerelease() && !allowPrerelease) {
			continue
		}
		switch {
		case best == nil:
			best = v
		case r.Float != nil && v.GreaterThan(best):
			best = v
		case r.Float == nil && v.LessThan(best):
			best = v
		}
	}

	return best
}

// String returns the normalized string representation of the range.
func (r *Range) String() string {
	if r.Float != nil {
		return r.Float.String()
	}

	if r.IsFixed() {
		return "[" + r.MinVersion.ToNormalizedString() + "]"
	}

	minBracket := "("
	if r.MinInclusive {
		minBracket = "["
	}
	maxBracket := ")"
	if r.MaxInclusive {
		maxBracket = "]"
	}

	minStr := ""
	if r.MinVersion != nil {
		minStr = r.MinVersion.ToNormalizedString()
	}

	maxStr := ""
	if r.MaxVersion != nil {
		maxStr = r.MaxVersion.ToNormalizedString()
	}

	return fmt.Sprintf("%s%s, %s%s", minBracket, minStr, maxStr, maxBracket)
}
