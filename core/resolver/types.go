package resolver

import (
	"fmt"
	"strings"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/version"
)

// DependencyType is the discriminant of a LibraryDependency.
type DependencyType int

const (
	// DependencyPackage resolves against package sources.
	DependencyPackage DependencyType = iota
	// DependencyProject resolves against another project in the same restore.
	DependencyProject
	// DependencyFrameworkReference is recorded on the graph but never resolved.
	DependencyFrameworkReference
)

func (t DependencyType) String() string {
	switch t {
	case DependencyPackage:
		return "package"
	case DependencyProject:
		return "project"
	case DependencyFrameworkReference:
		return "framework-reference"
	default:
		return "unknown"
	}
}

// ParseDependencyType parses the persisted form produced by String.
// An empty string is a package dependency.
func ParseDependencyType(s string) (DependencyType, error) {
	switch strings.ToLower(s) {
	case "", "package":
		return DependencyPackage, nil
	case "project":
		return DependencyProject, nil
	case "framework-reference", "frameworkreference":
		return DependencyFrameworkReference, nil
	default:
		return DependencyPackage, fmt.Errorf("unknown dependency type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t DependencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DependencyType) UnmarshalText(b []byte) error {
	v, err := ParseDependencyType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// PackageIdentity is a library id with its resolved version.
type PackageIdentity struct {
	ID      string
	Version *version.NuGetVersion
}

// Key returns the case-insensitive identity key "id/version".
func (p PackageIdentity) Key() string {
	return strings.ToLower(p.ID) + "/" + strings.ToLower(p.Version.ToNormalizedString())
}

// Equal compares ids case-insensitively and versions by precedence.
func (p PackageIdentity) Equal(other PackageIdentity) bool {
	return strings.EqualFold(p.ID, other.ID) && p.Version.Equal(other.Version)
}

// Compare orders by lowercase id, then version.
func (p PackageIdentity) Compare(other PackageIdentity) int {
	if c := strings.Compare(strings.ToLower(p.ID), strings.ToLower(other.ID)); c != 0 {
		return c
	}
	return p.Version.Compare(other.Version)
}

func (p PackageIdentity) String() string {
	return p.ID + " " + p.Version.ToNormalizedString()
}

// LibraryDependency is a dependency declared by a project or discovered in a
// package manifest.
type LibraryDependency struct {
	ID           string
	VersionRange string
	Type         DependencyType

	// Exclude drops these ids from the subtree expanded through this dependency.
	Exclude []string
}

func (d LibraryDependency) String() string {
	if d.VersionRange == "" {
		return d.ID
	}
	return d.ID + " " + d.VersionRange
}

// FromManifest converts manifest dependencies into package dependencies.
func FromManifest(deps []core.Dependency) []LibraryDependency {
	out := make([]LibraryDependency, 0, len(deps))
	for _, d := range deps {
		out = append(out, LibraryDependency{
			ID:           d.ID,
			VersionRange: d.Range,
			Type:         DependencyPackage,
			Exclude:      d.Exclude,
		})
	}
	return out
}

// ProjectInfo describes a referenced project as seen from one target environment.
type ProjectInfo struct {
	ID           string
	Version      *version.NuGetVersion
	Dependencies []LibraryDependency
}

// ProjectLookup resolves project-type dependencies.
type ProjectLookup interface {
	LookupProject(id, targetEnvironment string) (ProjectInfo, bool)
}

// ResolveRequest is the input for resolving one target environment.
type ResolveRequest struct {
	ProjectID      string
	ProjectVersion *version.NuGetVersion

	TargetEnvironment string
	Dependencies      []LibraryDependency

	// Sources are consulted in order.
	Sources []core.SourceRepository

	// Projects resolves project references; nil means none are expected.
	Projects ProjectLookup

	// LockedVersions pins lowercase ids to versions from an existing lock artifact.
	LockedVersions map[string]*version.NuGetVersion

	// Strict turns downgrades into DowngradeError.
	Strict bool
}

// DowngradeWarning records a farther request whose minimum lies above the
// version chosen by a nearer one (NU1605).
type DowngradeWarning struct {
	PackageID         string
	TargetEnvironment string
	ResolvedVersion   string
	RequestedRange    string

	// Path runs from the project to the node that made the farther request.
	Path []string
}

func (w DowngradeWarning) String() string {
	return fmt.Sprintf("Detected package downgrade: %s from %s to %s. Reference the package directly from the project to select a different version. %s -> %s %s",
		w.PackageID, w.RequestedRange, w.ResolvedVersion, strings.Join(w.Path, " -> "), w.PackageID, w.RequestedRange)
}

// ConstraintWarning records a farther request whose maximum lies below the
// version chosen by a nearer one (NU1608).
type ConstraintWarning struct {
	PackageID         string
	TargetEnvironment string
	ResolvedVersion   string
	RequestedRange    string
	Path              []string
}

func (w ConstraintWarning) String() string {
	return fmt.Sprintf("Detected package version outside of dependency constraint: %s requires %s (%s) but version %s %s was resolved.",
		lastOr(w.Path, "project"), w.PackageID, w.RequestedRange, w.PackageID, w.ResolvedVersion)
}

func lastOr(path []string, fallback string) string {
	if len(path) == 0 {
		return fallback
	}
	return path[len(path)-1]
}
