package resolver

import (
	"fmt"
	"strings"
)

// NuGetErrorCode is the diagnostic code attached to a resolution failure.
type NuGetErrorCode string

const (
	// NU1101 - No versions of package exist on any configured source
	NU1101 NuGetErrorCode = "NU1101"

	// NU1102 - Package exists but no version matches the requested range
	NU1102 NuGetErrorCode = "NU1102"

	// NU1103 - Only prerelease versions available when stable requested
	NU1103 NuGetErrorCode = "NU1103"

	// NU1107 - Version conflict between fixed requests at equal depth
	NU1107 NuGetErrorCode = "NU1107"

	// NU1108 - Cycle detected
	NU1108 NuGetErrorCode = "NU1108"

	// NU1605 - Package downgrade
	NU1605 NuGetErrorCode = "NU1605"

	// NU1608 - Resolved version outside of a dependency constraint
	NU1608 NuGetErrorCode = "NU1608"
)

// PackageNotFoundError reports a dependency no source can satisfy.
type PackageNotFoundError struct {
	Code              NuGetErrorCode
	PackageID         string
	VersionRange      string
	TargetEnvironment string
	Sources           []string

	// AvailableVersions and NearestVersion are set for NU1102 and NU1103.
	AvailableVersions []string
	NearestVersion    string
}

func (e *PackageNotFoundError) Error() string {
	switch e.Code {
	case NU1101:
		return fmt.Sprintf("Unable to find package %s. No packages exist with this id in source(s): %s",
			e.PackageID, strings.Join(e.Sources, ", "))
	case NU1103:
		return fmt.Sprintf("Unable to find a stable package %s with version %s. Found %d version(s) in %s [ Nearest version: %s ]",
			e.PackageID, e.VersionRange, len(e.AvailableVersions), strings.Join(e.Sources, ", "), e.NearestVersion)
	default:
		return fmt.Sprintf("Unable to find package %s with version %s. Found %d version(s) in %s [ Nearest version: %s ]",
			e.PackageID, e.VersionRange, len(e.AvailableVersions), strings.Join(e.Sources, ", "), e.NearestVersion)
	}
}

// ConflictingRequest is one side of a VersionConflictError.
type ConflictingRequest struct {
	VersionRange string
	Path         []string
}

// VersionConflictError reports fixed requests for one id that cannot all be
// satisfied and none of which is nearer than the others.
type VersionConflictError struct {
	PackageID         string
	TargetEnvironment string
	Requests          []ConflictingRequest
}

func (e *VersionConflictError) Error() string {
	parts := make([]string, 0, len(e.Requests))
	for _, r := range e.Requests {
		parts = append(parts, strings.Join(r.Path, " -> ")+" -> "+e.PackageID+" "+r.VersionRange)
	}
	return fmt.Sprintf("Version conflict detected for %s. Install/reference %s directly to resolve this issue. %s",
		e.PackageID, e.PackageID, strings.Join(parts, " | "))
}

// CyclicDependencyError reports a dependency that recurs on its own path.
type CyclicDependencyError struct {
	TargetEnvironment string

	// Members are the library ids on the cycle in discovery order.
	Members []string
}

func (e *CyclicDependencyError) Error() string {
	chain := append(append([]string{}, e.Members...), e.Members[0])
	return fmt.Sprintf("Cycle detected. %s", strings.Join(chain, " -> "))
}

// DowngradeError is returned in strict mode when any downgrade was detected.
type DowngradeError struct {
	Downgrades []DowngradeWarning
}

func (e *DowngradeError) Error() string {
	if len(e.Downgrades) == 1 {
		return e.Downgrades[0].String()
	}
	lines := make([]string, 0, len(e.Downgrades))
	for _, d := range e.Downgrades {
		lines = append(lines, d.String())
	}
	return fmt.Sprintf("%d package downgrades detected:\n  %s", len(e.Downgrades), strings.Join(lines, "\n  "))
}

// PackageIDs returns the ids implicated by the downgrades.
func (e *DowngradeError) PackageIDs() []string {
	ids := make([]string, 0, len(e.Downgrades))
	for _, d := range e.Downgrades {
		ids = append(ids, d.PackageID)
	}
	return ids
}
