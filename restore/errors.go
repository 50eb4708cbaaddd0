package restore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/core/resolver"
)

// ErrorKind classifies a restore diagnostic.
type ErrorKind string

const (
	KindInvalidSpec       ErrorKind = "invalid-spec"
	KindPackageNotFound   ErrorKind = "package-not-found"
	KindVersionConflict   ErrorKind = "version-conflict"
	KindCycle             ErrorKind = "cycle"
	KindDowngrade         ErrorKind = "downgrade"
	KindConstraint        ErrorKind = "constraint"
	KindLockFileDrift     ErrorKind = "lock-file-drift"
	KindCorruptLockFile   ErrorKind = "corrupt-lock-file"
	KindSourceUnavailable ErrorKind = "source-unavailable"
	KindCancelled         ErrorKind = "cancelled"
	KindInternal          ErrorKind = "internal"
)

// Diagnostic codes that are not produced by the resolver.
const (
	// NU1004 - Locked mode resolution differs from the lock file
	ErrorCodeLockFileDrift = "NU1004"

	// NU1005 - Lock file fingerprint does not match its content
	ErrorCodeCorruptLockFile = "NU1005"

	// NU1105 - Unable to read project information
	ErrorCodeInvalidSpec = "NU1105"

	// NU1301 - Source could not be reached within the retry budget
	ErrorCodeSourceUnavailable = "NU1301"
)

// Diagnostic levels.
const (
	LevelError   = "Error"
	LevelWarning = "Warning"
)

// NuGetError is a structured diagnostic attached to a RestoreSummary.
type NuGetError struct {
	Code              string    `json:"code,omitempty"`
	Level             string    `json:"level"`
	Kind              ErrorKind `json:"kind"`
	Message           string    `json:"message"`
	ProjectPath       string    `json:"projectPath,omitempty"`
	LibraryIDs        []string  `json:"libraryIds,omitempty"`
	TargetEnvironment string    `json:"targetEnvironment,omitempty"`
}

// Error implements the error interface.
func (e *NuGetError) Error() string {
	return e.FormatError(false)
}

// FormatError renders the diagnostic the way dotnet does:
//
//	/path/app.yaml : error NU1101: Unable to find package X.
//
// When colorize is true the level and code are highlighted.
func (e *NuGetError) FormatError(colorize bool) string {
	level := strings.ToLower(e.Level)
	if level == "" {
		level = "error"
	}

	tag := level
	if e.Code != "" {
		tag = level + " " + e.Code
	}
	if colorize {
		c := color.New(color.FgRed, color.Bold)
		if level == "warning" {
			c = color.New(color.FgYellow, color.Bold)
		}
		tag = c.Sprint(tag)
	}

	if e.ProjectPath == "" {
		return fmt.Sprintf("%s: %s", tag, e.Message)
	}
	return fmt.Sprintf("%s : %s: %s", e.ProjectPath, tag, e.Message)
}

// InvalidSpecError reports malformed restore input.
type InvalidSpecError struct {
	ProjectID string
	Path      string
	Reason    string
}

func (e *InvalidSpecError) Error() string {
	if e.ProjectID == "" {
		return "invalid restore spec: " + e.Reason
	}
	return fmt.Sprintf("invalid restore spec for project %s: %s", e.ProjectID, e.Reason)
}

// LockFileDriftError reports that a locked-mode resolution differs from the
// existing lock file. The lock file is left untouched.
type LockFileDriftError struct {
	ProjectID string
	LockPath  string

	// Expected is the fingerprint of the existing lock file; empty when none exists.
	Expected string
	Actual   string

	// Changes lists per-target differences as "target: id old -> new".
	Changes []string
}

func (e *LockFileDriftError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("The project %s is in locked mode but no lock file exists at %s", e.ProjectID, e.LockPath)
	}
	msg := fmt.Sprintf("The package references have changed for %s. Lock file %s is out of date in locked mode", e.ProjectID, e.LockPath)
	if len(e.Changes) > 0 {
		msg += ": " + strings.Join(e.Changes, "; ")
	}
	return msg
}

// UnsupportedLockFileVersionError reports a lock file written by a newer schema.
type UnsupportedLockFileVersionError struct {
	Path    string
	Version int
}

func (e *UnsupportedLockFileVersionError) Error() string {
	return fmt.Sprintf("lock file %s has schema version %d; the highest supported version is %d",
		e.Path, e.Version, CurrentLockFileVersion)
}

// CancellationError reports a project whose restore was cancelled.
type CancellationError struct {
	ProjectID string
	Cause     error
}

func (e *CancellationError) Error() string {
	if e.Cause == nil || errors.Is(e.Cause, context.Canceled) {
		return fmt.Sprintf("restore of %s was cancelled", e.ProjectID)
	}
	return fmt.Sprintf("restore of %s was cancelled: %v", e.ProjectID, e.Cause)
}

func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// diagnosticsFor converts a terminal restore error into diagnostics.
func diagnosticsFor(err error, p *ProjectRestoreSpec, target string) []*NuGetError {
	base := func(code string, kind ErrorKind, msg string, ids ...string) *NuGetError {
		return &NuGetError{
			Code:              code,
			Level:             LevelError,
			Kind:              kind,
			Message:           msg,
			ProjectPath:       p.DescriptorPath,
			LibraryIDs:        ids,
			TargetEnvironment: target,
		}
	}

	var (
		invalid     *InvalidSpecError
		notFound    *resolver.PackageNotFoundError
		conflict    *resolver.VersionConflictError
		cycle       *resolver.CyclicDependencyError
		downgrade   *resolver.DowngradeError
		drift       *LockFileDriftError
		unavailable *core.SourceUnavailableError
		cancelled   *CancellationError
	)

	switch {
	case errors.As(err, &cancelled):
		return []*NuGetError{base("", KindCancelled, cancelled.Error())}
	case errors.As(err, &invalid):
		return []*NuGetError{base(ErrorCodeInvalidSpec, KindInvalidSpec, invalid.Reason)}
	case errors.As(err, &notFound):
		return []*NuGetError{packageNotFound(base, notFound)}
	case errors.As(err, &conflict):
		d := base(string(resolver.NU1107), KindVersionConflict, conflict.Error(), conflict.PackageID)
		d.TargetEnvironment = conflict.TargetEnvironment
		return []*NuGetError{d}
	case errors.As(err, &cycle):
		d := base(string(resolver.NU1108), KindCycle, cycle.Error(), cycle.Members...)
		d.TargetEnvironment = cycle.TargetEnvironment
		return []*NuGetError{d}
	case errors.As(err, &downgrade):
		out := make([]*NuGetError, 0, len(downgrade.Downgrades))
		for _, w := range downgrade.Downgrades {
			d := base(string(resolver.NU1605), KindDowngrade, w.String(), w.PackageID)
			d.TargetEnvironment = w.TargetEnvironment
			out = append(out, d)
		}
		return out
	case errors.As(err, &drift):
		return []*NuGetError{base(ErrorCodeLockFileDrift, KindLockFileDrift, drift.Error())}
	case errors.As(err, &unavailable):
		d := base(ErrorCodeSourceUnavailable, KindSourceUnavailable, unavailable.Error())
		if unavailable.PackageID != "" {
			d.LibraryIDs = []string{unavailable.PackageID}
		}
		return []*NuGetError{d}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return []*NuGetError{base("", KindCancelled, (&CancellationError{ProjectID: p.ID, Cause: err}).Error())}
	default:
		return []*NuGetError{base("", KindInternal, err.Error())}
	}
}

func packageNotFound(base func(string, ErrorKind, string, ...string) *NuGetError, e *resolver.PackageNotFoundError) *NuGetError {
	var msg string
	switch e.Code {
	case resolver.NU1101:
		msg = fmt.Sprintf("Unable to find package %s. No packages exist with this id in source(s): %s",
			e.PackageID, strings.Join(e.Sources, ", "))
	case resolver.NU1103:
		msg = fmt.Sprintf("Unable to find a stable package %s with version (%s)",
			e.PackageID, formatVersionConstraintForDisplay(e.VersionRange))
	default:
		msg = fmt.Sprintf("Unable to find package %s with version (%s)",
			e.PackageID, formatVersionConstraintForDisplay(e.VersionRange))
	}
	if e.Code != resolver.NU1101 {
		msg += fmt.Sprintf("\n  - Found %d version(s) in %s [ Nearest version: %s ]",
			len(e.AvailableVersions), strings.Join(e.Sources, ", "), e.NearestVersion)
	}

	d := base(string(e.Code), KindPackageNotFound, msg, e.PackageID)
	d.TargetEnvironment = e.TargetEnvironment
	return d
}

// warningsFor converts the non-fatal findings of a resolved graph.
func warningsFor(g *resolver.ResolvedGraph, p *ProjectRestoreSpec) []*NuGetError {
	var out []*NuGetError
	for _, w := range g.Downgrades {
		out = append(out, &NuGetError{
			Code:              string(resolver.NU1605),
			Level:             LevelWarning,
			Kind:              KindDowngrade,
			Message:           w.String(),
			ProjectPath:       p.DescriptorPath,
			LibraryIDs:        []string{w.PackageID},
			TargetEnvironment: g.TargetEnvironment,
		})
	}
	for _, w := range g.ConstraintWarnings {
		out = append(out, &NuGetError{
			Code:              string(resolver.NU1608),
			Level:             LevelWarning,
			Kind:              KindConstraint,
			Message:           w.String(),
			ProjectPath:       p.DescriptorPath,
			LibraryIDs:        []string{w.PackageID},
			TargetEnvironment: g.TargetEnvironment,
		})
	}
	return out
}

// corruptLockWarning reports a lock file whose recorded fingerprint does not
// match its content.
func corruptLockWarning(lf *LockFile, p *ProjectRestoreSpec) *NuGetError {
	return &NuGetError{
		Code:  ErrorCodeCorruptLockFile,
		Level: LevelWarning,
		Kind:  KindCorruptLockFile,
		Message: fmt.Sprintf("The lock file %s records fingerprint %s but its content hashes to %s.",
			p.LockPath, lf.StoredFingerprint, lf.Fingerprint),
		ProjectPath: p.DescriptorPath,
	}
}

// formatVersionConstraintForDisplay renders a range the way dotnet prints it:
//   - [1.0.0, ) → >= 1.0.0
//   - [1.0.0] → = 1.0.0
//   - [1.0.0, 2.0.0] → >= 1.0.0 && <= 2.0.0
//   - (1.0.0, 2.0.0) → > 1.0.0 && < 2.0.0
func formatVersionConstraintForDisplay(constraint string) string {
	constraint = strings.TrimSpace(constraint)

	if !strings.HasPrefix(constraint, "[") && !strings.HasPrefix(constraint, "(") {
		if strings.Contains(constraint, "*") {
			return constraint
		}
		return ">= " + constraint
	}

	minInclusive := strings.HasPrefix(constraint, "[")
	maxInclusive := strings.HasSuffix(constraint, "]")

	inner := constraint[1 : len(constraint)-1]
	parts := strings.Split(inner, ",")

	if len(parts) != 2 {
		if minInclusive && maxInclusive {
			return "= " + strings.TrimSpace(inner)
		}
		return constraint
	}

	minPart := strings.TrimSpace(parts[0])
	maxPart := strings.TrimSpace(parts[1])

	if maxPart == "" {
		if minInclusive {
			return ">= " + minPart
		}
		return "> " + minPart
	}

	if minPart == "" {
		if maxInclusive {
			return "<= " + maxPart
		}
		return "< " + maxPart
	}

	minOp, maxOp := ">", "<"
	if minInclusive {
		minOp = ">="
	}
	if maxInclusive {
		maxOp = "<="
	}
	return fmt.Sprintf("%s %s && %s %s", minOp, minPart, maxOp, maxPart)
}
