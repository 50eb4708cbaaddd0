// Package core provides access to package sources: the SourceRepository
// contract, a local folder feed, a retry budget around any repository and
// the provider cache that memoizes constructed repositories per process.
package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/willibrandon/gorestore/observability"
	"github.com/willibrandon/gorestore/version"
)

// ErrPackageNotFound is returned by GetManifest when the source does not
// offer the requested id and version.
var ErrPackageNotFound = errors.New("package not found")

// PackageSource identifies a configured feed.
type PackageSource struct {
	Name     string
	Location string
}

// Identity returns the comparison key for the source. Local paths are
// cleaned; case is preserved because file systems may be case sensitive.
func (s PackageSource) Identity() string {
	loc := strings.TrimSpace(s.Location)
	if after, ok := strings.CutPrefix(loc, "file://"); ok {
		return "file://" + filepath.ToSlash(filepath.Clean(after))
	}
	if strings.Contains(loc, "://") {
		return strings.TrimRight(loc, "/")
	}
	return filepath.ToSlash(filepath.Clean(loc))
}

// String returns the display name of the source.
func (s PackageSource) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Location
}

// Dependency is a dependency as declared inside a package manifest.
type Dependency struct {
	ID      string   `json:"id"`
	Range   string   `json:"range"`
	Exclude []string `json:"exclude,omitempty"`
}

// DependencyGroup holds the dependencies that apply to one target environment.
// An empty TargetEnvironment marks the group used when no exact group matches.
type DependencyGroup struct {
	TargetEnvironment string       `json:"targetEnvironment,omitempty"`
	Dependencies      []Dependency `json:"dependencies"`
}

// Manifest is the dependency manifest of one package version.
type Manifest struct {
	ID           string
	Version      *version.NuGetVersion
	Dependencies []Dependency
	Groups       []DependencyGroup

	// ContentHash is the base64 SHA-512 of the manifest as stored by the source.
	ContentHash string
}

// DependenciesFor returns the dependency list for target: the group with an
// exact (case-insensitive) match, else the untargeted group, else the flat list.
func (m *Manifest) DependenciesFor(target string) []Dependency {
	var fallback []Dependency
	hasFallback := false
	for _, g := range m.Groups {
		if strings.EqualFold(g.TargetEnvironment, target) {
			return g.Dependencies
		}
		if g.TargetEnvironment == "" && !hasFallback {
			fallback = g.Dependencies
			hasFallback = true
		}
	}
	if hasFallback {
		return fallback
	}
	return m.Dependencies
}

// SourceRepository is read access to one package source. Implementations
// must be safe for concurrent use and honor ctx cancellation.
type SourceRepository interface {
	Source() PackageSource

	// ListVersions returns every version the source offers for id.
	// An id the source does not know yields an empty list, not an error.
	ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error)

	// GetManifest returns the manifest of id at v, or ErrPackageNotFound.
	GetManifest(ctx context.Context, id string, v *version.NuGetVersion) (*Manifest, error)
}

// instrumentedRepository adds logging, metrics and spans to a repository.
type instrumentedRepository struct {
	inner  SourceRepository
	logger observability.Logger
}

// Instrument wraps repo so each call is logged, counted and traced.
func Instrument(repo SourceRepository, logger observability.Logger) SourceRepository {
	return &instrumentedRepository{inner: repo, logger: observability.OrNull(logger)}
}

func (r *instrumentedRepository) Source() PackageSource {
	return r.inner.Source()
}

func (r *instrumentedRepository) ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error) {
	src := r.inner.Source().String()
	ctx, span := observability.StartSourceRequestSpan(ctx, src, "list_versions", id)

	start := time.Now()
	versions, err := r.inner.ListVersions(ctx, id)
	observability.EndSpanWithError(span, err)
	if err != nil {
		observability.SourceRequestsTotal.WithLabelValues(src, "list_versions", "failure").Inc()
		r.logger.WarnContext(ctx, "Failed to list versions for {PackageID} from {Source}: {Error}", id, src, err)
		return nil, err
	}

	observability.SourceRequestsTotal.WithLabelValues(src, "list_versions", "success").Inc()
	r.logger.DebugContext(ctx, "Listed {Count} versions for {PackageID} from {Source} in {Elapsed}",
		len(versions), id, src, time.Since(start))
	return versions, nil
}

func (r *instrumentedRepository) GetManifest(ctx context.Context, id string, v *version.NuGetVersion) (*Manifest, error) {
	src := r.inner.Source().String()
	ctx, span := observability.StartSourceRequestSpan(ctx, src, "get_manifest", id)
	span.SetAttributes(observability.AttrPackageVersion.String(v.ToNormalizedString()))

	m, err := r.inner.GetManifest(ctx, id, v)
	observability.EndSpanWithError(span, err)
	if err != nil {
		observability.SourceRequestsTotal.WithLabelValues(src, "get_manifest", "failure").Inc()
		r.logger.WarnContext(ctx, "Manifest fetch failed for {PackageID}@{Version} from {Source}: {Error}",
			id, v.ToNormalizedString(), src, err)
		return nil, err
	}

	observability.SourceRequestsTotal.WithLabelValues(src, "get_manifest", "success").Inc()
	return m, nil
}
