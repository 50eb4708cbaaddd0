package core

import (
	"context"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/willibrandon/gorestore/observability"
	"github.com/willibrandon/gorestore/version"
)

// DefaultMetadataCacheSize bounds the version lists and manifests kept per repository.
const DefaultMetadataCacheSize = 4096

// CachingRepository memoizes version lists and manifests of an inner
// repository in bounded LRUs and collapses concurrent identical lookups.
// Errors are never cached.
type CachingRepository struct {
	inner SourceRepository

	versions  *lru.Cache[string, []*version.NuGetVersion]
	manifests *lru.Cache[string, *Manifest]

	versionOps  *OperationCache[[]*version.NuGetVersion]
	manifestOps *OperationCache[*Manifest]
}

// NewCachingRepository wraps inner with caches holding up to size entries each.
func NewCachingRepository(inner SourceRepository, size int) (*CachingRepository, error) {
	if size <= 0 {
		size = DefaultMetadataCacheSize
	}
	versions, err := lru.New[string, []*version.NuGetVersion](size)
	if err != nil {
		return nil, err
	}
	manifests, err := lru.New[string, *Manifest](size)
	if err != nil {
		return nil, err
	}
	return &CachingRepository{
		inner:       inner,
		versions:    versions,
		manifests:   manifests,
		versionOps:  NewOperationCache[[]*version.NuGetVersion](),
		manifestOps: NewOperationCache[*Manifest](),
	}, nil
}

// Source implements SourceRepository.
func (r *CachingRepository) Source() PackageSource {
	return r.inner.Source()
}

// ListVersions implements SourceRepository. The returned slice is a copy.
func (r *CachingRepository) ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error) {
	key := strings.ToLower(id)
	if vs, ok := r.versions.Get(key); ok {
		observability.CacheHitsTotal.WithLabelValues("versions").Inc()
		return slices.Clone(vs), nil
	}

	vs, err := r.versionOps.GetOrStart(ctx, key, func(ctx context.Context) ([]*version.NuGetVersion, error) {
		observability.CacheMissesTotal.WithLabelValues("versions").Inc()
		vs, err := r.inner.ListVersions(ctx, id)
		if err != nil {
			return nil, err
		}
		r.versions.Add(key, vs)
		return vs, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(vs), nil
}

// GetManifest implements SourceRepository.
func (r *CachingRepository) GetManifest(ctx context.Context, id string, v *version.NuGetVersion) (*Manifest, error) {
	key := strings.ToLower(id) + "/" + strings.ToLower(v.ToNormalizedString())
	if m, ok := r.manifests.Get(key); ok {
		observability.CacheHitsTotal.WithLabelValues("manifest").Inc()
		return m, nil
	}

	return r.manifestOps.GetOrStart(ctx, key, func(ctx context.Context) (*Manifest, error) {
		observability.CacheMissesTotal.WithLabelValues("manifest").Inc()
		m, err := r.inner.GetManifest(ctx, id, v)
		if err != nil {
			return nil, err
		}
		r.manifests.Add(key, m)
		return m, nil
	})
}
