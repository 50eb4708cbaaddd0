package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/willibrandon/gorestore/observability"
)

// RepositoryFactory builds the client for one source.
type RepositoryFactory func(ctx context.Context, source PackageSource, settings Settings) (SourceRepository, error)

type providerKey struct {
	source   string
	settings string
}

func (k providerKey) String() string {
	return k.source + "|" + k.settings
}

// ProviderCache memoizes repositories per (source identity, settings
// fingerprint) for the lifetime of the cache. At most one construction runs
// per key; concurrent callers for the same key wait for and share its result.
// Failed constructions are not stored.
type ProviderCache struct {
	logger    observability.Logger
	factories map[string]RepositoryFactory

	mu      sync.RWMutex
	entries map[providerKey]SourceRepository
	group   singleflight.Group
}

// NewProviderCache creates an empty cache whose default factory serves local
// directories and file:// URLs.
func NewProviderCache(logger observability.Logger) *ProviderCache {
	return &ProviderCache{
		logger:    observability.OrNull(logger),
		factories: make(map[string]RepositoryFactory),
		entries:   make(map[providerKey]SourceRepository),
	}
}

// RegisterFactory routes sources whose location starts with scheme+"://"
// to factory. It must be called before the cache is shared.
func (c *ProviderCache) RegisterFactory(scheme string, factory RepositoryFactory) {
	c.factories[strings.ToLower(scheme)] = factory
}

// Get returns the repository for source, constructing it on first use.
func (c *ProviderCache) Get(ctx context.Context, source PackageSource, settings Settings) (SourceRepository, error) {
	key := providerKey{source: source.Identity(), settings: settings.Fingerprint()}

	c.mu.RLock()
	repo, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		observability.CacheHitsTotal.WithLabelValues("provider").Inc()
		return repo, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		// A caller that lost the race may arrive after the winner stored its entry.
		c.mu.RLock()
		existing, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}

		observability.CacheMissesTotal.WithLabelValues("provider").Inc()
		repo, err := c.construct(ctx, source, settings)
		if err != nil {
			observability.ProviderConstructionsTotal.WithLabelValues("failure").Inc()
			return nil, err
		}
		observability.ProviderConstructionsTotal.WithLabelValues("success").Inc()

		c.mu.Lock()
		c.entries[key] = repo
		c.mu.Unlock()

		c.logger.DebugContext(ctx, "Created repository for {Source}", source.Identity())
		return repo, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(SourceRepository), nil
}

// Len returns the number of cached repositories.
func (c *ProviderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ProviderCache) construct(ctx context.Context, source PackageSource, settings Settings) (SourceRepository, error) {
	loc := strings.TrimSpace(source.Location)
	if loc == "" {
		return nil, fmt.Errorf("source %q has no location", source.Name)
	}

	var repo SourceRepository = NewLocalRepository(source)
	if scheme, _, ok := strings.Cut(loc, "://"); ok && !strings.EqualFold(scheme, "file") {
		factory, ok := c.factories[strings.ToLower(scheme)]
		if !ok {
			return nil, fmt.Errorf("no repository factory registered for source %s", source.Identity())
		}
		var err error
		if repo, err = factory(ctx, source, settings); err != nil {
			return nil, fmt.Errorf("create repository for %s: %w", source.Identity(), err)
		}
	}

	repo = NewRetryingRepository(Instrument(repo, c.logger), settings, c.logger)
	if settings.BreakerThreshold >= 0 {
		repo = NewBreakerRepository(repo, settings, c.logger)
	}
	if settings.MetadataCacheSize < 0 {
		return repo, nil
	}
	return NewCachingRepository(repo, settings.MetadataCacheSize)
}
