package core

import (
	"context"
	"errors"

	"github.com/willibrandon/gorestore/observability"
	"github.com/willibrandon/gorestore/resilience"
	"github.com/willibrandon/gorestore/version"
)

// BreakerRepository fails fast with SourceUnavailableError once a source has
// been unavailable for BreakerThreshold consecutive calls, so projects that
// share a dead source stop spending their own retry budgets on it. Only
// SourceUnavailableError counts as a failure; not-found and cancellation do not.
type BreakerRepository struct {
	inner   SourceRepository
	breaker *resilience.Breaker
}

// NewBreakerRepository wraps inner with a breaker configured from settings.
func NewBreakerRepository(inner SourceRepository, settings Settings, logger observability.Logger) *BreakerRepository {
	logger = observability.OrNull(logger)
	src := inner.Source().String()

	cfg := resilience.Config{
		Threshold: settings.BreakerThreshold,
		Cooldown:  settings.BreakerCooldown,
		OnStateChange: func(from, to resilience.State) {
			observability.SourceCircuitTransitionsTotal.WithLabelValues(src, to.String()).Inc()
			logger.Warn("Source {Source} circuit {From} -> {To}", src, from.String(), to.String())
		},
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultBreakerThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerCooldown
	}

	return &BreakerRepository{inner: inner, breaker: resilience.New(cfg)}
}

// Source implements SourceRepository.
func (r *BreakerRepository) Source() PackageSource {
	return r.inner.Source()
}

// State returns the breaker state of the source.
func (r *BreakerRepository) State() resilience.State {
	return r.breaker.State()
}

// ListVersions implements SourceRepository.
func (r *BreakerRepository) ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error) {
	return guarded(ctx, r, "list_versions", id, func() ([]*version.NuGetVersion, error) {
		return r.inner.ListVersions(ctx, id)
	})
}

// GetManifest implements SourceRepository.
func (r *BreakerRepository) GetManifest(ctx context.Context, id string, v *version.NuGetVersion) (*Manifest, error) {
	return guarded(ctx, r, "get_manifest", id, func() (*Manifest, error) {
		return r.inner.GetManifest(ctx, id, v)
	})
}

func guarded[T any](ctx context.Context, r *BreakerRepository, operation, id string, call func() (T, error)) (T, error) {
	if err := r.breaker.Allow(); err != nil {
		var zero T
		return zero, &SourceUnavailableError{
			Source:    r.inner.Source().String(),
			Operation: operation,
			PackageID: id,
			Err:       err,
		}
	}

	res, err := call()

	var unavailable *SourceUnavailableError
	switch {
	case err == nil:
		r.breaker.Done(resilience.Success)
	case ctx.Err() != nil:
		r.breaker.Done(resilience.Ignored)
	case errors.As(err, &unavailable):
		r.breaker.Done(resilience.Failure)
	default:
		// The source answered.
		r.breaker.Done(resilience.Success)
	}
	return res, err
}
