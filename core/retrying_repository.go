package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/willibrandon/gorestore/observability"
	"github.com/willibrandon/gorestore/version"
)

// RetryingRepository retries failed calls against an inner repository with
// exponential backoff. Exhausting the budget yields SourceUnavailableError.
type RetryingRepository struct {
	inner    SourceRepository
	attempts int
	initial  time.Duration
	max      time.Duration
	logger   observability.Logger
}

// NewRetryingRepository wraps inner with the retry budget from settings.
func NewRetryingRepository(inner SourceRepository, settings Settings, logger observability.Logger) *RetryingRepository {
	initial := settings.RetryInitialInterval
	if initial <= 0 {
		initial = DefaultRetryInitialInterval
	}
	maxInterval := settings.RetryMaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultRetryMaxInterval
	}
	return &RetryingRepository{
		inner:    inner,
		attempts: settings.attempts(),
		initial:  initial,
		max:      maxInterval,
		logger:   observability.OrNull(logger),
	}
}

// Source implements SourceRepository.
func (r *RetryingRepository) Source() PackageSource {
	return r.inner.Source()
}

// ListVersions implements SourceRepository.
func (r *RetryingRepository) ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error) {
	return retry(ctx, r, "list_versions", id, func() ([]*version.NuGetVersion, error) {
		return r.inner.ListVersions(ctx, id)
	})
}

// GetManifest implements SourceRepository. ErrPackageNotFound is not retried.
func (r *RetryingRepository) GetManifest(ctx context.Context, id string, v *version.NuGetVersion) (*Manifest, error) {
	return retry(ctx, r, "get_manifest", id, func() (*Manifest, error) {
		return r.inner.GetManifest(ctx, id, v)
	})
}

func (r *RetryingRepository) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.max
	return b
}

func retry[T any](ctx context.Context, r *RetryingRepository, operation, id string, call func() (T, error)) (T, error) {
	src := r.inner.Source().String()
	attempt := 0

	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := call()
		if err != nil && isPermanent(ctx, err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			observability.SourceRetriesTotal.WithLabelValues(src, operation).Inc()
			observability.RecordRetry(ctx, attempt, err)
			r.logger.WarnContext(ctx, "Retrying {Operation} for {PackageID} on {Source} in {Delay} after attempt {Attempt}: {Error}",
				operation, id, src, next, attempt, err)
		}),
	)
	if err == nil {
		return res, nil
	}

	var zero T
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if isPermanent(ctx, err) {
		return zero, err
	}
	return zero, &SourceUnavailableError{
		Source:    src,
		Operation: operation,
		PackageID: id,
		Attempts:  attempt,
		Err:       err,
	}
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var unavailable *SourceUnavailableError
	return errors.Is(err, ErrPackageNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &unavailable)
}
