// Package resolver builds per-target dependency graphs with nearest-wins
// version selection.
package resolver

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/willibrandon/gorestore/observability"
)

// DefaultMaxParallel bounds concurrent source work within one resolution.
const DefaultMaxParallel = 16

// ConcurrencyTracker optionally observes concurrent source work.
type ConcurrencyTracker interface {
	// Enter is called when a worker starts.
	Enter()
	// Exit is called when a worker finishes.
	Exit()
}

// Resolver resolves ResolveRequests. It holds no per-request state and is
// safe for concurrent use.
type Resolver struct {
	logger      observability.Logger
	maxParallel int
	tracker     ConcurrencyTracker
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger observability.Logger) Option {
	return func(r *Resolver) {
		r.logger = observability.OrNull(logger)
	}
}

// WithMaxParallel bounds concurrent source work. Values below 1 select
// DefaultMaxParallel.
func WithMaxParallel(n int) Option {
	return func(r *Resolver) {
		if n < 1 {
			n = DefaultMaxParallel
		}
		r.maxParallel = n
	}
}

// WithTracker sets an optional concurrency tracker.
func WithTracker(tracker ConcurrencyTracker) Option {
	return func(r *Resolver) {
		r.tracker = tracker
	}
}

// NewResolver creates a new resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		logger:      observability.NewNullLogger(),
		maxParallel: DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the dependency graph for one target environment.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*ResolvedGraph, error) {
	if req.ProjectID == "" {
		return nil, errors.New("resolve: project id is required")
	}

	ctx, span := observability.StartGraphResolveSpan(ctx, req.ProjectID, req.TargetEnvironment)

	start := time.Now()
	g, err := newWalker(&req, r.logger, r.maxParallel, r.tracker).walk(ctx)
	observability.GraphResolveDuration.WithLabelValues(req.TargetEnvironment).Observe(time.Since(start).Seconds())
	observability.EndSpanWithError(span, err)
	if err != nil {
		return nil, err
	}

	observability.ResolvedPackages.WithLabelValues(req.TargetEnvironment).Add(float64(len(g.Packages)))
	r.logger.DebugContext(ctx, "Resolved {Count} packages for {ProjectID} ({Target}) in {Elapsed}",
		len(g.Packages), req.ProjectID, req.TargetEnvironment, time.Since(start))
	return g, nil
}

// ResolveAll resolves every request concurrently. Graphs are returned in
// request order; when several requests fail the error of the first one in
// request order is returned.
func (r *Resolver) ResolveAll(ctx context.Context, reqs []ResolveRequest) ([]*ResolvedGraph, error) {
	graphs := make([]*ResolvedGraph, len(reqs))
	errs := make([]error, len(reqs))

	var eg errgroup.Group
	eg.SetLimit(r.maxParallel)
	for i, req := range reqs {
		eg.Go(func() error {
			graphs[i], errs[i] = r.Resolve(ctx, req)
			return nil
		})
	}
	_ = eg.Wait()

	if err := firstError(errs); err != nil {
		return nil, err
	}
	return graphs, nil
}
