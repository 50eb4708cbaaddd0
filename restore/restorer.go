// Package restore turns project descriptors into resolved graphs, lock files
// and installed packages, skipping projects whose inputs are unchanged.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/core/resolver"
	"github.com/willibrandon/gorestore/observability"
)

// RestoreSummary is the outcome of restoring one project.
type RestoreSummary struct {
	ProjectID      string        `json:"projectId"`
	DescriptorPath string        `json:"descriptorPath,omitempty"`
	LockPath       string        `json:"lockPath,omitempty"`
	Success        bool          `json:"success"`
	NoOpRestore    bool          `json:"noOpRestore"`
	InstallCount   int           `json:"installCount"`
	Errors         []*NuGetError `json:"errors,omitempty"`
	Warnings       []*NuGetError `json:"warnings,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`

	// Err is the terminal error of a failed restore.
	Err error `json:"-"`
}

// ExitCode returns 1 if any project failed, else 0.
func ExitCode(summaries []*RestoreSummary) int {
	for _, s := range summaries {
		if !s.Success {
			return 1
		}
	}
	return 0
}

// Restorer executes restore operations.
type Restorer struct {
	opts      Options
	logger    observability.Logger
	providers *core.ProviderCache
	installer PackageInstaller
	resolver  *resolver.Resolver
}

// NewRestorer creates a restorer. Zero-valued options select defaults.
func NewRestorer(opts Options) *Restorer {
	logger := observability.OrNull(opts.Logger)

	if opts.MaxParallel < 1 {
		opts.MaxParallel = runtime.GOMAXPROCS(0)
	}

	providers := opts.Providers
	if providers == nil {
		providers = core.NewProviderCache(logger)
	}

	installer := opts.Installer
	if installer == nil {
		folder := opts.PackagesFolder
		if folder == "" {
			folder = DefaultPackagesFolder()
		}
		installer = NewFolderInstaller(folder)
	}

	return &Restorer{
		opts:      opts,
		logger:    logger,
		providers: providers,
		installer: installer,
		resolver: resolver.NewResolver(
			resolver.WithLogger(logger),
			resolver.WithMaxParallel(opts.ResolverParallel),
		),
	}
}

// Restore restores every project of spec on a bounded worker pool and returns
// one summary per project in spec order. Failures stay with their project
// unless FailFast is set and a source is unreachable, in which case projects
// that have not finished report CancellationError.
func (r *Restorer) Restore(ctx context.Context, spec *DependencyGraphSpec) []*RestoreSummary {
	restoreID := uuid.NewString()
	logger := r.logger.ForContext("RestoreId", restoreID)

	projects := spec.Projects()
	summaries := make([]*RestoreSummary, len(projects))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	logger.Info("Restoring {ProjectCount} project(s) with {MaxParallel} worker(s)", len(projects), r.opts.MaxParallel)

	var g errgroup.Group
	g.SetLimit(r.opts.MaxParallel)
	for i, p := range projects {
		g.Go(func() error {
			if ctx.Err() != nil {
				summaries[i] = r.cancelled(p, time.Now(), context.Cause(ctx))
				return nil
			}

			s := r.restoreProject(ctx, logger.ForContext("ProjectId", p.ID), spec, p)
			summaries[i] = s

			var unavailable *core.SourceUnavailableError
			var cancelled *CancellationError
			if r.opts.FailFast && errors.As(s.Err, &unavailable) && !errors.As(s.Err, &cancelled) {
				logger.Warn("Cancelling remaining projects: {Error}", s.Err)
				cancel(s.Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return summaries
}

func (r *Restorer) restoreProject(ctx context.Context, logger observability.Logger, spec *DependencyGraphSpec, p *ProjectRestoreSpec) *RestoreSummary {
	start := time.Now()
	sum := &RestoreSummary{
		ProjectID:      p.ID,
		DescriptorPath: p.DescriptorPath,
		LockPath:       p.LockPath,
	}

	ctx, span := observability.StartProjectRestoreSpan(ctx, p.ID, len(p.TargetEnvironments))

	specHash, err := CalculateSpecHash(spec, p)
	if err == nil {
		err = r.run(ctx, logger, spec, p, specHash, sum)
	}

	if err != nil && ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		err = &CancellationError{ProjectID: p.ID, Cause: context.Cause(ctx)}
	}

	outcome := "success"
	switch {
	case err != nil:
		sum.Err = err
		sum.Errors = diagnosticsFor(err, p, "")

		var cancelled *CancellationError
		if errors.As(err, &cancelled) {
			outcome = "cancelled"
		} else {
			outcome = "failure"
			r.writeFailureMarker(logger, p, specHash, sum.Errors)
		}
		logger.Error("Restore of {ProjectId} failed: {Error}", p.ID, err)
	case sum.NoOpRestore:
		sum.Success = true
		outcome = "noop"
		logger.Info("Restore of {ProjectId} is up to date", p.ID)
	default:
		sum.Success = true
		logger.Info("Restored {ProjectId}: {InstallCount} package(s) installed", p.ID, sum.InstallCount)
	}

	sum.Elapsed = time.Since(start)
	observability.RecordNoOp(ctx, sum.NoOpRestore)
	observability.ProjectRestoresTotal.WithLabelValues(outcome).Inc()
	observability.ProjectRestoreDuration.WithLabelValues(outcome).Observe(sum.Elapsed.Seconds())
	observability.EndSpanWithError(span, err)
	return sum
}

func (r *Restorer) run(ctx context.Context, logger observability.Logger, spec *DependencyGraphSpec, p *ProjectRestoreSpec, specHash string, sum *RestoreSummary) error {
	var existing *LockFile
	if r.opts.Force {
		lf, err := loadExistingLock(p.LockPath)
		if err != nil {
			return err
		}
		existing = lf
	} else {
		res, err := EvaluateNoOp(p, specHash)
		if err != nil {
			return err
		}
		if res.NoOp {
			sum.NoOpRestore = true
			sum.Warnings = res.Marker.Diagnostics(p.DescriptorPath)
			return nil
		}
		logger.Debug("Restore of {ProjectId} required: {Reason}", p.ID, res.Reason)
		existing = res.Lock
	}

	if p.LockMode == LockModeLocked && existing == nil {
		return &LockFileDriftError{ProjectID: p.ID, LockPath: p.LockPath}
	}
	if existing != nil && existing.StoredFingerprint != "" {
		logger.Warn("Lock file {Path} fingerprint {Stored} does not match its content {Actual}", p.LockPath, existing.StoredFingerprint, existing.Fingerprint)
		sum.Warnings = append(sum.Warnings, corruptLockWarning(existing, p))
	}

	repos := make([]core.SourceRepository, 0, len(p.Sources))
	for _, src := range p.Sources {
		repo, err := r.providers.Get(ctx, src, spec.Settings())
		if err != nil {
			return fmt.Errorf("open source %s: %w", src, err)
		}
		repos = append(repos, repo)
	}

	reqs := make([]resolver.ResolveRequest, 0, len(p.TargetEnvironments))
	for _, t := range p.TargetEnvironments {
		req := resolver.ResolveRequest{
			ProjectID:         p.ID,
			ProjectVersion:    p.Version,
			TargetEnvironment: t,
			Dependencies:      p.DependenciesFor(t),
			Sources:           repos,
			Projects:          spec,
			Strict:            p.Strict,
		}
		if existing != nil && p.LockMode != LockModeNone {
			req.LockedVersions = existing.PinsFor(t)
		}
		reqs = append(reqs, req)
	}

	graphs, err := r.resolver.ResolveAll(ctx, reqs)
	if err != nil {
		return err
	}

	fresh := LockFileFromGraphs(p.ID, graphs, specHash)

	if p.LockMode == LockModeLocked {
		if actual := fresh.ContentFingerprint(existing.Version); actual != existing.Fingerprint {
			return &LockFileDriftError{
				ProjectID: p.ID,
				LockPath:  p.LockPath,
				Expected:  existing.Fingerprint,
				Actual:    actual,
				Changes:   existing.Diff(fresh),
			}
		}
	}

	markers, installed, err := r.install(ctx, graphs)
	if err != nil {
		return err
	}
	sum.InstallCount = installed

	lockFingerprint, err := r.writeLock(ctx, logger, p, existing, fresh)
	if err != nil {
		return err
	}

	for _, g := range graphs {
		sum.Warnings = append(sum.Warnings, warningsFor(g, p)...)
	}

	marker := NewCacheFile(specHash)
	marker.Success = true
	marker.DescriptorPath = p.DescriptorPath
	marker.LockFingerprint = lockFingerprint
	marker.ExpectedPackageFiles = markers
	marker.AddDiagnostics(sum.Warnings)
	if err := marker.Save(p.CacheFilePath()); err != nil {
		logger.Warn("Failed to write restore marker {Path}: {Error}", p.CacheFilePath(), err)
		sum.Warnings = append(sum.Warnings, &NuGetError{
			Level:       LevelWarning,
			Kind:        KindInternal,
			Message:     fmt.Sprintf("Failed to write restore marker: %v", err),
			ProjectPath: p.DescriptorPath,
		})
	}
	return nil
}

// install runs the install side effect once per distinct package across
// every target and returns the sorted completion markers and the number of
// packages that were not present before.
func (r *Restorer) install(ctx context.Context, graphs []*resolver.ResolvedGraph) ([]string, int, error) {
	seen := make(map[string]bool)
	var reqs []InstallRequest
	for _, g := range graphs {
		for _, n := range g.Libraries() {
			if n.Type != resolver.DependencyPackage || seen[n.Identity.Key()] {
				continue
			}
			seen[n.Identity.Key()] = true
			reqs = append(reqs, InstallRequest{Identity: n.Identity, Source: n.Source, ContentHash: n.ContentHash})
		}
	}

	results := make([]InstallResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxParallel)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := r.installer.Install(ctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	markers := make([]string, 0, len(results))
	installed := 0
	for _, res := range results {
		if res.Installed {
			installed++
		}
		if res.MarkerPath != "" {
			markers = append(markers, res.MarkerPath)
		}
	}
	slices.Sort(markers)
	return markers, installed, nil
}

// writeLock persists fresh unless the existing lock already records the same
// resolution for the same inputs. Locked mode never writes. It returns the
// fingerprint of the lock file left on disk.
func (r *Restorer) writeLock(ctx context.Context, logger observability.Logger, p *ProjectRestoreSpec, existing, fresh *LockFile) (string, error) {
	if p.LockMode == LockModeLocked {
		return existing.Fingerprint, nil
	}

	if existing != nil &&
		existing.Version == CurrentLockFileVersion &&
		existing.StoredFingerprint == "" &&
		existing.Fingerprint == fresh.Fingerprint &&
		existing.SpecFingerprint == fresh.SpecFingerprint {
		observability.LockFileWritesTotal.WithLabelValues("unchanged").Inc()
		return existing.Fingerprint, nil
	}

	if err := fresh.Save(ctx, p.LockPath); err != nil {
		return "", err
	}
	logger.Debug("Wrote lock file {Path}", p.LockPath)
	return fresh.Fingerprint, nil
}

func (r *Restorer) writeFailureMarker(logger observability.Logger, p *ProjectRestoreSpec, specHash string, diags []*NuGetError) {
	marker := NewCacheFile(specHash)
	marker.DescriptorPath = p.DescriptorPath
	marker.AddDiagnostics(diags)
	if err := marker.Save(p.CacheFilePath()); err != nil {
		logger.Warn("Failed to write restore marker {Path}: {Error}", p.CacheFilePath(), err)
	}
}

func (r *Restorer) cancelled(p *ProjectRestoreSpec, start time.Time, cause error) *RestoreSummary {
	err := &CancellationError{ProjectID: p.ID, Cause: cause}
	observability.ProjectRestoresTotal.WithLabelValues("cancelled").Inc()
	return &RestoreSummary{
		ProjectID:      p.ID,
		DescriptorPath: p.DescriptorPath,
		LockPath:       p.LockPath,
		Errors:         diagnosticsFor(err, p, ""),
		Elapsed:        time.Since(start),
		Err:            err,
	}
}

func loadExistingLock(path string) (*LockFile, error) {
	lf, err := LoadLockFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return lf, err
}
