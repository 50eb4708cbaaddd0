package observability

import (
	"net/http"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProjectRestoresTotal counts project restores by outcome (success, noop, failure, cancelled)
	ProjectRestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_project_restores_total",
			Help: "Total number of project restores by outcome",
		},
		[]string{"outcome"},
	)

	// ProjectRestoreDuration tracks wall time of a single project restore
	ProjectRestoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gorestore_project_restore_duration_seconds",
			Help:    "Project restore duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
		},
		[]string{"outcome"},
	)

	// GraphResolveDuration tracks resolution time per target environment
	GraphResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gorestore_graph_resolve_duration_seconds",
			Help:    "Dependency graph resolution duration in seconds per target environment",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"target"},
	)

	// ResolvedPackages counts packages placed into resolved graphs
	ResolvedPackages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_resolved_packages_total",
			Help: "Total number of packages placed into resolved graphs",
		},
		[]string{"target"},
	)

	// SourceRequestsTotal counts source repository calls by operation and status
	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_source_requests_total",
			Help: "Total number of source repository requests by operation and status",
		},
		[]string{"source", "operation", "status"},
	)

	// SourceRetriesTotal counts retried source repository calls
	SourceRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_source_retries_total",
			Help: "Total number of retried source repository requests",
		},
		[]string{"source", "operation"},
	)

	// SourceCircuitTransitionsTotal counts per-source circuit breaker state changes
	SourceCircuitTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_source_circuit_transitions_total",
			Help: "Total number of source circuit breaker transitions by target state",
		},
		[]string{"source", "state"}, // open, half-open, closed
	)

	// ProviderConstructionsTotal counts feed-access clients built by the provider cache
	ProviderConstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_provider_constructions_total",
			Help: "Total number of source repository constructions by status",
		},
		[]string{"status"},
	)

	// CacheHitsTotal counts in-process cache hits by cache name
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_cache_hits_total",
			Help: "Total number of cache hits by cache",
		},
		[]string{"cache"}, // provider, versions, manifest
	)

	// CacheMissesTotal counts in-process cache misses by cache name
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_cache_misses_total",
			Help: "Total number of cache misses by cache",
		},
		[]string{"cache"},
	)

	// LockFileWritesTotal counts lock artifact writes by status
	LockFileWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_lock_file_writes_total",
			Help: "Total number of lock file writes by status",
		},
		[]string{"status"}, // written, unchanged, failure
	)

	// PackageInstallsTotal counts installer side effects by status
	PackageInstallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorestore_package_installs_total",
			Help: "Total number of package installs by status",
		},
		[]string{"status"}, // installed, present, failure
	)
)

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// GetCounterValue retrieves the current value of a counter metric with the given labels
// This is primarily intended for testing
func GetCounterValue(counter *prometheus.CounterVec, labels ...string) (float64, error) {
	metric, err := counter.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}

	var pb dto.Metric
	if err := metric.Write(&pb); err != nil {
		return 0, err
	}

	if pb.Counter != nil {
		return pb.Counter.GetValue(), nil
	}

	return 0, nil
}
