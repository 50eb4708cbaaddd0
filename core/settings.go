package core

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Default retry budget for source calls.
const (
	DefaultRetryAttempts        = 3
	DefaultRetryInitialInterval = 100 * time.Millisecond
	DefaultRetryMaxInterval     = 2 * time.Second
)

// Default circuit breaker applied per source.
const (
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
)

// Settings is the opaque settings object handed to the restore core. Only
// the fields below are interpreted; Values is carried into the fingerprint
// so differently configured clients never share a cache entry.
type Settings struct {
	// GlobalSources are used by projects that declare no sources of their own.
	GlobalSources []PackageSource

	RetryAttempts        int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// BreakerThreshold is the number of consecutive unavailable calls after
	// which a source fails fast for BreakerCooldown. Zero selects
	// DefaultBreakerThreshold; a negative value disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// MetadataCacheSize bounds the per-source manifest and version caches.
	// Zero selects DefaultMetadataCacheSize; a negative value disables caching.
	MetadataCacheSize int

	Values map[string]string
}

// DefaultSettings returns settings with the default retry budget and no sources.
func DefaultSettings() Settings {
	return Settings{
		RetryAttempts:        DefaultRetryAttempts,
		RetryInitialInterval: DefaultRetryInitialInterval,
		RetryMaxInterval:     DefaultRetryMaxInterval,
		BreakerThreshold:     DefaultBreakerThreshold,
		BreakerCooldown:      DefaultBreakerCooldown,
	}
}

func (s Settings) attempts() int {
	if s.RetryAttempts <= 0 {
		return DefaultRetryAttempts
	}
	return s.RetryAttempts
}

// Fingerprint returns a stable digest of everything that affects how a
// repository client is built. GlobalSources are excluded.
func (s Settings) Fingerprint() string {
	d := xxhash.New()
	write := func(k, v string) {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(v)
		_, _ = d.WriteString("\n")
	}

	write("retry.attempts", strconv.Itoa(s.attempts()))
	write("retry.initial", s.RetryInitialInterval.String())
	write("retry.max", s.RetryMaxInterval.String())
	write("breaker.threshold", strconv.Itoa(s.BreakerThreshold))
	write("breaker.cooldown", s.BreakerCooldown.String())
	write("metadata.cache", strconv.Itoa(s.MetadataCacheSize))

	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		write("value."+k, s.Values[k])
	}

	return fmt.Sprintf("%016x", d.Sum64())
}
