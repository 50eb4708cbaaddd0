// Package config loads gorestore client settings from defaults, an optional
// config file, GORESTORE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/observability"
	"github.com/willibrandon/gorestore/restore"
)

const (
	// EnvPrefix prefixes every environment variable read by the client.
	EnvPrefix = "GORESTORE"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "gorestore"
)

// Keys understood by Load.
const (
	KeySources           = "sources"
	KeyPackagesFolder    = "packages"
	KeyMaxParallel       = "max-parallel"
	KeyResolverParallel  = "resolver-parallel"
	KeyFailFast          = "fail-fast"
	KeyRetryAttempts     = "retry.attempts"
	KeyRetryInitial      = "retry.initial-interval"
	KeyRetryMax          = "retry.max-interval"
	KeyBreakerThreshold  = "breaker.threshold"
	KeyBreakerCooldown   = "breaker.cooldown"
	KeyMetadataCacheSize = "metadata-cache-size"
	KeyLogLevel          = "log-level"
	KeyTraceExporter     = "trace.exporter"
	KeyTraceEndpoint     = "trace.endpoint"
	KeyValues            = "values"
)

// Config is the resolved client configuration.
type Config struct {
	// File is the config file that was read, empty when none was found.
	File string

	Sources           []core.PackageSource
	PackagesFolder    string
	MaxParallel       int
	ResolverParallel  int
	FailFast          bool
	RetryAttempts     int
	RetryInitial      time.Duration
	RetryMax          time.Duration
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	MetadataCacheSize int
	LogLevel          observability.LogLevel
	TraceExporter     string
	TraceEndpoint     string
	Values            map[string]string
}

// New returns a viper instance with defaults and environment binding applied.
// Flags are bound by the caller before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeySources, []string{})
	v.SetDefault(KeyPackagesFolder, restore.DefaultPackagesFolder())
	v.SetDefault(KeyMaxParallel, 0)
	v.SetDefault(KeyResolverParallel, 0)
	v.SetDefault(KeyFailFast, false)
	v.SetDefault(KeyRetryAttempts, core.DefaultRetryAttempts)
	v.SetDefault(KeyRetryInitial, core.DefaultRetryInitialInterval)
	v.SetDefault(KeyRetryMax, core.DefaultRetryMaxInterval)
	v.SetDefault(KeyBreakerThreshold, core.DefaultBreakerThreshold)
	v.SetDefault(KeyBreakerCooldown, core.DefaultBreakerCooldown)
	v.SetDefault(KeyMetadataCacheSize, core.DefaultMetadataCacheSize)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyTraceExporter, observability.ExporterNone)
	v.SetDefault(KeyTraceEndpoint, "localhost:4317")

	// GORESTORE_RETRY_MAX_INTERVAL maps to retry.max-interval.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Dir returns the user-level configuration directory, ~/.gorestore.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".gorestore"), nil
}

// Load reads configFile, or the first gorestore.{yaml,json,toml} found in
// searchDirs and then Dir, and resolves the configuration. A missing file is
// only an error when configFile is given explicitly.
func Load(v *viper.Viper, configFile string, searchDirs ...string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file not found: %s", configFile)
		}
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigFileName)
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	base := ""
	if file := v.ConfigFileUsed(); file != "" {
		base = filepath.Dir(file)
	}

	sources, err := parseSources(v.Get(KeySources), base)
	if err != nil {
		return nil, err
	}

	level, err := observability.ParseLogLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}

	exporter := strings.ToLower(v.GetString(KeyTraceExporter))
	switch exporter {
	case observability.ExporterNone, observability.ExporterStdout, observability.ExporterOTLP:
	default:
		return nil, fmt.Errorf("invalid trace exporter %q: expected none, stdout or otlp", exporter)
	}

	cfg := &Config{
		File:              v.ConfigFileUsed(),
		Sources:           sources,
		PackagesFolder:    v.GetString(KeyPackagesFolder),
		MaxParallel:       v.GetInt(KeyMaxParallel),
		ResolverParallel:  v.GetInt(KeyResolverParallel),
		FailFast:          v.GetBool(KeyFailFast),
		RetryAttempts:     v.GetInt(KeyRetryAttempts),
		RetryInitial:      v.GetDuration(KeyRetryInitial),
		RetryMax:          v.GetDuration(KeyRetryMax),
		BreakerThreshold:  v.GetInt(KeyBreakerThreshold),
		BreakerCooldown:   v.GetDuration(KeyBreakerCooldown),
		MetadataCacheSize: v.GetInt(KeyMetadataCacheSize),
		LogLevel:          level,
		TraceExporter:     exporter,
		TraceEndpoint:     v.GetString(KeyTraceEndpoint),
		Values:            v.GetStringMapString(KeyValues),
	}

	if cfg.RetryAttempts < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", KeyRetryAttempts, cfg.RetryAttempts)
	}
	if cfg.RetryMax < cfg.RetryInitial {
		return nil, fmt.Errorf("%s (%s) is shorter than %s (%s)", KeyRetryMax, cfg.RetryMax, KeyRetryInitial, cfg.RetryInitial)
	}

	return cfg, nil
}

// Settings returns the core settings handed to the spec builder and provider cache.
func (c *Config) Settings() core.Settings {
	return core.Settings{
		GlobalSources:        c.Sources,
		RetryAttempts:        c.RetryAttempts,
		RetryInitialInterval: c.RetryInitial,
		RetryMaxInterval:     c.RetryMax,
		BreakerThreshold:     c.BreakerThreshold,
		BreakerCooldown:      c.BreakerCooldown,
		MetadataCacheSize:    c.MetadataCacheSize,
		Values:               c.Values,
	}
}

// Options returns restore options for the configured values. Logger,
// Providers and Installer are left for the caller.
func (c *Config) Options() restore.Options {
	return restore.Options{
		PackagesFolder:   c.PackagesFolder,
		MaxParallel:      c.MaxParallel,
		ResolverParallel: c.ResolverParallel,
		FailFast:         c.FailFast,
	}
}

// TracerConfig returns the tracing setup for the configured exporter.
func (c *Config) TracerConfig(serviceVersion string) observability.TracerConfig {
	tc := observability.DefaultTracerConfig()
	tc.ServiceVersion = serviceVersion
	tc.ExporterType = c.TraceExporter
	tc.OTLPEndpoint = c.TraceEndpoint
	return tc
}

// parseSources accepts a list of "location" or "name=location" strings, a
// comma-separated string as read from the environment, or a list of
// {name, location} maps from a config file. Relative local paths resolve
// against base.
func parseSources(raw any, base string) ([]core.PackageSource, error) {
	var items []any
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		for _, s := range strings.Split(val, ",") {
			items = append(items, s)
		}
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	case []any:
		items = val
	default:
		return nil, fmt.Errorf("invalid %s: unsupported value %v", KeySources, raw)
	}

	var sources []core.PackageSource
	for _, item := range items {
		var src core.PackageSource
		switch val := item.(type) {
		case string:
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			if name, loc, ok := strings.Cut(val, "="); ok {
				src = core.PackageSource{Name: strings.TrimSpace(name), Location: strings.TrimSpace(loc)}
			} else {
				src = core.PackageSource{Location: val}
			}
		case map[string]any:
			src.Name, _ = val["name"].(string)
			src.Location, _ = val["location"].(string)
		default:
			return nil, fmt.Errorf("invalid %s entry: %v", KeySources, item)
		}

		if src.Location == "" {
			return nil, fmt.Errorf("invalid %s entry %q: location is required", KeySources, src.Name)
		}
		src.Location = ResolveLocation(src.Location, base)
		sources = append(sources, src)
	}
	return sources, nil
}

// ResolveLocation makes a relative local source path absolute against base.
// URLs and absolute paths are returned unchanged.
func ResolveLocation(location, base string) string {
	if strings.Contains(location, "://") || filepath.IsAbs(location) || base == "" {
		return location
	}
	return filepath.Join(base, location)
}
