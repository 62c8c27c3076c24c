package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOURNEY_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TOURNEY_CONFIG is set
//  3. env (prefix TOURNEY_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TOURNEY_QUEUE_SIZE -> queue_size; underscores are kept to match the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.FetchConcurrency <= 0 {
		fail("fetch_concurrency must be positive, got %d", c.FetchConcurrency)
	}
	if c.FetchTimeoutMS <= 0 {
		fail("fetch_timeout_ms must be positive, got %d", c.FetchTimeoutMS)
	}
	if c.NormalizeWorkers <= 0 {
		fail("normalize_workers must be positive, got %d", c.NormalizeWorkers)
	}
	if c.QueueSize <= 0 {
		fail("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.OutputDir == "" {
		fail("output_dir must not be empty")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		fail("default_timezone %q: %v", c.DefaultTimezone, err)
	}
	if len(c.DefaultCurrency) != 3 {
		fail("default_currency must be a 3-letter code, got %q", c.DefaultCurrency)
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			fail("store %q requires database_url", c.Store)
		}
	default:
		fail("unknown store %q", c.Store)
	}

	if c.GeocodeEnabled {
		if strings.TrimSpace(c.GeocoderUserAgent) == "" {
			fail("geocoding requires geocoder_user_agent")
		}
		if c.GeocoderURL == "" {
			fail("geocoding requires geocoder_url")
		}
		if c.GeocodeMinIntervalMS < 0 {
			fail("geocode_min_interval_ms must not be negative")
		}
		switch c.GeocodeCacheBackend {
		case CacheMemory:
		case CacheSQLite:
			if c.GeocodeCachePath == "" {
				fail("geocode cache %q requires geocode_cache_path", c.GeocodeCacheBackend)
			}
		default:
			fail("unknown geocode_cache_backend %q", c.GeocodeCacheBackend)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
