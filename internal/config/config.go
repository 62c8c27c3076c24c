// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case so the same name works in YAML and TOURNEY_ env vars.
// - New() returns defaults; Load layers file and environment on top.
// - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"runtime"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Geocode cache backends.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// CatalogPath points at the YAML source catalog.
	CatalogPath string `koanf:"catalog_path"`
	// OutputDir receives one raw_events-<run>.jsonl file per ingest run.
	OutputDir string `koanf:"output_dir"`

	// FetchConcurrency bounds how many sources are fetched at once.
	FetchConcurrency int `koanf:"fetch_concurrency"`
	// FetchTimeoutMS bounds a single source fetch unless the catalog overrides it.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`
	// MaxDocumentBytes caps a fetched document.
	MaxDocumentBytes int64 `koanf:"max_document_bytes"`
	// UserAgent is sent with every source fetch.
	UserAgent string `koanf:"user_agent"`

	// NormalizeWorkers sets the size of the normalize worker pool.
	NormalizeWorkers int `koanf:"normalize_workers"`
	// QueueSize bounds the in-memory raw record queue.
	QueueSize int `koanf:"queue_size"`
	// DedupeSize bounds the per-pass source hash deduper.
	DedupeSize int `koanf:"dedupe_size"`

	DefaultCurrency string `koanf:"default_currency"`
	DefaultTimezone string `koanf:"default_timezone"`
	DefaultCountry  string `koanf:"default_country"`

	GeocodeEnabled       bool   `koanf:"geocode_enabled"`
	GeocoderURL          string `koanf:"geocoder_url"`
	GeocoderUserAgent    string `koanf:"geocoder_user_agent"`
	GeocodeMinIntervalMS int    `koanf:"geocode_min_interval_ms"`
	GeocodeTimeoutMS     int    `koanf:"geocode_timeout_ms"`
	GeocodeCacheBackend  string `koanf:"geocode_cache_backend"`
	GeocodeCachePath     string `koanf:"geocode_cache_path"`

	// Store selects the durable store: memory or postgres.
	Store            string `koanf:"store"`
	DatabaseURL      string `koanf:"database_url"`
	DBMaxConns       int    `koanf:"db_max_conns"`
	UpsertMaxRetries int    `koanf:"upsert_max_retries"`

	// MetricsAddr enables the /metrics listener when not empty, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		CatalogPath:          "catalog.yaml",
		OutputDir:            "output",
		FetchConcurrency:     4,
		FetchTimeoutMS:       15_000,
		MaxDocumentBytes:     10 << 20,
		UserAgent:            "tourney-ingest/1.0",
		NormalizeWorkers:     runtime.NumCPU(),
		QueueSize:            10_000,
		DedupeSize:           100_000,
		DefaultCurrency:      "EUR",
		DefaultTimezone:      "Europe/Paris",
		DefaultCountry:       "France",
		GeocodeEnabled:       true,
		GeocoderURL:          "https://nominatim.openstreetmap.org",
		GeocoderUserAgent:    "tourney-ingest/1.0 (contact@example.org)",
		GeocodeMinIntervalMS: 1000,
		GeocodeTimeoutMS:     10_000,
		GeocodeCacheBackend:  CacheSQLite,
		GeocodeCachePath:     "geocode_cache.db",
		Store:                StoreMemory,
		DBMaxConns:           8,
		UpsertMaxRetries:     3,
	}
}

// FetchTimeout returns FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// GeocodeMinInterval returns the minimum delay between two remote geocoder calls.
func (c *Config) GeocodeMinInterval() time.Duration {
	return time.Duration(c.GeocodeMinIntervalMS) * time.Millisecond
}

// GeocodeTimeout returns GeocodeTimeoutMS as a duration.
func (c *Config) GeocodeTimeout() time.Duration {
	return time.Duration(c.GeocodeTimeoutMS) * time.Millisecond
}

// Location resolves DefaultTimezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
