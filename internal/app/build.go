package service

import (
	"context"
	"fmt"
	"io"

	"github.com/okian/tourney-ingest/internal/adapters/connector"
	"github.com/okian/tourney-ingest/internal/adapters/geocode"
	"github.com/okian/tourney-ingest/internal/adapters/repository"
	"github.com/okian/tourney-ingest/internal/adapters/repository/postgres"
	"github.com/okian/tourney-ingest/internal/config"
	"github.com/okian/tourney-ingest/internal/domain/normalize"
	"github.com/okian/tourney-ingest/pkg/logger"
)

// FromConfig builds a Service with every component configured from cfg.
// Opened resources (store pool, geocode cache) are released by Close.
// Extra options are applied last.
func FromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	log := logger.Default()

	var closers []io.Closer
	fail := func(err error) (*Service, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	var resolver *geocode.Resolver
	if cfg.GeocodeEnabled {
		cache, err := openCache(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, cache)

		nominatim, err := geocode.NewNominatim(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocodeTimeout())
		if err != nil {
			return fail(fmt.Errorf("%w: %w", config.ErrInvalidConfig, err))
		}
		resolver = geocode.NewResolver(cache, geocode.NewIntervalLimiter(cfg.GeocodeMinInterval()), nominatim,
			geocode.WithLogger(log))
	}

	fetcher := connector.NewFetcher(
		connector.WithUserAgent(cfg.UserAgent),
		connector.WithMaxBytes(cfg.MaxDocumentBytes),
	)
	runner := NewRunner(connector.NewFactory(fetcher), cfg.OutputDir,
		WithFetchConcurrency(cfg.FetchConcurrency),
		WithSourceTimeout(cfg.FetchTimeout()),
		WithRunnerLogger(log),
	)

	normalizer := normalize.New(
		normalize.WithLocation(cfg.Location()),
		normalize.WithDefaultCurrency(cfg.DefaultCurrency),
	)
	engine := NewEngine(store, WithMaxRetries(cfg.UpsertMaxRetries), WithEngineLogger(log))
	stageOpts := []StageOption{
		WithWorkerCount(cfg.NormalizeWorkers),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithCountry(cfg.DefaultCountry),
		WithStageLogger(log),
	}
	if resolver != nil {
		stageOpts = append(stageOpts, WithResolver(resolver))
	}
	stage := NewStage(normalizer, engine, stageOpts...)

	base := []Option{
		WithLogger(log),
		WithStore(store),
		WithRunner(runner),
		WithStage(stage),
		WithCatalogPath(cfg.CatalogPath),
		WithOutputDir(cfg.OutputDir),
	}
	for _, c := range closers {
		base = append(base, WithCloser(c))
	}
	return New(append(base, opts...)...), nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, io.Closer, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil, nil
	case config.StorePostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.WithMaxConns(int32(cfg.DBMaxConns))) //nolint:gosec // validated small positive value
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return pg, pg, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

func openCache(ctx context.Context, cfg *config.Config) (geocode.Cache, error) {
	switch cfg.GeocodeCacheBackend {
	case config.CacheMemory:
		return geocode.NewMemoryCache(), nil
	case config.CacheSQLite:
		c, err := geocode.OpenSQLiteCache(ctx, cfg.GeocodeCachePath)
		if err != nil {
			return nil, fmt.Errorf("open geocode cache: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown geocode cache backend %q", config.ErrInvalidConfig, cfg.GeocodeCacheBackend)
	}
}
