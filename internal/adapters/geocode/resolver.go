// Package geocode resolves venue addresses to coordinates behind a durable
// cache and a process-wide rate limiter.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/tourney-ingest/internal/domain/model"
	"github.com/okian/tourney-ingest/pkg/logger"
	"github.com/okian/tourney-ingest/pkg/metrics"
)

// Result is a resolved location and whether it came from the cache.
type Result struct {
	Location model.Location
	Cached   bool
}

// Resolver answers from the cache first and calls the geocoder, one permit
// at a time, on a miss.
type Resolver struct {
	cache    Cache
	limiter  Limiter
	geocoder Geocoder
	group    singleflight.Group
	logger   logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver wires the shared cache, limiter and geocoder.
func NewResolver(cache Cache, limiter Limiter, geocoder Geocoder, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    cache,
		limiter:  limiter,
		geocoder: geocoder,
		logger:   logger.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("geocode")
	return r
}

// Resolve returns the location of address.
func (r *Resolver) Resolve(ctx context.Context, address string) (model.Location, error) {
	res, err := r.Lookup(ctx, address)
	return res.Location, err
}

// Lookup resolves address and reports whether the cache answered. Concurrent
// misses for the same key share one remote call. ErrNotFound and
// ErrUnavailable are returned as is and never cached.
func (r *Resolver) Lookup(ctx context.Context, address string) (Result, error) {
	key := NormalizeKey(address)
	if key == "" {
		return Result{}, ErrNotFound
	}

	if loc, ok, err := r.cache.Get(ctx, key); err != nil {
		r.logger.Warn(ctx, "geocode cache read failed", logger.String("key", key), logger.Error(err))
	} else if ok {
		metrics.RecordGeocodeLookup("hit")
		return Result{Location: loc, Cached: true}, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.fetch(ctx, key)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.RecordGeocodeLookup("not_found")
		default:
			metrics.RecordGeocodeLookup("unavailable")
		}
		return Result{}, err
	}
	metrics.RecordGeocodeLookup("resolved")
	return Result{Location: v.(model.Location)}, nil
}

func (r *Resolver) fetch(ctx context.Context, key string) (model.Location, error) {
	// Another caller may have filled the entry while we waited for the flight.
	if loc, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		return loc, nil
	}

	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return model.Location{}, fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
	}
	loc, err := r.geocoder.Geocode(ctx, key)
	metrics.RecordGeocodeLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		r.logger.Debug(ctx, "geocode failed", logger.String("key", key), logger.Error(err))
		return model.Location{}, err
	}

	if err := r.cache.Put(ctx, key, loc); err != nil {
		r.logger.Warn(ctx, "geocode cache write failed", logger.String("key", key), logger.Error(err))
	}
	return loc, nil
}
