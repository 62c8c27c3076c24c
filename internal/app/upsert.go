package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tourney-ingest/internal/adapters/repository"
	"github.com/okian/tourney-ingest/internal/domain/model"
	"github.com/okian/tourney-ingest/pkg/logger"
	"github.com/okian/tourney-ingest/pkg/metrics"
)

// Default upsert configuration constants.
const (
	defaultUpsertRetries = 3
	defaultRetryBackoff  = 25 * time.Millisecond
)

// Outcome describes what one Upsert wrote.
type Outcome struct {
	VenueCreated bool
	Event        repository.UpsertResult
	EndCleared   bool
}

// Engine writes canonical events and their venues. All writes for one venue
// key are linearized in-process; the store's natural keys cover other
// processes.
type Engine struct {
	store      repository.Store
	locks      *stripedMutex
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxRetries sets how many times a conflicting transaction is retried.
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between retries. Attempt n waits n
// times the base.
func WithRetryBackoff(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.backoff = d
		}
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine writing to store.
func NewEngine(store repository.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      store,
		locks:      newStripedMutex(defaultLockStripes),
		maxRetries: defaultUpsertRetries,
		backoff:    defaultRetryBackoff,
		logger:     logger.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("upsert")
	return e
}

// Upsert stores ev and its venue in one transaction. loc, when known, is
// merged into the venue. An end before the start is dropped and reported in
// the outcome.
func (e *Engine) Upsert(ctx context.Context, ev model.CanonicalEvent, loc *model.Location) (Outcome, error) { //nolint:gocritic // hugeParam: event is copied before mutation
	var endCleared bool
	if ev.End != nil && ev.End.Before(ev.Start) {
		ev.End = nil
		endCleared = true
	}

	venue := model.Venue{Name: ev.VenueName, City: ev.City, Address: ev.Address}
	venue.ApplyLocation(loc)

	unlock := e.locks.Lock(ev.VenueKey().String())
	defer unlock()

	for attempt := 0; ; attempt++ {
		out, err := e.write(ctx, venue, ev)
		if err == nil {
			out.EndCleared = endCleared
			e.record(out)
			return out, nil
		}
		if !errors.Is(err, repository.ErrConflict) || attempt >= e.maxRetries {
			metrics.RecordStoreError()
			return Outcome{}, fmt.Errorf("upsert %q at %s: %w", ev.Title, ev.Start.Format(time.RFC3339), err)
		}

		metrics.RecordStoreConflict()
		e.logger.Debug(ctx, "store conflict, retrying",
			logger.String("title", ev.Title),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)
		if err := sleep(ctx, e.backoff*time.Duration(attempt+1)); err != nil {
			metrics.RecordStoreError()
			return Outcome{}, err
		}
	}
}

func (e *Engine) write(ctx context.Context, venue model.Venue, ev model.CanonicalEvent) (Outcome, error) { //nolint:gocritic // hugeParam
	var out Outcome
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		id, found, err := e.store.FindVenue(ctx, venue.Name, venue.City)
		if err != nil {
			return err
		}
		switch {
		case !found:
			if id, err = e.store.InsertVenue(ctx, venue); err != nil {
				return err
			}
			out.VenueCreated = true
		case hasAttributes(venue):
			if err := e.store.UpdateVenueCoordinates(ctx, id, venue); err != nil {
				return err
			}
		}

		out.Event, err = e.store.UpsertEvent(ctx, id, ev)
		return err
	})
	return out, err
}

func (e *Engine) record(out Outcome) {
	if out.VenueCreated {
		metrics.RecordUpsert("venue", "created")
	}
	metrics.RecordUpsert("event", out.Event.String())
	if out.EndCleared {
		metrics.RecordUpsert("event", "end_before_start")
	}
}

func hasAttributes(v model.Venue) bool {
	return v.Address != "" || v.Department != "" || v.Region != "" || v.Latitude != nil || v.Longitude != nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
