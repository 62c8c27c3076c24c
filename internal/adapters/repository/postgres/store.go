// Package postgres implements repository.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/tourney-ingest/internal/adapters/repository"
	"github.com/okian/tourney-ingest/internal/adapters/repository/postgres/migrations"
	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Store is a Postgres-backed repository.Store. Transactions travel in the
// context so every method called inside WithTx joins it.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ repository.Store   = (*Store)(nil)
	_ repository.Counter = (*Store)(nil)
)

// Option configures Open.
type Option func(*pgxpool.Config)

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool. The caller applies migrations.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WithTx implements repository.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

// FindVenue implements repository.Store.
func (s *Store) FindVenue(ctx context.Context, name, city string) (int64, bool, error) {
	const query = `SELECT id FROM venues WHERE name = $1 AND city = $2`
	var id int64
	err := s.queryRow(ctx, query, name, city).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, mapError("find venue", err)
	}
	return id, true, nil
}

// InsertVenue implements repository.Store.
func (s *Store) InsertVenue(ctx context.Context, v model.Venue) (int64, error) {
	const query = `
INSERT INTO venues (name, city, address, department, region, latitude, longitude)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	var id int64
	err := s.queryRow(ctx, query,
		v.Name, v.City, nullString(v.Address), nullString(v.Department), nullString(v.Region),
		v.Latitude, v.Longitude,
	).Scan(&id)
	if err != nil {
		return 0, mapError("insert venue", err)
	}
	return id, nil
}

// UpdateVenueCoordinates implements repository.Store. NULL or empty inputs
// leave the stored value alone.
func (s *Store) UpdateVenueCoordinates(ctx context.Context, id int64, v model.Venue) error {
	const query = `
UPDATE venues SET
	address = COALESCE($2, address),
	department = COALESCE($3, department),
	region = COALESCE($4, region),
	latitude = COALESCE($5, latitude),
	longitude = COALESCE($6, longitude),
	updated_at = NOW()
WHERE id = $1`
	tag, err := s.exec(ctx, query,
		id, nullString(v.Address), nullString(v.Department), nullString(v.Region), v.Latitude, v.Longitude,
	)
	if err != nil {
		return mapError("update venue", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: venue %d", repository.ErrNotFound, id)
	}
	return nil
}

// UpsertEvent implements repository.Store. xmax is zero only on rows the
// statement inserted.
func (s *Store) UpsertEvent(ctx context.Context, venueID int64, ev model.CanonicalEvent) (repository.UpsertResult, error) {
	const query = `
INSERT INTO tournaments
	(venue_id, title, description, start_at, end_at, buy_in_cents, currency, variant, status, source_url, source_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (venue_id, title, start_at) DO UPDATE SET
	description = EXCLUDED.description,
	end_at = EXCLUDED.end_at,
	buy_in_cents = EXCLUDED.buy_in_cents,
	currency = EXCLUDED.currency,
	variant = EXCLUDED.variant,
	status = EXCLUDED.status,
	source_url = EXCLUDED.source_url,
	source_hash = EXCLUDED.source_hash,
	updated_at = NOW()
RETURNING (xmax = 0) AS inserted`
	var inserted bool
	err := s.queryRow(ctx, query,
		venueID, ev.Title, nullString(ev.Description), ev.Start.UTC(), ev.End, ev.BuyInCents,
		ev.Currency, nullString(ev.Variant), string(ev.Status), nullString(ev.SourceURL), nullString(ev.SourceHash),
	).Scan(&inserted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, fmt.Errorf("%w: venue %d", repository.ErrNotFound, venueID)
		}
		return 0, mapError("upsert tournament", err)
	}
	if inserted {
		return repository.Inserted, nil
	}
	return repository.Updated, nil
}

// Count implements repository.Counter.
func (s *Store) Count(ctx context.Context) (repository.Counts, error) {
	var c repository.Counts
	err := s.queryRow(ctx, `SELECT (SELECT COUNT(*) FROM venues), (SELECT COUNT(*) FROM tournaments)`).
		Scan(&c.Venues, &c.Events)
	if err != nil {
		return repository.Counts{}, mapError("count", err)
	}
	return c, nil
}

// GetVenue loads one venue by id.
func (s *Store) GetVenue(ctx context.Context, id int64) (model.Venue, error) {
	const query = `
SELECT id, name, city, COALESCE(address, ''), COALESCE(department, ''), COALESCE(region, ''), latitude, longitude
FROM venues WHERE id = $1`
	var v model.Venue
	err := s.queryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.City, &v.Address, &v.Department, &v.Region, &v.Latitude, &v.Longitude,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Venue{}, fmt.Errorf("%w: venue %d", repository.ErrNotFound, id)
	}
	if err != nil {
		return model.Venue{}, mapError("get venue", err)
	}
	return v, nil
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
