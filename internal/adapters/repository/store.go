// Package repository defines the durable store contract for venues and
// tournaments, with an in-memory implementation.
package repository

import (
	"context"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// UpsertResult reports what UpsertEvent did.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Store provides transactional access to venues and tournaments.
//
// Every method called with the context passed to a WithTx callback joins that
// transaction. Calls outside WithTx run on their own.
type Store interface {
	// WithTx runs fn in one transaction. A non-nil error from fn rolls back
	// every write made through the callback context.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// FindVenue returns the id of the venue with this natural key.
	FindVenue(ctx context.Context, name, city string) (int64, bool, error)

	// InsertVenue stores a new venue and returns its id. Returns ErrConflict
	// when another writer created the same (name, city) first.
	InsertVenue(ctx context.Context, v model.Venue) (int64, error)

	// UpdateVenueCoordinates merges non-empty attributes of v into the
	// stored venue. Known values are never cleared.
	UpdateVenueCoordinates(ctx context.Context, id int64, v model.Venue) error

	// UpsertEvent inserts the tournament or, when (venue, title, start)
	// already exists, refreshes its mutable fields.
	UpsertEvent(ctx context.Context, venueID int64, ev model.CanonicalEvent) (UpsertResult, error)
}

// Counts summarizes store contents for the stats endpoint.
type Counts struct {
	Venues int64 `json:"venues"`
	Events int64 `json:"events"`
}

// Counter is implemented by stores that can report their size.
type Counter interface {
	Count(ctx context.Context) (Counts, error)
}
