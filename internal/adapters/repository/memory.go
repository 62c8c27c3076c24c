package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Event is a stored tournament row.
type Event struct {
	ID      int64
	VenueID int64
	model.CanonicalEvent
	CreatedAt time.Time
	UpdatedAt time.Time
}

type txKey struct{}

// MemoryStore keeps venues and tournaments in maps guarded by one mutex.
// A transaction holds the mutex for its whole callback and restores a
// snapshot when the callback fails.
type MemoryStore struct {
	mu sync.Mutex

	venues    map[int64]model.Venue
	venueKeys map[model.VenueKey]int64
	events    map[model.EventKey]Event
	nextVenue int64
	nextEvent int64

	now func() time.Time
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Counter = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		venues:    make(map[int64]model.Venue),
		venueKeys: make(map[model.VenueKey]int64),
		events:    make(map[model.EventKey]Event),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type snapshot struct {
	venues    map[int64]model.Venue
	venueKeys map[model.VenueKey]int64
	events    map[model.EventKey]Event
	nextVenue int64
	nextEvent int64
}

func (s *MemoryStore) snapshot() snapshot {
	return snapshot{
		venues:    maps.Clone(s.venues),
		venueKeys: maps.Clone(s.venueKeys),
		events:    maps.Clone(s.events),
		nextVenue: s.nextVenue,
		nextEvent: s.nextEvent,
	}
}

func (s *MemoryStore) restore(snap snapshot) {
	s.venues = snap.venues
	s.venueKeys = snap.venueKeys
	s.events = snap.events
	s.nextVenue = snap.nextVenue
	s.nextEvent = snap.nextEvent
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*MemoryStore)
	return owner == s
}

// lock acquires the mutex unless ctx already belongs to a transaction on s.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTx implements Store. Nested calls join the outer transaction.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			panic(r)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// FindVenue implements Store.
func (s *MemoryStore) FindVenue(ctx context.Context, name, city string) (int64, bool, error) {
	defer s.lock(ctx)()
	id, ok := s.venueKeys[model.VenueKey{Name: name, City: city}]
	return id, ok, nil
}

// InsertVenue implements Store.
func (s *MemoryStore) InsertVenue(ctx context.Context, v model.Venue) (int64, error) {
	defer s.lock(ctx)()

	key := v.Key()
	if _, exists := s.venueKeys[key]; exists {
		return 0, fmt.Errorf("%w: venue %q in %q", ErrConflict, v.Name, v.City)
	}
	s.nextVenue++
	v.ID = s.nextVenue
	s.venues[v.ID] = v
	s.venueKeys[key] = v.ID
	return v.ID, nil
}

// UpdateVenueCoordinates implements Store.
func (s *MemoryStore) UpdateVenueCoordinates(ctx context.Context, id int64, v model.Venue) error {
	defer s.lock(ctx)()

	cur, ok := s.venues[id]
	if !ok {
		return fmt.Errorf("%w: venue %d", ErrNotFound, id)
	}
	s.venues[id] = cur.Merge(v)
	return nil
}

// UpsertEvent implements Store.
func (s *MemoryStore) UpsertEvent(ctx context.Context, venueID int64, ev model.CanonicalEvent) (UpsertResult, error) {
	defer s.lock(ctx)()

	if _, ok := s.venues[venueID]; !ok {
		return 0, fmt.Errorf("%w: venue %d", ErrNotFound, venueID)
	}

	key := model.EventKey{VenueID: venueID, Title: ev.Title, Start: ev.Start.UTC()}
	now := s.now()

	if cur, ok := s.events[key]; ok {
		cur.Description = ev.Description
		cur.End = ev.End
		cur.BuyInCents = ev.BuyInCents
		cur.Currency = ev.Currency
		cur.Variant = ev.Variant
		cur.Status = ev.Status
		cur.SourceURL = ev.SourceURL
		cur.SourceHash = ev.SourceHash
		cur.UpdatedAt = now
		s.events[key] = cur
		return Updated, nil
	}

	s.nextEvent++
	ev.Start = key.Start
	s.events[key] = Event{
		ID:             s.nextEvent,
		VenueID:        venueID,
		CanonicalEvent: ev,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return Inserted, nil
}

// Count implements Counter.
func (s *MemoryStore) Count(ctx context.Context) (Counts, error) {
	defer s.lock(ctx)()
	return Counts{Venues: int64(len(s.venues)), Events: int64(len(s.events))}, nil
}

// Venues returns every stored venue ordered by id.
func (s *MemoryStore) Venues() []model.Venue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.venues))
	slices.SortFunc(out, func(a, b model.Venue) int { return int(a.ID - b.ID) })
	return out
}

// Events returns every stored tournament ordered by id.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.events))
	slices.SortFunc(out, func(a, b Event) int { return int(a.ID - b.ID) })
	return out
}
