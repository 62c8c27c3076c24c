package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

func ptr[T any](v T) *T { return &v }

func sampleEvent(title string, start time.Time) model.CanonicalEvent {
	return model.CanonicalEvent{
		Title:      title,
		Start:      start,
		Currency:   "EUR",
		Status:     model.StatusScheduled,
		VenueName:  "Club A",
		City:       "Paris",
		BuyInCents: ptr(int64(10000)),
		SourceHash: "h1",
	}
}

func TestMemoryStoreVenues(t *testing.T) {
	Convey("Given an empty memory store", t, func() {
		ctx := context.Background()
		s := NewMemoryStore()

		Convey("When a venue is inserted", func() {
			id, err := s.InsertVenue(ctx, model.Venue{Name: "Club A", City: "Paris"})
			So(err, ShouldBeNil)

			Convey("Then it can be found by name and city", func() {
				got, ok, err := s.FindVenue(ctx, "Club A", "Paris")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, id)

				_, ok, _ = s.FindVenue(ctx, "Club A", "Lyon")
				So(ok, ShouldBeFalse)
			})

			Convey("Then inserting the same key conflicts", func() {
				_, err := s.InsertVenue(ctx, model.Venue{Name: "Club A", City: "Paris"})
				So(errors.Is(err, ErrConflict), ShouldBeTrue)
			})

			Convey("Then coordinate updates merge without clearing known values", func() {
				So(s.UpdateVenueCoordinates(ctx, id, model.Venue{
					Address: "1 rue X", Latitude: ptr(48.85), Longitude: ptr(2.35), Department: "Paris",
				}), ShouldBeNil)
				So(s.UpdateVenueCoordinates(ctx, id, model.Venue{Region: "Île-de-France"}), ShouldBeNil)

				v := s.Venues()[0]
				So(v.Address, ShouldEqual, "1 rue X")
				So(*v.Latitude, ShouldEqual, 48.85)
				So(v.Department, ShouldEqual, "Paris")
				So(v.Region, ShouldEqual, "Île-de-France")
			})
		})

		Convey("When updating an unknown venue", func() {
			err := s.UpdateVenueCoordinates(ctx, 42, model.Venue{Address: "x"})

			Convey("Then it reports not found", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStoreEvents(t *testing.T) {
	Convey("Given a store with one venue", t, func() {
		ctx := context.Background()
		clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		s := NewMemoryStore(WithClock(func() time.Time { return clock }))
		venueID, err := s.InsertVenue(ctx, model.Venue{Name: "Club A", City: "Paris"})
		So(err, ShouldBeNil)
		start := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

		Convey("When the same event is upserted twice", func() {
			first, err := s.UpsertEvent(ctx, venueID, sampleEvent("Main Event", start))
			So(err, ShouldBeNil)

			clock = clock.Add(time.Hour)
			updated := sampleEvent("Main Event", start)
			updated.Description = "Deepstack"
			second, err := s.UpsertEvent(ctx, venueID, updated)
			So(err, ShouldBeNil)

			Convey("Then it is inserted once and then updated in place", func() {
				So(first, ShouldEqual, Inserted)
				So(second, ShouldEqual, Updated)
				events := s.Events()
				So(len(events), ShouldEqual, 1)
				So(events[0].Description, ShouldEqual, "Deepstack")
				So(events[0].UpdatedAt.After(events[0].CreatedAt), ShouldBeTrue)
			})
		})

		Convey("When the same title moves to another start", func() {
			_, _ = s.UpsertEvent(ctx, venueID, sampleEvent("Main Event", start))
			res, err := s.UpsertEvent(ctx, venueID, sampleEvent("Main Event", start.Add(24*time.Hour)))

			Convey("Then a second row is created", func() {
				So(err, ShouldBeNil)
				So(res, ShouldEqual, Inserted)
				n, _ := s.Count(ctx)
				So(n, ShouldResemble, Counts{Venues: 1, Events: 2})
			})
		})

		Convey("When the venue does not exist", func() {
			_, err := s.UpsertEvent(ctx, venueID+1, sampleEvent("Main Event", start))

			Convey("Then it reports not found", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStoreTransactions(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		s := NewMemoryStore()
		start := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

		Convey("When a transaction fails after writing", func() {
			boom := errors.New("boom")
			err := s.WithTx(ctx, func(ctx context.Context) error {
				id, err := s.InsertVenue(ctx, model.Venue{Name: "Club A", City: "Paris"})
				if err != nil {
					return err
				}
				if _, err := s.UpsertEvent(ctx, id, sampleEvent("Main Event", start)); err != nil {
					return err
				}
				return boom
			})

			Convey("Then every write is rolled back", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				n, _ := s.Count(ctx)
				So(n, ShouldResemble, Counts{})
				_, ok, _ := s.FindVenue(ctx, "Club A", "Paris")
				So(ok, ShouldBeFalse)
			})

			Convey("Then ids are reused by the next insert", func() {
				id, err := s.InsertVenue(ctx, model.Venue{Name: "Club B"})
				So(err, ShouldBeNil)
				So(id, ShouldEqual, 1)
			})
		})

		Convey("When a transaction nests another", func() {
			err := s.WithTx(ctx, func(ctx context.Context) error {
				return s.WithTx(ctx, func(ctx context.Context) error {
					_, err := s.InsertVenue(ctx, model.Venue{Name: "Club A"})
					return err
				})
			})

			Convey("Then the inner call joins the outer one", func() {
				So(err, ShouldBeNil)
				So(len(s.Venues()), ShouldEqual, 1)
			})
		})

		Convey("When the callback panics", func() {
			So(func() {
				_ = s.WithTx(ctx, func(ctx context.Context) error {
					_, _ = s.InsertVenue(ctx, model.Venue{Name: "Club A"})
					panic("bad")
				})
			}, ShouldPanic)

			Convey("Then the write is rolled back and the store stays usable", func() {
				So(len(s.Venues()), ShouldEqual, 0)
				_, err := s.InsertVenue(ctx, model.Venue{Name: "Club A"})
				So(err, ShouldBeNil)
			})
		})

		Convey("When many goroutines insert the same venue in transactions", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			conflicts := 0
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.WithTx(ctx, func(ctx context.Context) error {
						_, err := s.InsertVenue(ctx, model.Venue{Name: "Club A", City: "Paris"})
						return err
					})
					if errors.Is(err, ErrConflict) {
						mu.Lock()
						conflicts++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(len(s.Venues()), ShouldEqual, 1)
				So(conflicts, ShouldEqual, 15)
			})
		})
	})
}
