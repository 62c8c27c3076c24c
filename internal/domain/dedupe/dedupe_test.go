package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/tourney-ingest/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When recording hashes", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the hash is new", func() {
				seen := d.SeenAndRecord(ctx, "a1b2")

				Convey("Then it should return false and record it", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the hash was already seen", func() {
				d.SeenAndRecord(ctx, "a1b2")
				seen := d.SeenAndRecord(ctx, "a1b2")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When unrecording hashes", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "a1b2")
			d.Unrecord(ctx, "a1b2")
			d.Unrecord(ctx, "missing")

			Convey("Then the hash can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "a1b2"), ShouldBeFalse)
			})
		})

		Convey("When using bounded mode at capacity", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for _, id := range []string{"h1", "h2", "h3", "h4"} {
				d.SeenAndRecord(ctx, id)
			}

			Convey("Then the oldest hash is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "h4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "h1"), ShouldBeFalse)
			})
		})

		Convey("When an unrecorded slot is reused", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.SeenAndRecord(ctx, "h1")
			d.Unrecord(ctx, "h1")
			d.SeenAndRecord(ctx, "h2")
			d.SeenAndRecord(ctx, "h3")

			Convey("Then live hashes are not lost", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "h3"), ShouldBeTrue)
			})
		})

		Convey("When using unbounded mode", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(-1))
			for i := range 1000 {
				d.SeenAndRecord(ctx, fmt.Sprintf("h%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "h0"), ShouldBeTrue)
			})
		})

		Convey("When recording the empty string", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))

			Convey("Then it behaves like any other id", func() {
				So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, ""), ShouldBeTrue)
			})
		})
	})

	Convey("Given a deduper with concurrent access", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10_000))

		Convey("When goroutines race on the same hashes", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range 100 {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("h%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each hash is new exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
