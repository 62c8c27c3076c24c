package service

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStripedMutex(t *testing.T) {
	Convey("Given a striped mutex", t, func() {
		m := newStripedMutex(8)

		Convey("When many goroutines increment under the same key", func() {
			var wg sync.WaitGroup
			n := 0
			for range 100 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock := m.Lock("casino barrière\x00lille")
					n++
					unlock()
				}()
			}
			wg.Wait()

			Convey("Then no increment is lost", func() {
				So(n, ShouldEqual, 100)
			})
		})

		Convey("When a non-positive stripe count is asked for", func() {
			So(len(newStripedMutex(0).stripes), ShouldEqual, defaultLockStripes)
		})
	})
}
