package rawlog_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/tourney-ingest/internal/adapters/rawlog"
	"github.com/okian/tourney-ingest/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func sealed(title string) model.RawEvent {
	r := model.NewRawEvent("club", "https://club.example")
	r.Set(model.FieldTitle, title)
	r.Set(model.FieldCity, "")
	return r.Seal()
}

func collect(path string) ([]model.RawEvent, []error) {
	var recs []model.RawEvent
	var errs []error
	for r, err := range rawlog.Read(path) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, r)
	}
	return recs, errs
}

func TestWriterReader(t *testing.T) {
	Convey("Given a run log", t, func() {
		dir := t.TempDir()
		w, err := rawlog.Create(dir, "run-1")
		So(err, ShouldBeNil)

		Convey("When records are appended concurrently", func() {
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = w.Append(sealed(fmt.Sprintf("event %d", i)))
				}()
			}
			wg.Wait()
			So(w.Close(), ShouldBeNil)

			Convey("Then every record reads back intact", func() {
				recs, errs := collect(w.Path())
				So(errs, ShouldBeEmpty)
				So(len(recs), ShouldEqual, 20)
				So(w.Count(), ShouldEqual, 20)
				for _, r := range recs {
					So(r.SourceName, ShouldEqual, "club")
					So(r.SourceHash, ShouldEqual, model.ComputeHash(r))
					v, ok := r.Get(model.FieldCity)
					So(ok, ShouldBeTrue)
					So(v, ShouldEqual, "")
					_, ok = r.Get(model.FieldStart)
					So(ok, ShouldBeFalse)
				}
			})
		})

		Convey("When the writer is closed", func() {
			So(w.Close(), ShouldBeNil)

			Convey("Then appends fail and a second close is a no-op", func() {
				So(errors.Is(w.Append(sealed("late")), rawlog.ErrClosed), ShouldBeTrue)
				So(w.Close(), ShouldBeNil)
			})
		})

		Convey("When the same run id is created twice", func() {
			_, err := rawlog.Create(dir, "run-1")
			So(err, ShouldNotBeNil)
			_ = w.Close()
		})
	})
}

func TestReadTolerance(t *testing.T) {
	Convey("Given a log with typed values and a broken line", t, func() {
		path := filepath.Join(t.TempDir(), "raw_events-x.jsonl")
		content := `{"source_name":"x","source_url":"u","title":"A","buy_in":100,"start":"2025-01-01","end":null,"featured":true}
{broken
["array"]

{"source_name":"x","source_url":"u","title":"B","venue_name":{"nested":1}}
{"source_url":"u","title":"C"}
{"source_name":"x","source_url":"u","title":"D","buy_in":12.50}
`
		So(os.WriteFile(path, []byte(content), 0o600), ShouldBeNil)

		recs, errs := collect(path)

		Convey("Then good lines are read and bad ones are errors", func() {
			So(len(recs), ShouldEqual, 2)
			So(len(errs), ShouldEqual, 4)
			for _, err := range errs {
				So(errors.Is(err, rawlog.ErrMalformed), ShouldBeTrue)
			}
		})

		Convey("Then scalars keep their literal text", func() {
			So(recs[0].Text(model.FieldBuyIn), ShouldEqual, "100")
			So(recs[0].Text("featured"), ShouldEqual, "true")
			_, ok := recs[0].Get(model.FieldEnd)
			So(ok, ShouldBeFalse)
			So(recs[0].SourceHash, ShouldNotBeEmpty)
			So(recs[1].Text(model.FieldBuyIn), ShouldEqual, "12.50")
		})
	})

	Convey("Given a missing log", t, func() {
		_, errs := collect(filepath.Join(t.TempDir(), "none.jsonl"))
		So(len(errs), ShouldEqual, 1)
	})
}

func TestLatest(t *testing.T) {
	Convey("Given a directory with several run logs", t, func() {
		dir := t.TempDir()
		old := rawlog.PathFor(dir, "a")
		recent := rawlog.PathFor(dir, "b")
		So(os.WriteFile(old, nil, 0o600), ShouldBeNil)
		So(os.WriteFile(recent, nil, 0o600), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600), ShouldBeNil)
		past := time.Now().Add(-time.Hour)
		So(os.Chtimes(old, past, past), ShouldBeNil)

		Convey("Then the newest one is returned", func() {
			got, err := rawlog.Latest(dir)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, recent)
		})

		Convey("Then an empty directory has none", func() {
			_, err := rawlog.Latest(t.TempDir())
			So(errors.Is(err, rawlog.ErrNoLog), ShouldBeTrue)
		})
	})
}
