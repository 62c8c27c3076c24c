package service_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tourney-ingest/internal/adapters/catalog"
	"github.com/okian/tourney-ingest/internal/adapters/connector"
	"github.com/okian/tourney-ingest/internal/adapters/rawlog"
	service "github.com/okian/tourney-ingest/internal/app"
	"github.com/okian/tourney-ingest/internal/domain/model"
)

const feedDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Club</title><link>https://club.example</link>
<item>
  <title>Sunday Deepstack</title>
  <link>https://club.example/events/1</link>
  <description>Buy-in: 150 €</description>
  <pubDate>Sun, 02 Mar 2025 14:00:00 +0100</pubDate>
</item>
<item>
  <title>Monday Turbo</title>
  <link>https://club.example/events/2</link>
  <pubDate>Mon, 03 Mar 2025 20:00:00 +0100</pubDate>
</item>
</channel></rss>`

const tableDoc = "Name,When,Price\n" +
	"Main Event,2025-09-25T20:00:00+02:00,100€\n" +
	"Satellite,2025-09-25T18:00:00+02:00,10\n"

func tableSource(t *testing.T, name, body string) catalog.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".csv")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return catalog.Source{
		Name:     name,
		Type:     catalog.TypeTable,
		URL:      path,
		FieldMap: map[string]string{"Name": model.FieldTitle, "When": model.FieldStart, "Price": model.FieldBuyIn},
	}
}

func fixedRunID(id string) service.RunnerOption {
	return service.WithRunID(func() string { return id })
}

func TestRunner(t *testing.T) {
	Convey("Given a runner and a catalog of mixed sources", t, func() {
		ctx := context.Background()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/feed.xml":
				w.Header().Set("Content-Type", "application/rss+xml")
				_, _ = w.Write([]byte(feedDoc))
			case "/slow":
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		dir := t.TempDir()
		disabled := false
		sources := []catalog.Source{
			tableSource(t, "club-table", tableDoc),
			{Name: "club-feed", Type: catalog.TypeFeed, URL: srv.URL + "/feed.xml"},
			{Name: "gone", Type: catalog.TypeFeed, URL: srv.URL + "/missing.xml"},
			{Name: "pigeon", Type: "carrier-pigeon", URL: srv.URL},
			{Name: "paused", Type: catalog.TypeFeed, URL: srv.URL + "/feed.xml", Enabled: &disabled},
		}
		runner := service.NewRunner(connector.NewFactory(connector.NewFetcher(connector.WithRetry(1, 0, 0))), dir,
			fixedRunID("run-1"), service.WithFetchConcurrency(2))

		Convey("When the run completes", func() {
			report, err := runner.Run(ctx, sources)
			So(err, ShouldBeNil)

			Convey("Then the working sources filled the raw log", func() {
				So(report.RunID, ShouldEqual, "run-1")
				So(report.LogPath, ShouldEqual, rawlog.PathFor(dir, "run-1"))
				So(report.TotalRecords, ShouldEqual, 4)

				table, ok := report.Source("club-table")
				So(ok, ShouldBeTrue)
				So(table.Status, ShouldEqual, service.StatusOK)
				So(table.Records, ShouldEqual, 2)

				feed, _ := report.Source("club-feed")
				So(feed.Status, ShouldEqual, service.StatusOK)
				So(feed.Records, ShouldEqual, 2)

				var titles []string
				for rec, err := range rawlog.Read(report.LogPath) {
					So(err, ShouldBeNil)
					So(rec.SourceHash, ShouldNotBeEmpty)
					titles = append(titles, rec.Text(model.FieldTitle))
				}
				So(titles, ShouldHaveLength, 4)
				So(titles, ShouldContain, "Main Event")
				So(titles, ShouldContain, "Sunday Deepstack")
			})

			Convey("Then a failing source is reported without stopping the others", func() {
				gone, _ := report.Source("gone")
				So(gone.Status, ShouldEqual, service.StatusFailed)
				So(gone.Error, ShouldContainSubstring, "404")
				So(gone.Records, ShouldEqual, 0)
			})

			Convey("Then unknown and disabled sources are skipped", func() {
				pigeon, _ := report.Source("pigeon")
				So(pigeon.Status, ShouldEqual, service.StatusSkipped)
				So(pigeon.Error, ShouldContainSubstring, "carrier-pigeon")

				paused, _ := report.Source("paused")
				So(paused.Status, ShouldEqual, service.StatusSkipped)
				So(paused.Error, ShouldEqual, "disabled")
			})

			Convey("Then the report is written next to the log", func() {
				saved, err := service.ReadReport(report.LogPath)
				So(err, ShouldBeNil)
				So(saved.RunID, ShouldEqual, "run-1")
				So(saved.TotalRecords, ShouldEqual, 4)
				So(saved.Sources, ShouldHaveLength, len(sources))
				So(saved.Sources[0].Name, ShouldEqual, "club-table")
			})
		})

		Convey("When a source exceeds its timeout", func() {
			slow := catalog.Source{Name: "slow", Type: catalog.TypeFeed, URL: srv.URL + "/slow", TimeoutMS: 50}
			report, err := runner.Run(ctx, []catalog.Source{slow, tableSource(t, "fast", tableDoc)})

			Convey("Then it fails alone", func() {
				So(err, ShouldBeNil)
				rep, _ := report.Source("slow")
				So(rep.Status, ShouldEqual, service.StatusFailed)
				fast, _ := report.Source("fast")
				So(fast.Status, ShouldEqual, service.StatusOK)
				So(report.TotalRecords, ShouldEqual, 2)
			})
		})

		Convey("When a source's deadline expires while its rows are parsed", func() {
			var b strings.Builder
			b.WriteString("Name,When,Price\n")
			for i := range 200000 {
				fmt.Fprintf(&b, "Event %d,2025-09-25T20:00:00Z,10\n", i)
			}
			big := tableSource(t, "big", b.String())
			big.TimeoutMS = 5
			report, err := runner.Run(ctx, []catalog.Source{big, tableSource(t, "fast", tableDoc)})
			So(err, ShouldBeNil)

			Convey("Then none of its rows reach the log", func() {
				rep, _ := report.Source("big")
				So(rep.Status, ShouldEqual, service.StatusFailed)
				So(rep.Records, ShouldEqual, 0)
				So(report.TotalRecords, ShouldEqual, 2)

				bySource := map[string]int{}
				for rec, err := range rawlog.Read(report.LogPath) {
					So(err, ShouldBeNil)
					bySource[rec.SourceName]++
				}
				So(bySource["big"], ShouldEqual, 0)
				So(bySource["fast"], ShouldEqual, 2)
			})
		})

		Convey("When a table has a broken row", func() {
			src := tableSource(t, "broken", "Name,When,Price\nMain Event,2025-09-25T20:00:00Z,100\n\"unterminated,x,y\n")
			report, err := runner.Run(ctx, []catalog.Source{src})

			Convey("Then the row is counted as a parse error", func() {
				So(err, ShouldBeNil)
				rep, _ := report.Source("broken")
				So(rep.Status, ShouldEqual, service.StatusOK)
				So(rep.Records, ShouldEqual, 1)
				So(rep.ParseErrors, ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When the log for the run id already exists", func() {
			_, err := runner.Run(ctx, nil)
			So(err, ShouldBeNil)
			_, err = runner.Run(ctx, nil)

			Convey("Then the run refuses to overwrite it", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
