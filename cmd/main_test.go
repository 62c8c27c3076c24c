package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tourney-ingest/internal/adapters/catalog"
	service "github.com/okian/tourney-ingest/internal/app"
)

func TestParseArgs(t *testing.T) {
	convey.Convey("Given command line arguments", t, func() {
		cases := []struct {
			args    []string
			want    command
			wantErr bool
		}{
			{args: nil, want: command{name: cmdRun}},
			{args: []string{"run"}, want: command{name: cmdRun}},
			{args: []string{"ingest"}, want: command{name: cmdIngest}},
			{args: []string{"normalize"}, want: command{name: cmdNormalize}},
			{args: []string{"normalize", "output/raw_events-1.jsonl"}, want: command{name: cmdNormalize, logPath: "output/raw_events-1.jsonl"}},
			{args: []string{"ingest", "extra"}, wantErr: true},
			{args: []string{"normalize", "a", "b"}, wantErr: true},
			{args: []string{"serve"}, wantErr: true},
		}

		for _, tc := range cases {
			got, err := parseArgs(tc.args)
			if tc.wantErr {
				convey.So(errors.Is(err, errUsage), convey.ShouldBeTrue)
				continue
			}
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldResemble, tc.want)
		}
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given the main entry point", t, func() {
		var stdout, stderr bytes.Buffer

		convey.Convey("When an unknown command is given", func() {
			code := run([]string{"serve"}, &stdout, &stderr)

			convey.Convey("Then usage is printed and the exit code says so", func() {
				convey.So(code, convey.ShouldEqual, exitUsage)
				convey.So(stderr.String(), convey.ShouldContainSubstring, "usage:")
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			t.Setenv("TOURNEY_STORE", "postgres")
			t.Setenv("TOURNEY_DATABASE_URL", "")
			code := run([]string{"ingest"}, &stdout, &stderr)

			convey.Convey("Then the process aborts before doing any work", func() {
				convey.So(code, convey.ShouldEqual, exitFailure)
				convey.So(stderr.String(), convey.ShouldContainSubstring, "failed to load config")
			})
		})
	})
}

func TestExecute(t *testing.T) {
	convey.Convey("Given a service over a local table", t, func() {
		dir := t.TempDir()
		csvPath := filepath.Join(dir, "agenda.csv")
		convey.So(os.WriteFile(csvPath, []byte("title,start,buy_in\nMain Event,2025-09-25T20:00:00+02:00,100€\n"), 0o600), convey.ShouldBeNil)

		svc := service.New(
			service.WithSources([]catalog.Source{{Name: "agenda", Type: catalog.TypeTable, URL: csvPath}}),
			service.WithOutputDir(filepath.Join(dir, "output")),
			service.WithRunner(service.NewRunner(nil, filepath.Join(dir, "output"))),
		)
		ctx := context.Background()
		var out bytes.Buffer

		convey.Convey("When the default command runs", func() {
			err := execute(ctx, svc, command{name: cmdRun}, &out)

			convey.Convey("Then both reports are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				var s summary
				convey.So(json.Unmarshal(out.Bytes(), &s), convey.ShouldBeNil)
				convey.So(s.Ingest, convey.ShouldNotBeNil)
				convey.So(s.Ingest.TotalRecords, convey.ShouldEqual, 1)
				convey.So(s.Normalize, convey.ShouldNotBeNil)
				convey.So(s.Normalize.EventsInserted, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When ingest and normalize run separately", func() {
			convey.So(execute(ctx, svc, command{name: cmdIngest}, &out), convey.ShouldBeNil)
			out.Reset()
			err := execute(ctx, svc, command{name: cmdNormalize}, &out)

			convey.Convey("Then normalize picks up the latest log", func() {
				convey.So(err, convey.ShouldBeNil)
				var s summary
				convey.So(json.Unmarshal(out.Bytes(), &s), convey.ShouldBeNil)
				convey.So(s.Ingest, convey.ShouldBeNil)
				convey.So(s.Normalize.Accepted, convey.ShouldEqual, 1)
				convey.So(s.Normalize.Rejected, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When normalize is pointed at a missing log", func() {
			err := execute(ctx, svc, command{name: cmdNormalize, logPath: filepath.Join(dir, "nope.jsonl")}, &out)

			convey.Convey("Then the error is returned and nothing printed", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(out.Len(), convey.ShouldEqual, 0)
			})
		})
	})
}
