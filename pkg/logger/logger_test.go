package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the logger package", t, func() {
		Convey("When initializing with defaults", func() {
			err := Init()

			Convey("Then a global logger is available", func() {
				So(err, ShouldBeNil)
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initializing with an unknown format", func() {
			err := Init(WithFormat("xml"))

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown log format")
			})
		})
	})
}

func TestLoggerJSON(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat("json"), WithOutput(&buf)), ShouldBeNil)
		defer func() { _ = Init() }()

		Convey("When logging with fields from a named logger", func() {
			Named("runner").With(String("run_id", "r1")).Info(context.Background(), "source fetched",
				String("source_name", "club"), Int("records", 3), Duration("took", 2*time.Second), Bool("ok", true))

			Convey("Then the line carries every field", func() {
				var line map[string]any
				So(json.Unmarshal(buf.Bytes(), &line), ShouldBeNil)
				So(line["msg"], ShouldEqual, "source fetched")
				So(line["component"], ShouldEqual, "runner")
				So(line["run_id"], ShouldEqual, "r1")
				So(line["records"], ShouldEqual, float64(3))
				So(line["took"], ShouldEqual, "2s")
				So(line["ok"], ShouldBeTrue)
			})
		})

		Convey("When the level filters debug output", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Debug(context.Background(), "hidden")
			Get().Warn(context.Background(), "shown")

			Convey("Then only the warning is written", func() {
				out := buf.String()
				So(strings.Contains(out, "hidden"), ShouldBeFalse)
				So(out, ShouldContainSubstring, "shown")
			})
		})
	})
}

func TestDefault(t *testing.T) {
	Convey("Given the Default accessor", t, func() {
		Convey("When the logger is initialized", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Default returns the global logger", func() {
				So(Default(), ShouldEqual, Get())
			})
		})

		Convey("When no global logger is set", func() {
			mu.Lock()
			saved := global
			global = nil
			mu.Unlock()
			defer func() {
				mu.Lock()
				global = saved
				mu.Unlock()
			}()

			Convey("Then a discarding logger is returned", func() {
				l := Default()
				So(l, ShouldNotBeNil)
				So(func() { l.Named("x").Info(context.Background(), "dropped") }, ShouldNotPanic)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "info", "", "WARN", "warning", "error"} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		_ = SetLevelString("info")
	})
}
