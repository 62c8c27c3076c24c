package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/tourney-ingest/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.DefaultCurrency, convey.ShouldEqual, "EUR")
			convey.So(cfg.DefaultTimezone, convey.ShouldEqual, "Europe/Paris")
			convey.So(cfg.DefaultCountry, convey.ShouldEqual, "France")
			convey.So(cfg.GeocodeMinInterval(), convey.ShouldEqual, time.Second)
			convey.So(cfg.NormalizeWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the location resolves to Paris", func() {
			convey.So(cfg.Location().String(), convey.ShouldEqual, "Europe/Paris")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break a constraint", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"postgres without url", func(c *config.Config) { c.Store = config.StorePostgres }},
			{"unknown store", func(c *config.Config) { c.Store = "mongo" }},
			{"missing user agent", func(c *config.Config) { c.GeocoderUserAgent = " " }},
			{"unknown cache backend", func(c *config.Config) { c.GeocodeCacheBackend = "redis" }},
			{"bad timezone", func(c *config.Config) { c.DefaultTimezone = "Mars/Olympus" }},
			{"zero concurrency", func(c *config.Config) { c.FetchConcurrency = 0 }},
			{"bad currency", func(c *config.Config) { c.DefaultCurrency = "EURO" }},
			{"sqlite cache without path", func(c *config.Config) { c.GeocodeCachePath = "" }},
			{"zero normalize workers", func(c *config.Config) { c.NormalizeWorkers = 0 }},
		}
		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					err := cfg.Validate()
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When geocoding is disabled", func() {
			cfg := config.New()
			cfg.GeocodeEnabled = false
			cfg.GeocoderUserAgent = ""
			cfg.GeocodeCacheBackend = "anything"

			convey.Convey("Then geocoder settings are not checked", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
