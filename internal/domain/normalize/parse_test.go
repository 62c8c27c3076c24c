package normalize_test

import (
	"testing"
	"time"

	"github.com/okian/tourney-ingest/internal/domain/model"
	"github.com/okian/tourney-ingest/internal/domain/normalize"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseBuyIn(t *testing.T) {
	Convey("Given loosely formatted buy-ins", t, func() {
		cases := []struct {
			in   string
			want int64
		}{
			{"100", 10000},
			{"100€", 10000},
			{"50 €", 5000},
			{"10", 1000},
			{"Buy-in: 150 €", 15000},
			{"1.500 €", 150000},
			{"1,500", 150000},
			{"1 500 €", 150000},
			{"1 500 €", 150000},
			{"1\u202f500", 150000},
			{"2 000€", 200000},
			{"1,000,000", 100000000},
			{"100.5", 10000},
			{"12.50 €", 1200},
			{"0", 0},
		}
		for _, tc := range cases {
			got, ok := normalize.ParseBuyIn(tc.in)
			So(ok, ShouldBeTrue)
			So(got, ShouldEqual, tc.want)
		}

		Convey("Then absent or non-numeric input yields no value", func() {
			for _, in := range []string{"", "   ", "free", "€"} {
				_, ok := normalize.ParseBuyIn(in)
				So(ok, ShouldBeFalse)
			}
		})

		Convey("Then typed amounts scale to minor units", func() {
			So(normalize.BuyInFromAmount(100), ShouldEqual, 10000)
			So(normalize.BuyInFromAmount(12.5), ShouldEqual, 1250)
		})
	})
}

func TestNormalizeVariant(t *testing.T) {
	Convey("Given variant labels", t, func() {
		cases := map[string]string{
			"No Limit Hold'em": model.VariantHoldem,
			"HOLDEM":           model.VariantHoldem,
			"Omaha PLO":        model.VariantOmaha,
			"plo5":             model.VariantOmaha,
			"Mixed games":      model.VariantMixed,
			"  short deck  ":   "Short deck",
			"STUD":             "Stud",
		}
		for in, want := range cases {
			got, ok := normalize.NormalizeVariant(in)
			So(ok, ShouldBeTrue)
			So(got, ShouldEqual, want)
		}

		Convey("Then empty input stays absent", func() {
			_, ok := normalize.NormalizeVariant("  ")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestParseTime(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}

	Convey("Given timestamps in several shapes", t, func() {
		Convey("When the value carries an offset", func() {
			got, ok := normalize.ParseTime("2025-09-25T20:00:00+02:00", paris)

			Convey("Then it is converted to UTC", func() {
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, time.Date(2025, 9, 25, 18, 0, 0, 0, time.UTC))
				So(got.Location(), ShouldEqual, time.UTC)
			})
		})

		Convey("When the value is naive", func() {
			got, ok := normalize.ParseTime("2025-01-10T19:30:00", paris)

			Convey("Then it is read in the configured zone", func() {
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, time.Date(2025, 1, 10, 18, 30, 0, 0, time.UTC))
			})
		})

		Convey("When the value is free text", func() {
			got, ok := normalize.ParseTime("Mon, 02 Jan 2006 15:04:05 GMT", paris)

			Convey("Then the fallback parser handles it", func() {
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC))
			})
		})

		Convey("When the value is a day-first date", func() {
			withTime, ok1 := normalize.ParseTime("25/09/2025 20:00", paris)
			dateOnly, ok2 := normalize.ParseTime("25/09/2025", paris)
			ambiguous, ok3 := normalize.ParseTime("03/10/2025 19:00", time.UTC)

			Convey("Then the day is read before the month", func() {
				So(ok1, ShouldBeTrue)
				So(withTime, ShouldEqual, time.Date(2025, 9, 25, 18, 0, 0, 0, time.UTC))
				So(ok2, ShouldBeTrue)
				So(dateOnly, ShouldEqual, time.Date(2025, 9, 24, 22, 0, 0, 0, time.UTC))
				So(ok3, ShouldBeTrue)
				So(ambiguous, ShouldEqual, time.Date(2025, 10, 3, 19, 0, 0, 0, time.UTC))
			})
		})

		Convey("When the value gives a bare hour with a meridiem", func() {
			evening, ok1 := normalize.ParseTime("September 25, 2025 8pm", time.UTC)
			morning, ok2 := normalize.ParseTime("September 25, 2025 11am", time.UTC)

			Convey("Then the hour is kept instead of falling back to noon", func() {
				So(ok1, ShouldBeTrue)
				So(evening, ShouldEqual, time.Date(2025, 9, 25, 20, 0, 0, 0, time.UTC))
				So(ok2, ShouldBeTrue)
				So(morning, ShouldEqual, time.Date(2025, 9, 25, 11, 0, 0, 0, time.UTC))
			})
		})

		Convey("When the value is garbage or empty", func() {
			_, ok1 := normalize.ParseTime("next friday-ish", paris)
			_, ok2 := normalize.ParseTime("", paris)

			Convey("Then nothing is returned", func() {
				So(ok1, ShouldBeFalse)
				So(ok2, ShouldBeFalse)
			})
		})
	})
}

func TestNormalizeCurrency(t *testing.T) {
	Convey("Given currency inputs", t, func() {
		So(normalize.NormalizeCurrency("usd", "EUR"), ShouldEqual, "USD")
		So(normalize.NormalizeCurrency("€", "CHF"), ShouldEqual, "EUR")
		So(normalize.NormalizeCurrency("", "EUR"), ShouldEqual, "EUR")
		So(normalize.NormalizeCurrency("euros", "EUR"), ShouldEqual, "EUR")
	})
}
