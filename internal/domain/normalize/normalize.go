// Package normalize turns raw records into canonical events.
package normalize

import (
	"strings"
	"time"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Normalizer promotes optional raw text into typed, validated fields.
type Normalizer struct {
	loc             *time.Location
	defaultCurrency string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLocation sets the zone naive timestamps are read in.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// WithDefaultCurrency sets the currency used when a record carries none.
func WithDefaultCurrency(code string) Option {
	return func(n *Normalizer) {
		if code != "" {
			n.defaultCurrency = strings.ToUpper(code)
		}
	}
}

// New returns a Normalizer reading naive times as UTC and defaulting to EUR.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{loc: time.UTC, defaultCurrency: "EUR"}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts raw into a canonical event or returns a *Rejection.
func (n *Normalizer) Normalize(raw model.RawEvent) (model.CanonicalEvent, error) {
	title := raw.Text(model.FieldTitle)
	if title == "" {
		return model.CanonicalEvent{}, &Rejection{Reason: ReasonMissingTitle}
	}

	startText := raw.Text(model.FieldStart)
	if startText == "" {
		return model.CanonicalEvent{}, &Rejection{Reason: ReasonMissingStart}
	}
	start, ok := ParseTime(startText, n.loc)
	if !ok {
		return model.CanonicalEvent{}, &Rejection{Reason: ReasonInvalidStart, Value: startText}
	}

	ev := model.CanonicalEvent{
		Title:       title,
		Description: raw.Text(model.FieldDescription),
		Start:       start,
		Currency:    NormalizeCurrency(raw.Text(model.FieldCurrency), n.defaultCurrency),
		Status:      model.ParseStatus(raw.Text(model.FieldStatus)),
		VenueName:   raw.Text(model.FieldVenueName),
		Address:     raw.Text(model.FieldAddress),
		City:        raw.Text(model.FieldCity),
		SourceURL:   strings.TrimSpace(raw.SourceURL),
		SourceHash:  raw.SourceHash,
	}
	if ev.VenueName == "" {
		ev.VenueName = model.UnknownVenue
	}
	if end, ok := ParseTime(raw.Text(model.FieldEnd), n.loc); ok {
		ev.End = &end
	}
	if cents, ok := ParseBuyIn(raw.Text(model.FieldBuyIn)); ok {
		ev.BuyInCents = &cents
	}
	if variant, ok := NormalizeVariant(raw.Text(model.FieldVariant)); ok {
		ev.Variant = variant
	}
	return ev, nil
}
