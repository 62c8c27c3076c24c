// Package connector extracts raw tournament records from feeds, pages,
// tables and calendars behind one contract.
package connector

import (
	"context"
	"fmt"
	"iter"

	"github.com/okian/tourney-ingest/internal/adapters/catalog"
	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Connector fetches one source and parses it into raw records.
//
// Parse yields records lazily. A yielded error is a parse failure for a
// single record (or an unreadable document) and never stops the caller from
// consuming the rest of the sequence.
type Connector interface {
	Name() string
	Fetch(ctx context.Context) (Document, error)
	Parse(ctx context.Context, doc Document) iter.Seq2[model.RawEvent, error]
}

// Factory builds connectors for catalog entries.
type Factory struct {
	fetcher  *Fetcher
	calendar CalendarDecoder
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithCalendarDecoder overrides the decoder calendar connectors use. Passing
// nil leaves calendar sources without a decoder.
func WithCalendarDecoder(d CalendarDecoder) FactoryOption {
	return func(f *Factory) { f.calendar = d }
}

// NewFactory returns a factory sharing fetcher across connectors.
func NewFactory(fetcher *Fetcher, opts ...FactoryOption) *Factory {
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	f := &Factory{fetcher: fetcher, calendar: ICalDecoder{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New returns the connector for src.Type, or ErrUnknownType.
func (f *Factory) New(src catalog.Source) (Connector, error) {
	switch src.Type {
	case catalog.TypeFeed:
		return NewFeed(src.Name, src.URL, f.fetcher), nil
	case catalog.TypePage:
		return NewPage(src.Name, src.URL, f.fetcher, src.Selectors, src.DateLayout), nil
	case catalog.TypeTable:
		return NewTable(src.Name, src.URL, f.fetcher, src.FieldMap, src.Delimiter), nil
	case catalog.TypeCalendar:
		return NewCalendar(src.Name, src.URL, f.fetcher, f.calendar)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, src.Type)
	}
}

// base carries what every variant shares.
type base struct {
	name    string
	url     string
	fetcher *Fetcher
}

func newBase(name, url string, fetcher *Fetcher) base {
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	return base{name: name, url: url, fetcher: fetcher}
}

func (b base) Name() string { return b.name }

func (b base) Fetch(ctx context.Context) (Document, error) {
	return b.fetcher.Fetch(ctx, b.url)
}

func (b base) record(sourceURL string) model.RawEvent {
	if sourceURL == "" {
		sourceURL = b.url
	}
	return model.NewRawEvent(b.name, sourceURL)
}
