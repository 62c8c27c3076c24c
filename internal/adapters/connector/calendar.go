package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// CalendarEntry is one decoded calendar event. Err is set when the entry was
// found but could not be read.
type CalendarEntry struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Status      string
	URL         string
	Start       time.Time
	End         time.Time
	Err         error
}

// CalendarDecoder turns an iCalendar document into entries.
type CalendarDecoder interface {
	Decode(r io.Reader) ([]CalendarEntry, error)
}

// ICalDecoder decodes RFC 5545 documents with golang-ical.
type ICalDecoder struct{}

// Decode reads every VEVENT. All-day events start at midnight UTC.
func (ICalDecoder) Decode(r io.Reader) ([]CalendarEntry, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, err
	}
	events := cal.Events()
	out := make([]CalendarEntry, 0, len(events))
	for _, ev := range events {
		e := CalendarEntry{
			UID:         ev.Id(),
			Summary:     propertyText(ev, ics.ComponentPropertySummary),
			Description: propertyText(ev, ics.ComponentPropertyDescription),
			Location:    propertyText(ev, ics.ComponentPropertyLocation),
			Status:      propertyText(ev, ics.ComponentPropertyStatus),
			URL:         propertyText(ev, ics.ComponentPropertyUrl),
		}
		if start, err := ev.GetStartAt(); err == nil {
			e.Start = start
		} else if start, derr := ev.GetAllDayStartAt(); derr == nil {
			e.Start = start
		} else {
			e.Err = fmt.Errorf("event %q: DTSTART: %w", e.UID, err)
		}
		if end, err := ev.GetEndAt(); err == nil {
			e.End = end
		} else if end, err := ev.GetAllDayEndAt(); err == nil {
			e.End = end
		}
		out = append(out, e)
	}
	return out, nil
}

func propertyText(ev *ics.VEvent, p ics.ComponentProperty) string {
	prop := ev.GetProperty(p)
	if prop == nil {
		return ""
	}
	return unescapeText(prop.Value)
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`) //nolint:gochecknoglobals // stateless

func unescapeText(s string) string {
	return strings.TrimSpace(textUnescaper.Replace(s))
}

// Calendar maps calendar entries almost one to one onto raw records.
type Calendar struct {
	base
	decoder CalendarDecoder
}

// NewCalendar fails with ErrDependencyUnavailable when decoder is nil.
func NewCalendar(name, url string, fetcher *Fetcher, decoder CalendarDecoder) (*Calendar, error) {
	if decoder == nil {
		return nil, fmt.Errorf("%w: source %q needs a calendar decoder", ErrDependencyUnavailable, name)
	}
	return &Calendar{base: newBase(name, url, fetcher), decoder: decoder}, nil
}

// Parse yields one record per entry with typed start and end written as RFC 3339.
func (c *Calendar) Parse(ctx context.Context, doc Document) iter.Seq2[model.RawEvent, error] {
	return func(yield func(model.RawEvent, error) bool) {
		entries, err := c.decoder.Decode(bytes.NewReader(doc.Body))
		if err != nil {
			yield(model.RawEvent{}, documentError(err))
			return
		}
		for i, e := range entries {
			if ctx.Err() != nil {
				return
			}
			if e.Err != nil {
				if !yield(model.RawEvent{}, parseError(i+1, e.Err)) {
					return
				}
				continue
			}
			r := c.record(e.URL)
			r.Set(model.FieldTitle, e.Summary)
			r.SetIfNotEmpty(model.FieldDescription, e.Description)
			r.Set(model.FieldStart, e.Start.UTC().Format(time.RFC3339))
			if !e.End.IsZero() {
				r.Set(model.FieldEnd, e.End.UTC().Format(time.RFC3339))
			}
			r.SetIfNotEmpty(model.FieldVenueName, e.Location)
			r.SetIfNotEmpty(model.FieldStatus, e.Status)
			if !yield(r.Seal(), nil) {
				return
			}
		}
	}
}
