package connector

import (
	"bytes"
	"context"
	"iter"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Page selector defaults. The "item" selector picks the repeating block, the
// others are evaluated inside it.
const (
	SelectorItem = "item"

	DefaultDateLayout = "02/01/2006 15:04"
	naiveLayout       = "2006-01-02T15:04:05"
)

func defaultSelectors() map[string]string {
	return map[string]string{
		SelectorItem:         ".event-item",
		model.FieldTitle:     ".event-title",
		model.FieldStart:     ".event-date",
		model.FieldVenueName: ".event-venue",
		model.FieldBuyIn:     ".event-buyin",
	}
}

// Page extracts repeating blocks from an HTML document.
type Page struct {
	base
	selectors  map[string]string
	dateLayout string
}

// NewPage returns a page connector. selectors override the defaults key by
// key; an empty dateLayout means DefaultDateLayout.
func NewPage(name, url string, fetcher *Fetcher, selectors map[string]string, dateLayout string) *Page {
	sel := defaultSelectors()
	for k, v := range selectors {
		if v = strings.TrimSpace(v); v != "" {
			sel[k] = v
		}
	}
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}
	return &Page{base: newBase(name, url, fetcher), selectors: sel, dateLayout: dateLayout}
}

// Parse yields one record per item block. The date is tried against a single
// strict layout; when it does not match the record is still emitted, without
// a start.
func (c *Page) Parse(ctx context.Context, doc Document) iter.Seq2[model.RawEvent, error] {
	return func(yield func(model.RawEvent, error) bool) {
		d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
		if err != nil {
			yield(model.RawEvent{}, documentError(err))
			return
		}
		items := d.Find(c.selectors[SelectorItem])
		for i := range items.Length() {
			if ctx.Err() != nil {
				return
			}
			if !yield(c.item(doc, items.Eq(i)), nil) {
				return
			}
		}
	}
}

func (c *Page) item(doc Document, s *goquery.Selection) model.RawEvent {
	r := c.record(doc.URL)
	text := func(field string) (string, bool) {
		sel, ok := c.selectors[field]
		if !ok {
			return "", false
		}
		el := s.Find(sel).First()
		if el.Length() == 0 {
			return "", false
		}
		return collapse(el.Text()), true
	}

	title, _ := text(model.FieldTitle)
	r.Set(model.FieldTitle, title)

	if date, ok := text(model.FieldStart); ok && date != "" {
		if t, err := time.Parse(c.dateLayout, date); err == nil {
			r.Set(model.FieldStart, t.Format(naiveLayout))
		}
	}
	if date, ok := text(model.FieldEnd); ok && date != "" {
		if t, err := time.Parse(c.dateLayout, date); err == nil {
			r.Set(model.FieldEnd, t.Format(naiveLayout))
		}
	}
	if buyIn, ok := text(model.FieldBuyIn); ok {
		r.SetIfNotEmpty(model.FieldBuyIn, digitsOnly(buyIn))
	}
	for _, field := range []string{
		model.FieldVenueName, model.FieldDescription, model.FieldVariant,
		model.FieldAddress, model.FieldCity, model.FieldStatus, model.FieldCurrency,
	} {
		if v, ok := text(field); ok {
			r.Set(field, v)
		}
	}
	return r.Seal()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
