package connector

import (
	"bytes"
	"context"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

var (
	// "Buy-in: 150 €", "buyin 1 000€"
	buyInLabelled = regexp.MustCompile(`(?i)buy[- ]?in\s*:?\s*([0-9][0-9.,\s\x{00a0}\x{202f}]*)\s*(€|eur\b|\$|usd\b|£|gbp\b)?`)
	// any amount directly followed by a currency
	buyInAmount = regexp.MustCompile(`(?i)([0-9][0-9.,\x{00a0}\x{202f}]*)\s?(€|eur\b|\$|usd\b|£|gbp\b)`)
)

// Feed reads RSS and Atom syndication entries.
type Feed struct {
	base
}

// NewFeed returns a feed connector. A nil fetcher gets the defaults.
func NewFeed(name, url string, fetcher *Fetcher) *Feed {
	return &Feed{base: newBase(name, url, fetcher)}
}

// Parse yields one record per entry. The start comes from the published
// timestamp, else the updated one. Venue fields are never set.
func (c *Feed) Parse(ctx context.Context, doc Document) iter.Seq2[model.RawEvent, error] {
	return func(yield func(model.RawEvent, error) bool) {
		feed, err := gofeed.NewParser().Parse(bytes.NewReader(doc.Body))
		if err != nil {
			yield(model.RawEvent{}, documentError(err))
			return
		}
		for _, item := range feed.Items {
			if ctx.Err() != nil {
				return
			}
			if item == nil {
				continue
			}
			link := strings.TrimSpace(item.Link)
			if link == "" {
				link = doc.URL
			}
			r := c.record(link)
			title := strings.TrimSpace(item.Title)
			desc := strings.TrimSpace(item.Description)
			r.Set(model.FieldTitle, title)
			r.SetIfNotEmpty(model.FieldDescription, desc)

			if ts := entryTime(item); !ts.IsZero() {
				r.Set(model.FieldStart, ts.UTC().Format(time.RFC3339))
			}
			if amount, currency := extractBuyIn(desc); amount != "" {
				r.Set(model.FieldBuyIn, amount)
				r.SetIfNotEmpty(model.FieldCurrency, currency)
			} else if amount, currency := extractBuyIn(title); amount != "" {
				r.Set(model.FieldBuyIn, amount)
				r.SetIfNotEmpty(model.FieldCurrency, currency)
			}
			if !yield(r.Seal(), nil) {
				return
			}
		}
	}
}

func entryTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

// extractBuyIn returns the amount text and an ISO currency code, if any.
func extractBuyIn(text string) (string, string) {
	if m := buyInLabelled.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), currencyCode(m[2])
	}
	if m := buyInAmount.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), currencyCode(m[2])
	}
	return "", ""
}

func currencyCode(symbol string) string {
	switch strings.ToLower(strings.TrimSpace(symbol)) {
	case "€", "eur":
		return "EUR"
	case "$", "usd":
		return "USD"
	case "£", "gbp":
		return "GBP"
	}
	return ""
}
