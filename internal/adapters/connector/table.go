package connector

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Table reads delimited files with a fixed column to field mapping.
type Table struct {
	base
	fieldMap  map[string]string
	delimiter rune
}

// NewTable returns a table connector. An empty fieldMap maps each header
// column onto the field of the same (lower-cased) name.
func NewTable(name, url string, fetcher *Fetcher, fieldMap map[string]string, delimiter string) *Table {
	t := &Table{base: newBase(name, url, fetcher), fieldMap: fieldMap, delimiter: ','}
	if r := []rune(delimiter); len(r) == 1 {
		t.delimiter = r[0]
	}
	return t
}

// Parse yields one record per data row. Mapped columns are always present on
// the record, possibly empty. A row with the wrong column count is a parse
// error for that row only.
func (c *Table) Parse(ctx context.Context, doc Document) iter.Seq2[model.RawEvent, error] {
	return func(yield func(model.RawEvent, error) bool) {
		rd := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(doc.Body, []byte("\xef\xbb\xbf"))))
		rd.Comma = c.delimiter
		rd.TrimLeadingSpace = true
		rd.ReuseRecord = false

		header, err := rd.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				yield(model.RawEvent{}, documentError(fmt.Errorf("header: %w", err)))
			}
			return
		}
		columns := c.columns(header)
		if len(columns) == 0 {
			yield(model.RawEvent{}, documentError(errors.New("no mapped column in header")))
			return
		}

		for row := 1; ; row++ {
			if ctx.Err() != nil {
				return
			}
			rec, err := rd.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if !yield(model.RawEvent{}, parseError(row, err)) {
					return
				}
				continue
			}
			r := c.record("")
			for idx, field := range columns {
				r.Set(field, rec[idx])
			}
			if !yield(r.Seal(), nil) {
				return
			}
		}
	}
}

// columns maps header index to field name.
func (c *Table) columns(header []string) map[int]string {
	out := make(map[int]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if len(c.fieldMap) == 0 {
			if h != "" {
				out[i] = strings.ToLower(h)
			}
			continue
		}
		if field, ok := c.fieldMap[h]; ok {
			out[i] = field
		}
	}
	return out
}
