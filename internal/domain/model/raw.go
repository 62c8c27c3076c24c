// Package model contains domain models passed between layers.
package model

import (
	"encoding/hex"
	"maps"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Raw record field keys.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStart       = "start"
	FieldEnd         = "end"
	FieldBuyIn       = "buy_in"
	FieldVariant     = "variant"
	FieldVenueName   = "venue_name"
	FieldAddress     = "address"
	FieldCity        = "city"
	FieldCurrency    = "currency"
	FieldStatus      = "status"
)

// Envelope keys written next to the fields in the raw log.
const (
	KeySourceName = "source_name"
	KeySourceURL  = "source_url"
	KeySourceHash = "source_hash"
)

// FieldOrder is the fixed order fields are hashed in; extra keys follow sorted.
var FieldOrder = []string{ //nolint:gochecknoglobals // read-only key order
	FieldTitle, FieldDescription, FieldStart, FieldEnd, FieldBuyIn, FieldVariant,
	FieldVenueName, FieldAddress, FieldCity, FieldCurrency, FieldStatus,
}

// RawEvent is one record as a connector saw it. A key missing from Fields is
// absent; a key mapped to "" is present but empty.
type RawEvent struct {
	SourceName string
	SourceURL  string
	Fields     map[string]string
	SourceHash string
}

// NewRawEvent returns an empty record for source.
func NewRawEvent(sourceName, sourceURL string) RawEvent {
	return RawEvent{SourceName: sourceName, SourceURL: sourceURL, Fields: make(map[string]string)}
}

// Get returns the field value and whether it is present.
func (r RawEvent) Get(key string) (string, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Text returns the trimmed field value, "" when absent.
func (r RawEvent) Text(key string) string {
	return strings.TrimSpace(r.Fields[key])
}

// Set stores a field value.
func (r *RawEvent) Set(key, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[key] = value
}

// SetIfNotEmpty stores value unless it is blank, leaving the field absent.
func (r *RawEvent) SetIfNotEmpty(key, value string) {
	if strings.TrimSpace(value) != "" {
		r.Set(key, value)
	}
}

// Seal computes SourceHash and returns the record. Connectors seal each record
// once, after which it is not modified.
func (r RawEvent) Seal() RawEvent {
	r.Fields = maps.Clone(r.Fields)
	r.SourceHash = ComputeHash(r)
	return r
}

// ComputeHash digests the source identity and every field in a stable order.
// Each field is encoded as key, presence marker, value so that an absent field
// and an empty one never collide.
func ComputeHash(r RawEvent) string {
	d := xxhash.New()
	writePart := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	writePart(r.SourceName)
	writePart(r.SourceURL)

	writeField := func(key string) {
		writePart(key)
		if v, ok := r.Fields[key]; ok {
			writePart("1")
			writePart(v)
			return
		}
		writePart("0")
	}
	for _, key := range FieldOrder {
		writeField(key)
	}
	for _, key := range extraKeys(r.Fields) {
		writeField(key)
	}

	var sum [8]byte
	return hex.EncodeToString(d.Sum(sum[:0]))
}

func extraKeys(fields map[string]string) []string {
	var extra []string
	for k := range fields {
		if !slices.Contains(FieldOrder, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return extra
}
