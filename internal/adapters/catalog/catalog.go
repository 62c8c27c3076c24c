// Package catalog loads the declarative list of tournament sources.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog reports an unreadable or inconsistent catalog.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Source types.
const (
	TypeFeed     = "feed"
	TypePage     = "page"
	TypeTable    = "table"
	TypeCalendar = "calendar"
)

// legacyTypes maps the older format names onto source types.
var legacyTypes = map[string]string{ //nolint:gochecknoglobals // read-only alias table
	"rss":  TypeFeed,
	"atom": TypeFeed,
	"html": TypePage,
	"csv":  TypeTable,
	"ics":  TypeCalendar,
}

// Source is one catalog entry.
type Source struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"` // nil means enabled

	FieldMap   map[string]string `yaml:"field_map"`   // table: column -> field
	Delimiter  string            `yaml:"delimiter"`   // table, default ","
	Selectors  map[string]string `yaml:"selectors"`   // page: "item" and field -> CSS selector
	DateLayout string            `yaml:"date_layout"` // page, Go layout
	TimeoutMS  int               `yaml:"timeout_ms"`
}

// IsEnabled reports whether the runner should dispatch the source.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Timeout returns the per-source override, or def when none is set.
func (s Source) Timeout(def time.Duration) time.Duration {
	if s.TimeoutMS > 0 {
		return time.Duration(s.TimeoutMS) * time.Millisecond
	}
	return def
}

// Catalog is the parsed document.
type Catalog struct {
	Sources []Source `yaml:"sources"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return Parse(bytes.NewReader(b))
}

// Parse decodes a catalog document. Types are lower-cased and legacy names
// resolved; unknown types are kept so the runner can report them.
func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Name = strings.TrimSpace(s.Name)
		s.URL = strings.TrimSpace(s.URL)
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))
		if alias, ok := legacyTypes[s.Type]; ok {
			s.Type = alias
		}
		if s.Name == "" {
			return nil, fmt.Errorf("%w: source #%d has no name", ErrInvalidCatalog, i+1)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("%w: source %q has no url", ErrInvalidCatalog, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate source name %q", ErrInvalidCatalog, s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Delimiter != "" && len([]rune(s.Delimiter)) != 1 {
			return nil, fmt.Errorf("%w: source %q delimiter must be one character", ErrInvalidCatalog, s.Name)
		}
	}
	return &c, nil
}
