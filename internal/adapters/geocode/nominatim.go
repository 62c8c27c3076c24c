package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Geocoder resolves one free-text query with a remote service.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (model.Location, error)
}

// Nominatim queries an OpenStreetMap Nominatim /search endpoint.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	language  string
}

// NominatimOption configures the client.
type NominatimOption func(*Nominatim)

// WithNominatimHTTPClient replaces the default client.
func WithNominatimHTTPClient(c *http.Client) NominatimOption {
	return func(n *Nominatim) {
		if c != nil {
			n.client = c
		}
	}
}

// WithAcceptLanguage sets the language of returned area names.
func WithAcceptLanguage(lang string) NominatimOption {
	return func(n *Nominatim) { n.language = lang }
}

// NewNominatim returns a client for baseURL. The usage policy requires an
// identifying userAgent.
func NewNominatim(baseURL, userAgent string, timeout time.Duration, opts ...NominatimOption) (*Nominatim, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, fmt.Errorf("%w: nominatim requires a user agent", ErrUnavailable)
	}
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("%w: bad geocoder url %q", ErrUnavailable, baseURL)
	}
	n := &Nominatim{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		language:  "fr",
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

type nominatimPlace struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		County        string `json:"county"`
		StateDistrict string `json:"state_district"`
		State         string `json:"state"`
	} `json:"address"`
}

// Geocode returns the best match. Department is the county, else the
// state district; region is the state.
func (n *Nominatim) Geocode(ctx context.Context, query string) (model.Location, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return model.Location{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")
	if n.language != "" {
		req.Header.Set("Accept-Language", n.language)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return model.Location{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return model.Location{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&places); err != nil {
		return model.Location{}, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}
	if len(places) == 0 {
		return model.Location{}, ErrNotFound
	}
	p := places[0]
	lat, err1 := strconv.ParseFloat(p.Lat, 64)
	lon, err2 := strconv.ParseFloat(p.Lon, 64)
	if err1 != nil || err2 != nil {
		return model.Location{}, fmt.Errorf("%w: bad coordinates %q,%q", ErrNotFound, p.Lat, p.Lon)
	}
	loc := model.Location{Latitude: lat, Longitude: lon, Department: p.Address.County, Region: p.Address.State}
	if loc.Department == "" {
		loc.Department = p.Address.StateDistrict
	}
	return loc, nil
}
