package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Document is a fetched source body.
type Document struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher loads documents over http(s) or from the local filesystem.
// It is shared by every connector in a run.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxBytes   int64
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBytes caps the size of a fetched body.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithRetry retries transient network failures and 5xx responses.
func WithRetry(attempts int, backoff, maxBackoff time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if attempts > 0 {
			f.attempts = attempts
		}
		if backoff > 0 {
			f.backoff = backoff
		}
		if maxBackoff > 0 {
			f.maxBackoff = maxBackoff
		}
	}
}

// NewFetcher returns a Fetcher with a pooled transport. Request deadlines come
// from the caller's context.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
			MaxIdleConns:        32,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		}},
		userAgent:  "tourney-ingest/1.0",
		maxBytes:   10 << 20,
		attempts:   2,
		backoff:    250 * time.Millisecond,
		maxBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch loads location. http and https go over the network; file:// URLs and
// bare paths are read from disk.
func (f *Fetcher) Fetch(ctx context.Context, location string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrFetch, location, err)
	}
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare path, including Windows drive letters.
		return f.readFile(location, location)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, location)
	case "file":
		return f.readFile(location, u.Path)
	default:
		return Document{}, fmt.Errorf("%w: %s: unsupported scheme %q", ErrFetch, location, u.Scheme)
	}
}

func (f *Fetcher) readFile(location, path string) (Document, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = fh.Close() }()
	body, err := f.readCapped(fh)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrFetch, location, err)
	}
	return Document{URL: location, Body: body}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, location string) (Document, error) {
	var doc Document
	err := retry(ctx, f.attempts, f.backoff, f.maxBackoff, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("User-Agent", f.userAgent)
		resp, err := f.client.Do(req)
		if err != nil {
			return ctx.Err() == nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return resp.StatusCode >= 500, fmt.Errorf("status %d", resp.StatusCode)
		}
		body, err := f.readCapped(resp.Body)
		if err != nil {
			return false, err
		}
		doc = Document{URL: location, ContentType: resp.Header.Get("Content-Type"), Body: body}
		return false, nil
	})
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrFetch, location, err)
	}
	return doc, nil
}

func (f *Fetcher) readCapped(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrDocumentTooLarge, f.maxBytes)
	}
	return body, nil
}

// retry runs fn until it succeeds, reports a permanent failure, or attempts
// run out. Backoff doubles up to maxBackoff.
func retry(ctx context.Context, attempts int, backoff, maxBackoff time.Duration, fn func() (retryable bool, err error)) error {
	if attempts < 1 {
		attempts = 1
	}
	d := backoff
	var lastErr error
	for i := range attempts {
		if i > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return errors.Join(lastErr, ctx.Err())
			}
			d = min(d*2, maxBackoff)
		}
		again, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !again {
			return err
		}
	}
	return lastErr
}
