package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/tourney-ingest/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address    TEXT PRIMARY KEY,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	department TEXT NOT NULL DEFAULT '',
	region     TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
)`

// SQLiteCache persists entries in a local SQLite file across runs.
type SQLiteCache struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteCache opens or creates the cache file at path.
func OpenSQLiteCache(ctx context.Context, path string) (*SQLiteCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("geocode cache: %w", err)
		}
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("geocode cache: open: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("geocode cache: schema: %w", err)
	}
	return &SQLiteCache{db: db, now: time.Now}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (model.Location, bool, error) {
	var loc model.Location
	err := c.db.QueryRowContext(ctx,
		`SELECT lat, lon, department, region FROM geocode_cache WHERE address = ?`, key,
	).Scan(&loc.Latitude, &loc.Longitude, &loc.Department, &loc.Region)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Location{}, false, nil
	}
	if err != nil {
		return model.Location{}, false, fmt.Errorf("geocode cache: get: %w", err)
	}
	return loc, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, loc model.Location) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address, lat, lon, department, region, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			department = excluded.department,
			region = excluded.region,
			updated_at = excluded.updated_at`,
		key, loc.Latitude, loc.Longitude, loc.Department, loc.Region, c.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("geocode cache: put: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
