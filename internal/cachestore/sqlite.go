package cachestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLite stores entries in a local database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cachestore: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cachestore: sqlite exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geo_cache (
	id                TEXT PRIMARY KEY,
	latitude          REAL NOT NULL,
	longitude         REAL NOT NULL,
	formatted_address TEXT NOT NULL,
	address           TEXT NOT NULL DEFAULT '{}',
	geojson           TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (latitude, longitude)
);

CREATE INDEX IF NOT EXISTS idx_geo_cache_created_at ON geo_cache(created_at);
`

// Migrate creates the cache table.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "cachestore: sqlite migrate")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// FindEntry implements Store.
func (s *SQLite) FindEntry(ctx context.Context, key Key) (*Entry, error) {
	var (
		e       Entry
		address string
		geojson sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT formatted_address, address, geojson FROM geo_cache WHERE latitude = ? AND longitude = ?`,
		key.Lat, key.Lng,
	).Scan(&e.FormattedAddress, &address, &geojson)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cachestore: sqlite find %s", key)
	}

	if address != "" {
		if err := json.Unmarshal([]byte(address), &e.Address); err != nil {
			return nil, eris.Wrapf(err, "cachestore: sqlite decode address %s", key)
		}
	}
	if geojson.Valid && geojson.String != "" {
		e.Boundary = json.RawMessage(geojson.String)
	}
	return &e, nil
}

// CreateEntry implements Store.
func (s *SQLite) CreateEntry(ctx context.Context, key Key, entry Entry) error {
	address, err := marshalAddress(entry.Address)
	if err != nil {
		return eris.Wrap(err, "cachestore: sqlite marshal address")
	}

	var geojson sql.NullString
	if b, ok := nilIfEmpty(entry.Boundary).([]byte); ok {
		geojson = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO geo_cache (id, latitude, longitude, formatted_address, address, geojson, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (latitude, longitude) DO UPDATE SET
			formatted_address = excluded.formatted_address,
			address = excluded.address,
			geojson = excluded.geojson`,
		uuid.New().String(), key.Lat, key.Lng, entry.FormattedAddress, string(address), geojson, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "cachestore: sqlite upsert %s", key)
	}
	return nil
}

// DeleteAll implements Store.
func (s *SQLite) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM geo_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "cachestore: sqlite delete all")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "cachestore: sqlite rows affected")
	}
	return n, nil
}
