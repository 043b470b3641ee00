package cachestore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/locametry/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationLockID = 7140512

// Postgres stores entries in the geo_cache table.
type Postgres struct {
	pool db.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// FindEntry implements Store.
func (p *Postgres) FindEntry(ctx context.Context, key Key) (*Entry, error) {
	var (
		e       Entry
		address []byte
		geojson []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT formatted_address, address, geojson FROM geo_cache WHERE latitude = $1 AND longitude = $2`,
		key.Lat, key.Lng,
	).Scan(&e.FormattedAddress, &address, &geojson)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cachestore: postgres find %s", key)
	}

	if len(address) > 0 {
		if err := json.Unmarshal(address, &e.Address); err != nil {
			return nil, eris.Wrapf(err, "cachestore: postgres decode address %s", key)
		}
	}
	if len(geojson) > 0 {
		e.Boundary = json.RawMessage(geojson)
	}
	return &e, nil
}

// CreateEntry implements Store.
func (p *Postgres) CreateEntry(ctx context.Context, key Key, entry Entry) error {
	address, err := marshalAddress(entry.Address)
	if err != nil {
		return eris.Wrap(err, "cachestore: postgres marshal address")
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO geo_cache (id, latitude, longitude, formatted_address, address, geojson, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (latitude, longitude) DO UPDATE SET
			formatted_address = EXCLUDED.formatted_address,
			address = EXCLUDED.address,
			geojson = EXCLUDED.geojson`,
		uuid.New().String(), key.Lat, key.Lng, entry.FormattedAddress, address, nilIfEmpty(entry.Boundary),
	)
	if err != nil {
		return eris.Wrapf(err, "cachestore: postgres upsert %s", key)
	}
	return nil
}

// DeleteAll implements Store.
func (p *Postgres) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM geo_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "cachestore: postgres delete all")
	}
	return tag.RowsAffected(), nil
}

// Migrate applies pending embedded migrations under an advisory lock.
func (p *Postgres) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "cachestore.migrate"))

	if _, err := p.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "cachestore: acquire migration lock")
	}
	defer func() {
		if _, err := p.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("cachestore: failed to release migration lock", zap.Error(err))
		}
	}()

	if _, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cache_schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return eris.Wrap(err, "cachestore: ensure migration table")
	}

	applied, err := p.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "cachestore: read migration %s", name)
		}
		if _, err := p.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "cachestore: apply migration %s", name)
		}
		if _, err := p.pool.Exec(ctx,
			"INSERT INTO cache_schema_migrations (filename) VALUES ($1)", name,
		); err != nil {
			return eris.Wrapf(err, "cachestore: record migration %s", name)
		}
		log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx, "SELECT filename FROM cache_schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "cachestore: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "cachestore: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "cachestore: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
