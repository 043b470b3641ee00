// Package cachestore persists reverse-geocode results keyed by rounded
// coordinates.
package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Precision is the number of decimal places kept in a cache key, about
// 1.1 m at the equator.
const Precision = 5

// RoundCoord rounds a coordinate to Precision decimal places. Negative
// zero is normalized so that -0.000001 and 0.000001 share a key.
func RoundCoord(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', Precision, 64), 64)
	if err != nil || math.IsNaN(r) {
		return v
	}
	if r == 0 {
		return 0
	}
	return r
}

// Key identifies a cache entry. Always build it with NewKey.
type Key struct {
	Lat float64
	Lng float64
}

// NewKey rounds lat and lng into a Key.
func NewKey(lat, lng float64) Key {
	return Key{Lat: RoundCoord(lat), Lng: RoundCoord(lng)}
}

func (k Key) String() string {
	return fmt.Sprintf("%.*f,%.*f", Precision, k.Lat, Precision, k.Lng)
}

// Entry is a cached reverse-geocode result.
type Entry struct {
	FormattedAddress string            `json:"formatted_address"`
	Address          map[string]string `json:"address"`
	// Boundary is an optional GeoJSON Polygon or MultiPolygon.
	Boundary json.RawMessage `json:"boundary,omitempty"`
}

// Store is the persistence contract used by the geocode cache.
type Store interface {
	// FindEntry returns the entry for key, or (nil, nil) when absent.
	FindEntry(ctx context.Context, key Key) (*Entry, error)
	// CreateEntry writes entry under key, replacing any existing one.
	CreateEntry(ctx context.Context, key Key, entry Entry) error
	// DeleteAll removes every entry and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
}

// Backend is a Store with a lifecycle.
type Backend interface {
	Store
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*Postgres)(nil)
	_ Backend = (*SQLite)(nil)
	_ Backend = (*Redis)(nil)
)

func nilIfEmpty(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []byte(raw)
}

func marshalAddress(addr map[string]string) ([]byte, error) {
	if addr == nil {
		addr = map[string]string{}
	}
	return json.Marshal(addr)
}
