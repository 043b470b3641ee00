// Package geocode provides reverse geocoding and place search against a
// Nominatim-compatible service, with a cache-aside layer for reverse
// lookups and a shared rate limiter for every outbound call.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/locametry/internal/cachestore"
	"github.com/sells-group/locametry/internal/ratelimit"
)

// Defaults for the public Nominatim service.
const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "LocaMetry/1.0 (https://github.com/sells-group/locametry)"
)

// ReverseResult is the address found at a coordinate.
type ReverseResult struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Boundary    json.RawMessage   `json:"geojson,omitempty"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	CacheHit    bool              `json:"cache_hit"`
}

// SearchResult is one candidate returned by a text search.
type SearchResult struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address,omitempty"`
	Boundary    json.RawMessage   `json:"geojson,omitempty"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets the identifying User-Agent sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCache enables cache-aside for reverse lookups.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// Client talks to the geocoding service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *ratelimit.Limiter
	cache      *Cache
}

// NewClient creates a Client. limiter must be the process-wide instance so
// reverse and search calls share one budget.
func NewClient(limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		limiter:    limiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(ratelimit.DefaultInterval)
	}
	if c.cache == nil {
		c.cache = NewCache(nil)
	}
	return c
}

// Cache returns the client's cache, which may be disabled.
func (c *Client) Cache() *Cache { return c.cache }

// place is the jsonv2 shape shared by reverse and search responses.
type place struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	GeoJSON     json.RawMessage   `json:"geojson"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Error       string            `json:"error"`
}

func (p place) boundary() json.RawMessage {
	if len(p.GeoJSON) == 0 || string(p.GeoJSON) == "null" {
		return nil
	}
	return p.GeoJSON
}

// Reverse returns the address at (lat, lng). The result echoes the
// requested coordinates whether it came from the cache or the service.
// A cached entry is returned
// without touching the rate limiter; otherwise the call waits for a permit,
// queries the service and writes the result back to the cache.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	key := cachestore.NewKey(lat, lng)
	if entry, status := c.cache.Lookup(ctx, lat, lng); status == LookupHit {
		return &ReverseResult{
			DisplayName: entry.FormattedAddress,
			Address:     entry.Address,
			Boundary:    entry.Boundary,
			Lat:         lat,
			Lon:         lng,
			CacheHit:    true,
		}, nil
	}

	c.limiter.Acquire()

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lng))
	params.Set("polygon_geojson", "1")

	var p place
	if err := c.getJSON(ctx, "reverse", "/reverse?"+params.Encode(), &p); err != nil {
		return nil, err
	}
	if p.Error != "" {
		zap.L().Debug("geocode: reverse returned no address",
			zap.Stringer("key", key),
			zap.String("reason", p.Error),
		)
		return nil, eris.Wrap(ErrNotFound, p.Error)
	}

	res := &ReverseResult{
		DisplayName: p.DisplayName,
		Address:     p.Address,
		Boundary:    p.boundary(),
		Lat:         lat,
		Lon:         lng,
	}
	if len(p.Address) > 0 {
		c.cache.Store(ctx, lat, lng, cachestore.Entry{
			FormattedAddress: p.DisplayName,
			Address:          p.Address,
			Boundary:         res.Boundary,
		})
	}
	return res, nil
}

// Search returns the ordered candidates for a free-text query. Searches
// are rate limited but never cached.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	q := norm.NFC.String(strings.TrimSpace(query))
	if q == "" {
		return nil, ErrEmptyQuery
	}

	c.limiter.Acquire()

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("q", q)
	params.Set("addressdetails", "1")
	params.Set("polygon_geojson", "1")

	var places []place
	if err := c.getJSON(ctx, "search", "/search?"+params.Encode(), &places); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(places))
	for _, p := range places {
		lat, latErr := strconv.ParseFloat(p.Lat, 64)
		lon, lonErr := strconv.ParseFloat(p.Lon, 64)
		if latErr != nil || lonErr != nil {
			zap.L().Debug("geocode: skipping search candidate without coordinates",
				zap.String("display_name", p.DisplayName),
			)
			continue
		}
		results = append(results, SearchResult{
			DisplayName: p.DisplayName,
			Address:     p.Address,
			Boundary:    p.boundary(),
			Lat:         lat,
			Lon:         lon,
		})
	}
	return results, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &ExternalServiceError{Op: op, Err: eris.Wrap(err, "build request")}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ExternalServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	zap.L().Debug("geocode: request complete",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ExternalServiceError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &ExternalServiceError{Op: op, StatusCode: resp.StatusCode, Err: eris.Wrap(err, "decode response")}
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

