package geocode

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/locametry/internal/cachestore"
	"github.com/sells-group/locametry/internal/resilience"
)

// LookupStatus is the outcome of a cache lookup.
type LookupStatus int

const (
	// LookupMiss means the store has no entry for the key.
	LookupMiss LookupStatus = iota
	// LookupHit means an entry was found.
	LookupHit
	// LookupUnavailable means the store could not be asked.
	LookupUnavailable
)

func (s LookupStatus) String() string {
	switch s {
	case LookupHit:
		return "hit"
	case LookupMiss:
		return "miss"
	case LookupUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Cache is a best-effort reverse-geocode cache keyed by coordinates rounded
// to five decimals. Store faults are logged and never returned, except by
// Clear.
type Cache struct {
	store   cachestore.Store
	breaker *resilience.Breaker
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithBreaker replaces the default circuit breaker guarding the store.
func WithBreaker(b *resilience.Breaker) CacheOption {
	return func(c *Cache) {
		c.breaker = b
	}
}

// WithBreakerConfig builds the store breaker from cfg. State changes are
// logged unless cfg sets its own callback.
func WithBreakerConfig(cfg resilience.BreakerConfig) CacheOption {
	return func(c *Cache) {
		if cfg.OnStateChange == nil {
			cfg.OnStateChange = logBreakerChange
		}
		c.breaker = resilience.NewBreaker(cfg)
	}
}

// NewCache wraps store. A nil store yields a disabled cache on which every
// lookup is unavailable.
func NewCache(store cachestore.Store, opts ...CacheOption) *Cache {
	c := &Cache{store: store}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		cfg := resilience.DefaultBreakerConfig("geocode-cache")
		cfg.OnStateChange = logBreakerChange
		c.breaker = resilience.NewBreaker(cfg)
	}
	return c
}

func logBreakerChange(name string, from, to resilience.State) {
	zap.L().Warn("geocode: cache breaker state change",
		zap.String("breaker", name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
}

// Enabled reports whether a store is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Lookup returns the entry for (lat, lng) after rounding.
func (c *Cache) Lookup(ctx context.Context, lat, lng float64) (*cachestore.Entry, LookupStatus) {
	if !c.Enabled() {
		return nil, LookupUnavailable
	}
	key := cachestore.NewKey(lat, lng)

	entry, err := resilience.DoVal(ctx, c.breaker, func(ctx context.Context) (*cachestore.Entry, error) {
		return c.store.FindEntry(ctx, key)
	})
	switch {
	case err != nil:
		logFault("lookup", key, err)
		return nil, LookupUnavailable
	case entry == nil:
		zap.L().Debug("geocode cache miss", zap.Stringer("key", key))
		return nil, LookupMiss
	default:
		zap.L().Debug("geocode cache hit", zap.Stringer("key", key))
		return entry, LookupHit
	}
}

// Store writes entry under the rounded (lat, lng). Failures are logged.
func (c *Cache) Store(ctx context.Context, lat, lng float64, entry cachestore.Entry) {
	if !c.Enabled() {
		return
	}
	key := cachestore.NewKey(lat, lng)

	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.store.CreateEntry(ctx, key, entry)
	})
	if err != nil {
		logFault("store", key, err)
	}
}

// Clear deletes every cached entry and returns the number removed.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, ErrCacheDisabled
	}
	n, err := c.store.DeleteAll(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "geocode: clear cache")
	}
	c.breaker.Reset()
	zap.L().Info("geocode cache cleared", zap.Int64("deleted", n))
	return n, nil
}

func logFault(op string, key cachestore.Key, err error) {
	if errors.Is(err, resilience.ErrOpen) {
		zap.L().Debug("geocode: cache skipped, breaker open",
			zap.String("op", op),
			zap.Stringer("key", key),
		)
		return
	}
	zap.L().Warn("geocode: cache fault",
		zap.String("op", op),
		zap.Stringer("key", key),
		zap.Error(err),
	)
}
