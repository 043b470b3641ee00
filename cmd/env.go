package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/locametry/internal/cachestore"
	"github.com/sells-group/locametry/internal/config"
	"github.com/sells-group/locametry/internal/db"
	"github.com/sells-group/locametry/internal/ratelimit"
	"github.com/sells-group/locametry/internal/resilience"
	"github.com/sells-group/locametry/pkg/geocode"
)

// geocodeEnv holds the shared limiter, the cache and the client used by
// the serve and geocode commands.
type geocodeEnv struct {
	Store   cachestore.Backend // nil when running without a cache
	Limiter *ratelimit.Limiter
	Client  *geocode.Client
}

// Close releases the cache store.
func (e *geocodeEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close cache store", zap.Error(err))
		}
	}
}

// initGeocode validates cfg for mode and builds the client. A store that
// cannot be opened or migrated is logged and the client runs uncached.
func initGeocode(ctx context.Context, mode string) (*geocodeEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &geocodeEnv{
		Limiter: ratelimit.New(cfg.Geocode.MinInterval()),
	}

	st, err := openStore(ctx, cfg.Store)
	switch {
	case err != nil:
		zap.L().Warn("geocode cache unavailable, continuing without cache",
			zap.String("driver", cfg.Store.Driver),
			zap.Error(err),
		)
	case st != nil:
		env.Store = st
	}

	var store cachestore.Store
	if env.Store != nil {
		store = env.Store
	}
	cache := geocode.NewCache(store, geocode.WithBreakerConfig(
		resilience.BreakerConfigFrom("geocode-cache", cfg.Cache.BreakerThreshold, cfg.Cache.BreakerResetSecs),
	))

	env.Client = geocode.NewClient(env.Limiter,
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithHTTPClient(&http.Client{Timeout: cfg.Geocode.Timeout()}),
		geocode.WithCache(cache),
	)

	zap.L().Info("geocode client ready",
		zap.Bool("cache", cache.Enabled()),
		zap.Duration("min_interval", env.Limiter.Interval()),
	)
	return env, nil
}

// openStore opens and migrates the configured backend. The none driver
// returns a nil Backend and no error.
func openStore(ctx context.Context, sc config.StoreConfig) (cachestore.Backend, error) {
	var (
		st  cachestore.Backend
		err error
	)
	switch sc.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverPostgres:
		if sc.DatabaseURL == "" {
			return nil, eris.New("store.database_url is not set")
		}
		pool, perr := db.Connect(ctx, sc.DatabaseURL, sc.PoolConfig())
		if perr != nil {
			return nil, perr
		}
		st = cachestore.NewPostgres(pool)
	case config.DriverSQLite:
		st, err = cachestore.NewSQLite(sc.SQLitePath)
		if err != nil {
			return nil, err
		}
	case config.DriverRedis:
		st = cachestore.NewRedis(cachestore.RedisOptions{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate cache store")
	}
	return st, nil
}
