package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/locametry/internal/cachestore"
	"github.com/sells-group/locametry/internal/config"
	"github.com/sells-group/locametry/pkg/geocode"
)

// testConfig returns a Config for command tests pointing at baseURL.
func testConfig(baseURL string) *config.Config {
	c := &config.Config{}
	c.Store.Driver = config.DriverNone
	c.Geocode.BaseURL = baseURL
	c.Geocode.UserAgent = "locametry-test/1.0"
	c.Geocode.MinIntervalMs = 1
	c.Geocode.TimeoutSecs = 5
	c.Cache.BreakerThreshold = 5
	c.Cache.BreakerResetSecs = 30
	c.Server.Port = 8080
	return c
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
}

func reverseServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"10 Downing Street, London","lat":"51.50344","lon":"-0.12770","address":{"road":"Downing Street","city":"London"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenStore_None(t *testing.T) {
	st, err := openStore(context.Background(), config.StoreConfig{Driver: config.DriverNone})
	assert.NoError(t, err)
	assert.Nil(t, st)
}

func TestOpenStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	st, err := openStore(context.Background(), config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: path})
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*cachestore.SQLite)
	assert.True(t, ok)
}

func TestOpenStore_Errors(t *testing.T) {
	_, err := openStore(context.Background(), config.StoreConfig{Driver: config.DriverPostgres})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")

	_, err = openStore(context.Background(), config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitGeocode_ValidationError(t *testing.T) {
	c := testConfig("http://localhost")
	c.Geocode.UserAgent = ""
	withConfig(t, c)

	_, err := initGeocode(context.Background(), "geocode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_agent")
}

func TestInitGeocode_UnreachableStoreRunsUncached(t *testing.T) {
	var calls atomic.Int32
	srv := reverseServer(t, &calls)

	c := testConfig(srv.URL)
	c.Store.Driver = config.DriverPostgres // no database_url
	withConfig(t, c)

	env, err := initGeocode(context.Background(), "geocode")
	require.NoError(t, err)
	defer env.Close()

	assert.Nil(t, env.Store)
	assert.False(t, env.Client.Cache().Enabled())
	assert.Equal(t, time.Millisecond, env.Limiter.Interval())

	res, err := env.Client.Reverse(context.Background(), 51.50344, -0.1277)
	require.NoError(t, err)
	assert.Equal(t, "10 Downing Street, London", res.DisplayName)
	assert.False(t, res.CacheHit)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInitGeocode_SQLiteCacheServesRepeatLookups(t *testing.T) {
	var calls atomic.Int32
	srv := reverseServer(t, &calls)

	c := testConfig(srv.URL)
	c.Store.Driver = config.DriverSQLite
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "cache.db")
	withConfig(t, c)

	env, err := initGeocode(context.Background(), "geocode")
	require.NoError(t, err)
	defer env.Close()
	require.True(t, env.Client.Cache().Enabled())

	ctx := context.Background()
	first, err := env.Client.Reverse(ctx, 51.503441, -0.127701)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := env.Client.Reverse(ctx, 51.503439, -0.127699)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.DisplayName, second.DisplayName)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), env.Limiter.Grants())
}

func TestCacheClearCmd(t *testing.T) {
	c := testConfig("http://localhost")
	c.Store.Driver = config.DriverSQLite
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "cache.db")
	withConfig(t, c)

	ctx := context.Background()
	st, err := openStore(ctx, c.Store)
	require.NoError(t, err)
	for _, lat := range []float64{1, 2, 3} {
		require.NoError(t, st.CreateEntry(ctx, cachestore.NewKey(lat, 0), cachestore.Entry{FormattedAddress: "x"}))
	}
	require.NoError(t, st.Close())

	var buf bytes.Buffer
	cacheClearCmd.SetOut(&buf)
	defer cacheClearCmd.SetOut(nil)
	cacheClearCmd.SetContext(ctx)

	require.NoError(t, cacheClearCmd.RunE(cacheClearCmd, nil))
	assert.Equal(t, "cleared 3 cached entries\n", buf.String())
}

func TestCacheClearCmd_RequiresStore(t *testing.T) {
	withConfig(t, testConfig("http://localhost"))
	cacheClearCmd.SetContext(context.Background())

	err := cacheClearCmd.RunE(cacheClearCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none")
}

func TestMigrateCmd_SQLite(t *testing.T) {
	c := testConfig("http://localhost")
	c.Store.Driver = config.DriverSQLite
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "cache.db")
	withConfig(t, c)

	var buf bytes.Buffer
	migrateCmd.SetOut(&buf)
	defer migrateCmd.SetOut(nil)
	migrateCmd.SetContext(context.Background())

	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))
	assert.Contains(t, buf.String(), "sqlite cache store is up to date")
	_, err := os.Stat(c.Store.SQLitePath)
	assert.NoError(t, err)
}

func TestLoadCoordinates(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "coords.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("- {lat: 51.5, lng: -0.12}\n- {lat: 48.85, lng: 2.35}\n"), 0o644))
	coords, err := loadCoordinates(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []geocode.Coordinate{{Lat: 51.5, Lng: -0.12}, {Lat: 48.85, Lng: 2.35}}, coords)

	jsonPath := filepath.Join(dir, "coords.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"lat":1,"lng":2}]`), 0o644))
	coords, err = loadCoordinates(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []geocode.Coordinate{{Lat: 1, Lng: 2}}, coords)

	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, []byte("[]"), 0o644))
	_, err = loadCoordinates(emptyPath)
	assert.Error(t, err)

	_, err = loadCoordinates(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestBatchOutput(t *testing.T) {
	out := batchOutput([]geocode.BatchResult{
		{Coordinate: geocode.Coordinate{Lat: 1, Lng: 2}, Result: &geocode.ReverseResult{DisplayName: "a"}},
		{Coordinate: geocode.Coordinate{Lat: 3, Lng: 4}, Err: errors.New("upstream 503")},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Result.DisplayName)
	assert.Empty(t, out[0].Error)
	assert.Nil(t, out[1].Result)
	assert.Equal(t, "upstream 503", out[1].Error)
}

func TestRunServer_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
