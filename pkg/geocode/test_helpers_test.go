package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/locametry/internal/cachestore"
	"github.com/sells-group/locametry/internal/ratelimit"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newTestLimiter returns a limiter with a negligible interval.
func newTestLimiter() *ratelimit.Limiter {
	return ratelimit.New(time.Millisecond)
}

// newRewriteClient creates an HTTP client that sends requests whose URL
// starts with targetPrefix to the test server instead.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	if !strings.HasPrefix(orig, t.targetPrefix) {
		return t.base.RoundTrip(req)
	}
	parsed, err := req.URL.Parse(t.testServer + orig[len(t.targetPrefix):])
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL = parsed
	out.Host = parsed.Host
	return t.base.RoundTrip(out)
}

// memStore is an in-memory cachestore.Store with fault injection.
type memStore struct {
	mu        sync.Mutex
	entries   map[cachestore.Key]cachestore.Entry
	findErr   error
	createErr error
	deleteErr error
	finds     int
	creates   int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[cachestore.Key]cachestore.Entry)}
}

func (m *memStore) FindEntry(_ context.Context, key cachestore.Key) (*cachestore.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	if m.findErr != nil {
		return nil, m.findErr
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memStore) CreateEntry(_ context.Context, key cachestore.Key, entry cachestore.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	m.entries[key] = entry
	return nil
}

func (m *memStore) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	n := int64(len(m.entries))
	m.entries = make(map[cachestore.Key]cachestore.Entry)
	return n, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
