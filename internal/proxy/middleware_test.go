package proxy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botdock/botdock/pkg/kv"
)

func TestRequestIDGenerated(t *testing.T) {
	p := newTestProxy(t, testConfig(t), Deps{})

	rec := serveHTTPS(p, httptest.NewRequest(http.MethodGet, "/health", nil))

	id := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestRequestIDPreserved(t *testing.T) {
	p := newTestProxy(t, testConfig(t), Deps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	rec := serveHTTPS(p, req)

	assert.Equal(t, "caller-supplied-id", rec.Header().Get("X-Request-ID"))
}

func TestRateLimitOnWebhookPaths(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	conf := testConfig(t)
	conf.Proxy.RateLimit = 0.01
	conf.Proxy.RateBurst = 1

	p := newTestProxy(t, conf, Deps{})
	pointAt(p, backend)

	first := serveHTTPS(p, httptest.NewRequest(http.MethodPost, "/webhook/order_bot", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := serveHTTPS(p, httptest.NewRequest(http.MethodPost, "/webhook/order_bot", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, rateLimitedBody, second.Body.String())
}

func TestRateLimitIgnoresServiceEndpoints(t *testing.T) {
	conf := testConfig(t)
	conf.Proxy.RateLimit = 0.01
	conf.Proxy.RateBurst = 1

	p := newTestProxy(t, conf, Deps{})

	for i := 0; i < 20; i++ {
		rec := serveHTTPS(p, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitStrikesIntoJail(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	jail, err := kv.OpenJail(filepath.Join(t.TempDir(), "jail"), 2, time.Minute, 15*time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { jail.Close() })

	conf := testConfig(t)
	conf.Proxy.RateLimit = 0.01
	conf.Proxy.RateBurst = 1

	p := newTestProxy(t, conf, Deps{Jail: jail})
	pointAt(p, backend)

	// Burst of one: the first request passes, the next two are denied and
	// each denial lands a strike. The second strike reaches the threshold.
	rec := serveHTTPS(p, httptest.NewRequest(http.MethodPost, "/webhook/order_bot", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serveHTTPS(p, httptest.NewRequest(http.MethodPost, "/webhook/order_bot", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = serveHTTPS(p, httptest.NewRequest(http.MethodPost, "/webhook/order_bot", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	jailed, err := jail.IsJailed("192.0.2.1")
	require.NoError(t, err)
	require.True(t, jailed)

	rec = serveHTTPS(p, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", rec.Body.String())
}

func TestBlocklistedAddressRejected(t *testing.T) {
	conf := testConfig(t)
	blocklistPath := filepath.Join(conf.General.StorageDir, "blocklist.yml")
	require.NoError(t, os.WriteFile(blocklistPath, []byte("ips:\n  - 192.0.2.1\n"), 0o644))

	p := newTestProxy(t, conf, Deps{})

	rec := serveHTTPS(p, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", rec.Body.String())

	rec = serveHTTP(p, httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBodyLimitOnWebhookPaths(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	conf := testConfig(t)
	conf.Proxy.MaxBodySize = "1KB"

	p := newTestProxy(t, conf, Deps{})
	pointAt(p, backend)

	oversized := strings.NewReader(strings.Repeat("x", 2048))
	rec := serveHTTPS(p, httptest.NewRequest(http.MethodPost, "/webhook/order_bot", oversized))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	small := strings.NewReader(`{"update_id":1}`)
	rec = serveHTTPS(p, httptest.NewRequest(http.MethodPost, "/webhook/order_bot", small))
	assert.Equal(t, http.StatusOK, rec.Code)
}
