package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		method string
		header string
		want   int
	}{
		{"matching key", "secret", http.MethodPost, "secret", http.StatusOK},
		{"wrong key", "secret", http.MethodPost, "nope", http.StatusUnauthorized},
		{"missing key", "secret", http.MethodPost, "", http.StatusUnauthorized},
		{"preflight passes", "secret", http.MethodOptions, "", http.StatusOK},
		{"auth disabled", "", http.MethodPost, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/honeypot", nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			APIKeyAuth(tt.key)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"Invalid API key"}`, rec.Body.String())
			}
		})
	}
}

type fakeRateStore struct {
	allowed   bool
	remaining int64
	err       error
	keys      []string
}

func (f *fakeRateStore) CheckRateLimit(_ context.Context, key string, _ int64, _ time.Duration) (bool, int64, time.Time, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.remaining, time.Now().Add(30 * time.Second), f.err
}

func TestRateLimiterAllows(t *testing.T) {
	store := &fakeRateStore{allowed: true, remaining: 9}
	req := httptest.NewRequest(http.MethodPost, "/honeypot", nil)
	req.RemoteAddr = "203.0.113.7:5123"
	rec := httptest.NewRecorder()

	RateLimiter(store, 10, logger.NewNop())(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	require.Len(t, store.keys, 1)
	assert.Equal(t, "ip:203.0.113.7", store.keys[0])
}

func TestRateLimiterRejects(t *testing.T) {
	store := &fakeRateStore{allowed: false}
	req := httptest.NewRequest(http.MethodPost, "/honeypot", nil)
	rec := httptest.NewRecorder()

	RateLimiter(store, 10, logger.NewNop())(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimiterFailsOpen(t *testing.T) {
	store := &fakeRateStore{err: errors.New("redis down")}
	req := httptest.NewRequest(http.MethodPost, "/honeypot", nil)
	rec := httptest.NewRecorder()

	RateLimiter(store, 10, logger.NewNop())(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestLoggerPassesThrough(t *testing.T) {
	h := Logger(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
