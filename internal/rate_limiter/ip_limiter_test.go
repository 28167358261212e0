package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	rl := NewIPRateLimiter(10, time.Minute, CleanupOpts{TTL: time.Minute, Interval: time.Minute})
	defer rl.Cancel()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       ipAddr
	}{
		{"remote_addr", "10.0.0.1:5555", "", "10.0.0.1"},
		{"forwarded_last_hop", "10.0.0.1:5555", "1.1.1.1, 2.2.2.2", "2.2.2.2"},
		{"no_port", "10.0.0.9", "", "10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, rl.GetClientIP(r))
		})
	}
}

func TestMiddlewareRejectsBurst(t *testing.T) {
	rl := NewIPRateLimiter(2, time.Minute, CleanupOpts{TTL: time.Minute, Interval: time.Minute})
	defer rl.Cancel()

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Contains(t, rec.Body.String(), `"success":false`)
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	other := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "192.0.2.2:1234"
	h.ServeHTTP(other, req)
	assert.Equal(t, http.StatusNoContent, other.Code)
}

func TestCleanupEvictsIdleClients(t *testing.T) {
	rl := NewIPRateLimiter(5, time.Minute, CleanupOpts{TTL: 10 * time.Millisecond, Interval: 5 * time.Millisecond})
	defer rl.Cancel()

	rl.Allow("203.0.113.1")
	assert.Equal(t, 1, rl.Len())

	assert.Eventually(t, func() bool { return rl.Len() == 0 }, time.Second, 5*time.Millisecond)
}
