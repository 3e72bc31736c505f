package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	cfg := RateLimitConfig{MaxRequests: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.Allow("alice", cfg)
		require.True(t, allowed)
		require.Equal(t, 2-i, remaining)
	}

	allowed, remaining, reset := rl.Allow("alice", cfg)
	require.False(t, allowed)
	require.Equal(t, 0, remaining)
	require.True(t, reset.After(time.Now()))

	// Limits are per key.
	allowed, _, _ = rl.Allow("bob", cfg)
	require.True(t, allowed)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	cfg := RateLimitConfig{MaxRequests: 1, Window: 30 * time.Millisecond}

	allowed, _, _ := rl.Allow("alice", cfg)
	require.True(t, allowed)
	allowed, _, _ = rl.Allow("alice", cfg)
	require.False(t, allowed)

	time.Sleep(40 * time.Millisecond)

	allowed, remaining, _ := rl.Allow("alice", cfg)
	require.True(t, allowed)
	require.Equal(t, 0, remaining)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "remote addr with port", remoteAddr: "203.0.113.7:52100", want: "203.0.113.7"},
		{name: "remote addr without port", remoteAddr: "203.0.113.7", want: "203.0.113.7"},
		{name: "x-forwarded-for single", remoteAddr: "10.0.0.1:80", xff: "198.51.100.4", want: "198.51.100.4"},
		{name: "x-forwarded-for chain", remoteAddr: "10.0.0.1:80", xff: "198.51.100.4, 10.0.0.2", want: "198.51.100.4"},
		{name: "x-real-ip", remoteAddr: "10.0.0.1:80", xri: "198.51.100.9", want: "198.51.100.9"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				r.Header.Set("X-Real-IP", tc.xri)
			}
			require.Equal(t, tc.want, GetClientIP(r))
		})
	}
}

func TestIPRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	cfg := RateLimitConfig{MaxRequests: 1, Window: time.Minute}
	handler := rl.IPRateLimitMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	first := do("203.0.113.7:1000")
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := do("203.0.113.7:1001")
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.NotEmpty(t, second.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	require.Equal(t, "Rate limit exceeded", body["error"])

	// A different source address gets its own window.
	other := do("198.51.100.4:1000")
	require.Equal(t, http.StatusOK, other.Code)
}
