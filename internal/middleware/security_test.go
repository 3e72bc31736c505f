package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	require.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestRequireServiceKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func(configured, provided string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/games", nil)
		if provided != "" {
			r.Header.Set("X-Api-Key", provided)
		}
		w := httptest.NewRecorder()
		RequireServiceKey(configured)(next).ServeHTTP(w, r)
		return w
	}

	t.Run("accepts the configured key", func(t *testing.T) {
		require.Equal(t, http.StatusOK, do("svc-secret", "svc-secret").Code)
	})

	t.Run("rejects a wrong key", func(t *testing.T) {
		require.Equal(t, http.StatusUnauthorized, do("svc-secret", "other").Code)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		require.Equal(t, http.StatusUnauthorized, do("svc-secret", "").Code)
	})

	t.Run("unconfigured key disables the endpoint", func(t *testing.T) {
		require.Equal(t, http.StatusServiceUnavailable, do("", "anything").Code)
	})
}
