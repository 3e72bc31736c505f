package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// RequireServiceKey guards internal endpoints (game creation by the
// matchmaker) behind a shared secret carried in the X-Api-Key header.
func RequireServiceKey(serviceKey string) func(http.Handler) http.Handler {
	keyHash := sha256.Sum256([]byte(serviceKey))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if serviceKey == "" {
				http.Error(w, "Service API key not configured", http.StatusServiceUnavailable)
				return
			}

			provided := r.Header.Get("X-Api-Key")
			if provided == "" {
				http.Error(w, "X-Api-Key header required", http.StatusUnauthorized)
				return
			}

			providedHash := sha256.Sum256([]byte(provided))
			if subtle.ConstantTimeCompare(keyHash[:], providedHash[:]) != 1 {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
