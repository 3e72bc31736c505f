package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter provides rate limiting functionality
type RateLimiter struct {
	mu       sync.RWMutex
	requests map[string]*rateLimitEntry
	cleanup  *time.Ticker
	done     chan bool
}

type rateLimitEntry struct {
	count     int
	windowEnd time.Time
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Time window for rate limiting
}

// Common rate limit configurations
var (
	// Game creation: 30 per minute per caller
	GameCreationLimit = RateLimitConfig{MaxRequests: 30, Window: time.Minute}

	// WebSocket upgrade: 20 per minute per IP
	WebSocketUpgradeLimit = RateLimitConfig{MaxRequests: 20, Window: time.Minute}
)

// NewRateLimiter creates a new rate limiter with automatic cleanup
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*rateLimitEntry),
		cleanup:  time.NewTicker(5 * time.Minute),
		done:     make(chan bool),
	}

	// Start cleanup goroutine
	go func() {
		for {
			select {
			case <-rl.cleanup.C:
				rl.cleanupExpired()
			case <-rl.done:
				return
			}
		}
	}()

	return rl
}

// Stop stops the rate limiter cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.cleanup.Stop()
	close(rl.done)
}

// cleanupExpired removes expired entries
func (rl *RateLimiter) cleanupExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, entry := range rl.requests {
		if now.After(entry.windowEnd) {
			delete(rl.requests, key)
		}
	}
}

// Allow checks if a request should be allowed based on the rate limit
// Returns (allowed, remaining, resetTime)
func (rl *RateLimiter) Allow(key string, config RateLimitConfig) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.requests[key]

	if !exists || now.After(entry.windowEnd) {
		// New window
		rl.requests[key] = &rateLimitEntry{
			count:     1,
			windowEnd: now.Add(config.Window),
		}
		return true, config.MaxRequests - 1, now.Add(config.Window)
	}

	// Existing window
	if entry.count >= config.MaxRequests {
		return false, 0, entry.windowEnd
	}

	entry.count++
	return true, config.MaxRequests - entry.count, entry.windowEnd
}

// GetClientIP extracts the real client IP from the request
func GetClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (used by proxies like Fly.io)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// Take the first IP in the chain
		if ip, _, err := net.SplitHostPort(xff); err == nil {
			return ip
		}
		// Try without port
		if net.ParseIP(xff) != nil {
			return xff
		}
		// May have multiple IPs, take the first
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				firstIP := xff[:i]
				if net.ParseIP(firstIP) != nil {
					return firstIP
				}
				break
			}
		}
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	// Fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// RateLimitMiddleware creates a middleware that applies rate limiting
func (rl *RateLimiter) RateLimitMiddleware(config RateLimitConfig, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			allowed, remaining, resetTime := rl.Allow(key, config)

			// Set rate limit headers
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", resetTime.Format(time.RFC3339))

			if !allowed {
				retryAfter := int(time.Until(resetTime).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":      "Rate limit exceeded",
					"retryAfter": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPRateLimitMiddleware creates a middleware that rate limits by IP
func (rl *RateLimiter) IPRateLimitMiddleware(config RateLimitConfig) func(http.Handler) http.Handler {
	return rl.RateLimitMiddleware(config, func(r *http.Request) string {
		return GetClientIP(r)
	})
}
