package api

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/mapcore/server/internal/auth"
)

const (
	rateLimitExceededJSON = `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later.","retry_after":%d}`
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	// Global rate limit per client IP (all endpoints)
	GlobalLimit  int
	GlobalWindow time.Duration

	// Per-operator rate limit (admin endpoints)
	OperatorLimit  int
	OperatorWindow time.Duration

	// Token endpoint limit per client IP
	AuthLimit  int
	AuthWindow time.Duration

	// Ray query limit per client IP (clamp, pick, altitude)
	QueryLimit  int
	QueryWindow time.Duration
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GlobalLimit:    1000,
		GlobalWindow:   1 * time.Minute,
		OperatorLimit:  120,
		OperatorWindow: 1 * time.Minute,
		AuthLimit:      5,
		AuthWindow:     1 * time.Minute,
		QueryLimit:     600,
		QueryWindow:    1 * time.Minute,
	}
}

func newLimiter(limit int, window time.Duration) *limiter.Limiter {
	return limiter.New(memory.NewStore(), limiter.Rate{
		Period: window,
		Limit:  int64(limit),
	})
}

// RateLimitMiddleware limits requests per client IP
func RateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	instance := newLimiter(limit, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			serveLimited(instance, getClientIP(r), w, r, next)
		})
	}
}

// OperatorRateLimitMiddleware limits requests per authenticated operator.
// Requests without an operator in the context are limited per client IP.
func OperatorRateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	instance := newLimiter(limit, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getClientIP(r)
			if username, ok := auth.GetUsername(r); ok {
				key = "operator:" + username
			}
			serveLimited(instance, key, w, r, next)
		})
	}
}

func serveLimited(instance *limiter.Limiter, key string, w http.ResponseWriter, r *http.Request, next http.Handler) {
	context, err := instance.Get(r.Context(), key)
	if err != nil {
		// A broken limiter must not take the service down
		log.Printf("[API] Warning: rate limiter error: %v", err)
		next.ServeHTTP(w, r)
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(context.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(context.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(context.Reset, 10))

	if context.Reached {
		retryAfter := int(time.Until(time.Unix(context.Reset, 0)).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.WriteHeader(http.StatusTooManyRequests)
		if _, err := fmt.Fprintf(w, rateLimitExceededJSON, retryAfter); err != nil {
			log.Printf("Error writing rate limit response: %v", err)
		}
		return
	}

	next.ServeHTTP(w, r)
}

// getClientIP extracts the client IP address from the request
// Handles X-Forwarded-For header for proxied requests
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs; the first is the client
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
