package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"attendance-session-service/internal/http/response"
)

// RateLimiter is a local fixed-window limiter. Check-in traffic arrives in
// bursts when a QR code goes up on a projector, so the per-IP window keeps a
// single client from hammering the commit path.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	scope   string
	keyFunc func(r *http.Request) string
	hits    map[string]*windowState
	sweep   time.Time
}

type windowState struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration, scope string) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		scope:   scope,
		keyFunc: clientIPKey,
		hits:    make(map[string]*windowState),
		sweep:   time.Now().Add(time.Minute),
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetAt := rl.allow(rl.keyFunc(r))
			writeRateLimitHeaders(w.Header(), rl.limit, remaining, resetAt)
			if !allowed {
				w.Header().Set("Retry-After", retryAfterHeader(time.Until(resetAt)))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) (bool, int, time.Time) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.sweep) {
		for k, st := range rl.hits {
			if now.After(st.resetAt) {
				delete(rl.hits, k)
			}
		}
		rl.sweep = now.Add(time.Minute)
	}

	st, ok := rl.hits[key]
	if !ok || now.After(st.resetAt) {
		st = &windowState{resetAt: now.Add(rl.window)}
		rl.hits[key] = st
	}
	if st.count >= rl.limit {
		return false, 0, st.resetAt
	}
	st.count++
	return true, rl.limit - st.count, st.resetAt
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimitHeaders(h http.Header, limit, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
}

func retryAfterHeader(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%d", secs)
}
