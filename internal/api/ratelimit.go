// Per-client rate limiter for the mutating endpoints. Simple
// fixed-window counter per remote address.
package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter tracks request counts per client with a fixed window.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	span    time.Duration
}

type window struct {
	count   int
	startAt time.Time
}

// NewRateLimiter allows max requests per span per client.
func NewRateLimiter(max int, span time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		max:     max,
		span:    span,
	}
	go func() {
		for range time.Tick(time.Hour) {
			rl.sweep()
		}
	}()
	return rl
}

// Allow reports whether the client may proceed and counts the request.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[client]
	if !ok || now.Sub(w.startAt) >= rl.span {
		rl.windows[client] = &window{count: 1, startAt: now}
		return true
	}
	if w.count < rl.max {
		w.count++
		return true
	}
	return false
}

// RetryAfter returns seconds until the client's window resets.
func (rl *RateLimiter) RetryAfter(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[client]
	if !ok {
		return 0
	}
	remaining := rl.span - time.Since(w.startAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for client, w := range rl.windows {
		if now.Sub(w.startAt) > 2*rl.span {
			delete(rl.windows, client)
		}
	}
}

// clientKey extracts the caller identity from the request, preferring
// the first X-Forwarded-For hop when proxied.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// limit wraps a handler with the rate limiter, answering 429 with a
// Retry-After when exceeded.
func limit(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		if !rl.Allow(client) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(client)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
