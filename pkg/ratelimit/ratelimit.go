package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter is a fixed-window token bucket keyed by client IP
type Limiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	buckets   map[string]*bucket // per-IP buckets
	max       int                // tokens per window
	per       time.Duration      // window size
	lastPrune time.Time
}

type bucket struct {
	ts     time.Time // window start
	tokens int       // remaining tokens
}

// New creates a new IP-based limiter allowing max requests per window.
// max <= 0 disables limiting.
func New(max int, per time.Duration, clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{buckets: map[string]*bucket{}, max: max, per: per, clock: clock, lastPrune: clock.Now()}
}

// Allow takes one token for key
func (l *Limiter) Allow(key string) bool {
	if l.max <= 0 {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	b := l.buckets[key]
	if b == nil || now.Sub(b.ts) > l.per {
		// Start a new window
		b = &bucket{ts: now, tokens: l.max}
		l.buckets[key] = b
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// pruneLocked drops expired windows at most once per window
func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.per {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.ts) > l.per {
			delete(l.buckets, k)
		}
	}
	l.lastPrune = now
}

// Middleware enforces the rate limit before calling the next handler
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !l.Allow(ClientIP(req)) {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// ClientIP is the host part of the request's remote address
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
