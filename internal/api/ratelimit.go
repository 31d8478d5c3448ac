package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter hands out one token bucket per client IP. It is an explicit
// process-wide state object: created at startup, pruned on a timer by
// Janitor, and never load-bearing for the correctness of the unlock
// pipeline.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	perMin  rate.Limit
	burst   int
	idleMax time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows perMin requests per minute with the given burst
// per client.
func NewClientLimiter(perMin, burst int) *ClientLimiter {
	if perMin <= 0 {
		perMin = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &ClientLimiter{
		clients: make(map[string]*clientBucket),
		perMin:  rate.Limit(float64(perMin) / 60.0),
		burst:   burst,
		idleMax: 10 * time.Minute,
	}
}

// Allow reports whether the client may proceed.
func (l *ClientLimiter) Allow(clientKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[clientKey]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.perMin, l.burst)}
		l.clients[clientKey] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// Prune drops buckets idle longer than the idle cap and returns how many it
// removed.
func (l *ClientLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.idleMax)
	removed := 0
	for key, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the tracked client count, for tests and observability.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects over-limit clients with 429.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !l.Allow(host) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
