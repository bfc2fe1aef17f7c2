// Package ratelimit limits requests per client address with a token bucket.
package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	// StaleAfter drops limiters for clients not seen for this long
	StaleAfter time.Duration
}

// exemptPaths are probes and scrapes that are never limited
var exemptPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per client
type Limiter struct {
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	rate       rate.Limit
	burst      int
	staleAfter time.Duration
	now        func() time.Time
}

// New creates a Limiter. Stale clients are pruned until ctx is cancelled.
func New(ctx context.Context, cfg Config) *Limiter {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}

	l := &Limiter{
		clients:    make(map[string]*clientLimiter),
		rate:       rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:      burst,
		staleAfter: staleAfter,
		now:        time.Now,
	}
	go l.pruneLoop(ctx)
	return l
}

func (l *Limiter) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(l.staleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Limiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.staleAfter)
	for client, cl := range l.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(l.clients, client)
		}
	}
}

func (l *Limiter) get(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[client] = cl
	}
	cl.lastSeen = l.now()
	return cl.limiter
}

// Middleware rejects requests over the limit with 429. It keys on
// RemoteAddr, so it belongs after middleware that resolves the real client.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if !l.get(clientKey(r.RemoteAddr)).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests. Please try again later.",
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
