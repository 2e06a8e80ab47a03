package statusapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/maumercado/task-queue-go/internal/logger"
)

// clientBucket is a token bucket for one client, identified by address.
type clientBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newClientBucket(rps int) *clientBucket {
	return &clientBucket{
		tokens:     float64(rps),
		maxTokens:  float64(rps),
		refillRate: float64(rps),
		lastRefill: time.Now(),
	}
}

func (b *clientBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// clientRateLimiter keeps one clientBucket per remote address, periodically
// discarding all of them so a client that stops polling doesn't pin memory.
type clientRateLimiter struct {
	rps     int
	buckets map[string]*clientBucket
	mu      sync.Mutex
}

func newClientRateLimiter(rps int) *clientRateLimiter {
	crl := &clientRateLimiter{rps: rps, buckets: make(map[string]*clientBucket)}
	go crl.cleanupLoop()
	return crl
}

func (crl *clientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		crl.mu.Lock()
		crl.buckets = make(map[string]*clientBucket)
		crl.mu.Unlock()
	}
}

func (crl *clientRateLimiter) bucketFor(clientID string) *clientBucket {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	b, ok := crl.buckets[clientID]
	if !ok {
		b = newClientBucket(crl.rps)
		crl.buckets[clientID] = b
	}
	return b
}

// rateLimit returns middleware enforcing a per-client token bucket over
// rps requests/second. A non-positive rps disables the limiter entirely, so
// setupMiddleware can wire it unconditionally off cfg.Server.RequestsPerSecond.
func rateLimit(rps int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := newClientRateLimiter(rps)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.Header.Get("X-Forwarded-For")
			if clientID == "" {
				clientID = r.RemoteAddr
			}

			if !limiter.bucketFor(clientID).allow() {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("client", clientID).
					Msg("status api rate limit exceeded")

				respondError(w, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
