package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ziadkadry99/chaxai/internal/apperr"
)

// idleClientTTL is how long an unused client bucket is kept.
const idleClientTTL = 10 * time.Minute

// rateLimiter keeps one token bucket per client.
type rateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &rateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

// allow takes one token from key's bucket and reports the tokens left.
func (l *rateLimiter) allow(key string) (bool, int) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > idleClientTTL {
		for k, c := range l.clients {
			if now.Sub(c.seen) > idleClientTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	allowed := c.lim.AllowN(now, 1)
	return allowed, int(math.Max(0, c.lim.TokensAt(now)))
}

// retryAfter is the whole number of seconds until one token is available.
func (l *rateLimiter) retryAfter() int {
	return int(math.Max(1, math.Ceil(1/float64(l.limit))))
}

// middleware limits requests per client as identified by key.
func (l *rateLimiter) middleware(key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining := l.allow(key(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				wait := l.retryAfter()
				h.Set("Retry-After", strconv.Itoa(wait))
				apperr.Write(w, r, apperr.Newf(apperr.KindRateLimited, "rate limit exceeded, retry in %d seconds", wait))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
