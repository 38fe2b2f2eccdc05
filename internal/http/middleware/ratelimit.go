package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(*gin.Context) string

// KeyByIP charges requests to the client address. The API carries no session,
// so the address is the only identity available.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

const defaultIdleTTL = 10 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a process-local token bucket per key. Buckets idle for
// longer than the idle TTL are dropped on the next sweep.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	key    KeyFunc
	idle   time.Duration
	now    func() time.Time
	exempt map[string]struct{}

	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
}

// NewRateLimiter allows rps requests per second per key with bursts of up to
// burst (minimum 1).
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		idle:    defaultIdleTTL,
		now:     time.Now,
		exempt:  map[string]struct{}{},
		buckets: map[string]*bucket{},
	}
}

// Exempt excludes route patterns (e.g. "/health") from limiting.
func (rl *RateLimiter) Exempt(routes ...string) *RateLimiter {
	for _, r := range routes {
		rl.exempt[r] = struct{}{}
	}
	return rl
}

func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !now.Before(rl.nextSweep) {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.nextSweep = now.Add(rl.idle)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// Handler enforces the limit. Rejected requests get 429 rate_limited with a
// Retry-After telling the client when a token is available again. Idempotent
// replays are never charged.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if _, skip := rl.exempt[route]; skip || IsReplay(c) {
			c.Next()
			return
		}

		now := rl.now()
		res := rl.bucketFor(rl.key(c), now).ReserveN(now, 1)
		wait := time.Duration(math.MaxInt64)
		if res.OK() {
			wait = res.DelayFrom(now)
		}
		if wait == 0 {
			c.Next()
			return
		}
		res.CancelAt(now)

		if route == "" {
			route = unmatchedRoute
		}
		rateLimited.WithLabelValues(route).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		abortWithError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}

// retryAfterSeconds rounds wait up to whole seconds, at least 1.
func retryAfterSeconds(wait time.Duration) int {
	if wait <= 0 || wait == time.Duration(math.MaxInt64) {
		return 1
	}
	s := int(math.Ceil(wait.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
