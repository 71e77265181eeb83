package http

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	idleClientTTL = 5 * time.Minute
	sweepEvery    = time.Minute
)

// RateLimiter throttles requests per client IP. Rejected requests get a
// Retry-After header with the wait until the next token.
type RateLimiter struct {
	perSecond rate.Limit
	burst     int
	now       func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requestsPerMinute per client with a burst of a
// tenth of that. A non-positive budget returns nil, which disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		perSecond: rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     max(requestsPerMinute/10, 1),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// Handler returns the gin middleware
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if wait, ok := r.take(c.ClientIP()); !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

// take spends one token for key. When none is available it reports how
// long until one is.
func (r *RateLimiter) take(key string) (time.Duration, bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= sweepEvery {
		for k, b := range r.buckets {
			if now.Sub(b.lastSeen) > idleClientTTL {
				delete(r.buckets, k)
			}
		}
		r.lastSweep = now
	}

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(r.perSecond, r.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	res := b.tokens.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}
