package httpkit

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"lead_rotation_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const defaultLimiterIdleTTL = 10 * time.Minute

// KeyFunc picks the bucket a request is charged against.
type KeyFunc func(c *gin.Context) string

// ClientIPKey charges requests to the caller's IP.
func ClientIPKey(c *gin.Context) string { return "ip:" + c.ClientIP() }

// HeaderOrIPKey charges requests to the value of header when present, so one
// noisy API key cannot starve other tenants sharing an egress IP. Only a
// short prefix of the header value is kept as the bucket name.
func HeaderOrIPKey(header string) KeyFunc {
	return func(c *gin.Context) string {
		value := strings.TrimSpace(c.GetHeader(header))
		if value == "" {
			return ClientIPKey(c)
		}
		if len(value) > 16 {
			value = value[:16]
		}
		return "key:" + value
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key and forgets buckets idle for
// longer than idleTTL.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	idleTTL time.Duration
	keyFn   KeyFunc
	log     *logger.Logger
	now     func() time.Time
	sweptAt time.Time
}

// NewRateLimiter creates a limiter. A nil keyFn charges by client IP.
func NewRateLimiter(r rate.Limit, burst int, keyFn KeyFunc, log *logger.Logger) *RateLimiter {
	if keyFn == nil {
		keyFn = ClientIPKey
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    r,
		burst:   burst,
		idleTTL: defaultLimiterIdleTTL,
		keyFn:   keyFn,
		log:     log,
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.sweptAt) >= l.idleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.sweptAt = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len reports how many buckets are tracked.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit returns the middleware. Rejected requests get 429 with a
// Retry-After hint.
func (l *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(l.keyFn(c)) {
			if l.log != nil {
				l.log.RateLimitExceeded(c.ClientIP(), c.Request.URL.Path)
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:     "rate limit exceeded",
				Code:      "rate_limited",
				Retryable: true,
			})
			return
		}
		c.Next()
	}
}
