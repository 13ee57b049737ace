package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestRateLimiterChargesPerHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(rate.Limit(0.001), 1, HeaderOrIPKey("X-Webhook-API-Key"), nil)
	r := gin.New()
	r.POST("/leads", limiter.RateLimit(), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/leads", nil)
		if key != "" {
			req.Header.Set("X-Webhook-API-Key", key)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("rlk_aaaa"); got != http.StatusAccepted {
		t.Fatalf("first request for key a: got %d", got)
	}
	if got := send("rlk_aaaa"); got != http.StatusTooManyRequests {
		t.Fatalf("second request for key a: got %d", got)
	}
	if got := send("rlk_bbbb"); got != http.StatusAccepted {
		t.Fatalf("key b must have its own bucket, got %d", got)
	}
	if got := send(""); got != http.StatusAccepted {
		t.Fatalf("keyless request falls back to the IP bucket, got %d", got)
	}
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(rate.Limit(1), 1, nil, nil)
	limiter.now = func() time.Time { return now }

	limiter.Allow("ip:10.0.0.1")
	limiter.Allow("ip:10.0.0.2")
	if limiter.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", limiter.Len())
	}

	now = now.Add(defaultLimiterIdleTTL + time.Second)
	limiter.Allow("ip:10.0.0.3")
	if limiter.Len() != 1 {
		t.Fatalf("expected idle buckets to be evicted, got %d", limiter.Len())
	}
}
