package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// RateLimiter manages per-client token buckets.
type RateLimiter struct {
	rate     float64
	capacity int64
	clients  map[string]*ratelimit.Bucket
	mu       sync.RWMutex
	onSize   func(int)
}

// NewRateLimiter creates a limiter refilling rate tokens per second up to
// capacity. onSize, if set, receives the bucket count after it changes.
func NewRateLimiter(rate float64, capacity int64, onSize func(int)) *RateLimiter {
	return &RateLimiter{
		rate:     rate,
		capacity: capacity,
		clients:  make(map[string]*ratelimit.Bucket),
		onSize:   onSize,
	}
}

func (rl *RateLimiter) getBucket(clientIP string) *ratelimit.Bucket {
	rl.mu.RLock()
	bucket, exists := rl.clients[clientIP]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if bucket, exists = rl.clients[clientIP]; !exists {
		bucket = ratelimit.NewBucketWithRate(rl.rate, rl.capacity)
		rl.clients[clientIP] = bucket
		rl.reportSize()
	}
	return bucket
}

// Prune drops buckets that are full again, i.e. idle clients.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, bucket := range rl.clients {
		if bucket.Available() == bucket.Capacity() {
			delete(rl.clients, ip)
		}
	}
	rl.reportSize()
}

// StartPruning prunes every interval until stop is closed.
func (rl *RateLimiter) StartPruning(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Prune()
			case <-stop:
				return
			}
		}
	}()
}

// Size is the number of tracked clients.
func (rl *RateLimiter) Size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}

func (rl *RateLimiter) reportSize() {
	if rl.onSize != nil {
		rl.onSize(len(rl.clients))
	}
}

// Middleware rejects requests with 429 once a client's bucket is empty.
// Health and metrics requests are free.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/metrics":
			c.Next()
			return
		}

		bucket := rl.getBucket(c.ClientIP())
		if bucket.TakeAvailable(1) == 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rl.rate)))
			c.Header("X-RateLimit-Limit", strconv.FormatInt(rl.capacity, 10))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrCodeRateLimit, "too many requests", "", c.GetString(CorrelationIDKey)))
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(rl.capacity, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(bucket.Available(), 10))
		c.Next()
	}
}

func retryAfterSeconds(rate float64) int {
	if rate <= 0 {
		return 1
	}
	secs := int(1/rate + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}
