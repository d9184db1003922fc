package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/config"
)

const limiterIdleTTL = 10 * time.Minute

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per viewer, or per client IP for
// anonymous requests
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopCh chan struct{}
	once   sync.Once
}

// NewRateLimiter creates a rate limiter and starts evicting idle buckets
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		rps:      rate.Limit(cfg.RPS),
		burst:    cfg.Burst,
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the eviction loop
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// Allow takes a token from key's bucket
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	kl, ok := rl.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	rl.mu.Unlock()
	return kl.limiter.Allow()
}

// AllowRequest takes a token for the request's viewer
func (rl *RateLimiter) AllowRequest(c *gin.Context) bool {
	return rl.Allow(RequestKey(c))
}

// RetryAfter is the whole number of seconds until one token refills
func (rl *RateLimiter) RetryAfter() string {
	secs := 1
	if rl.rps > 0 {
		secs = int(math.Ceil(1.0 / float64(rl.rps)))
	}
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Len returns the number of tracked buckets
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RequestKey identifies the caller for rate limiting
func RequestKey(c *gin.Context) string {
	if v := viewer.FromContext(c.Request.Context()); !v.IsAnonymous() {
		return v.String()
	}
	return "ip:" + c.ClientIP()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterIdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evict(time.Now().Add(-limiterIdleTTL))
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evict(before time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, kl := range rl.limiters {
		if kl.lastAccess.Before(before) {
			delete(rl.limiters, key)
		}
	}
}
