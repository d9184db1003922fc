package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/config"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2})
	defer rl.Stop()

	assert.True(t, rl.Allow("guest:1"))
	assert.True(t, rl.Allow("guest:1"))
	assert.False(t, rl.Allow("guest:1"), "burst exhausted")
	assert.True(t, rl.Allow("guest:2"), "buckets are independent")
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterEvict(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1})
	defer rl.Stop()

	rl.Allow("a")
	rl.evict(time.Now().Add(time.Second))
	assert.Zero(t, rl.Len())
}

func TestRateLimiterRetryAfter(t *testing.T) {
	tests := []struct {
		rps  float64
		want string
	}{
		{5, "1"},
		{0.5, "2"},
		{0.1, "10"},
	}
	for _, tt := range tests {
		rl := &RateLimiter{rps: rate.Limit(tt.rps)}
		assert.Equal(t, tt.want, rl.RetryAfter())
	}
}

func TestRequestKey(t *testing.T) {
	newCtx := func(v viewer.Viewer) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		c.Request = req.WithContext(viewer.WithViewer(req.Context(), v))
		return c
	}

	assert.Equal(t, "guest:5", RequestKey(newCtx(viewer.Guest(5))))
	assert.Equal(t, "ip:203.0.113.9", RequestKey(newCtx(viewer.Anonymous())))
}
