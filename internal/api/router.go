package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/api/content"
	"github.com/castlane/timeline/internal/api/feed"
	"github.com/castlane/timeline/internal/api/social"
	"github.com/castlane/timeline/internal/cache"
	"github.com/castlane/timeline/pkg/logging"
)

// Services are the engine operations exposed over JSON-RPC
type Services struct {
	Timeline      feed.Composer
	Follows       social.Workflow
	Relationships social.Relationships
	Posts         content.Posts
	Engagement    content.Engagement
}

// HealthChecker is a dependency probed by the health endpoints
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router sets up API routes
type Router struct {
	handler *JSONRPCHandler
	checks  map[string]HealthChecker
	metrics bool
	logger  *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(svc Services, checks map[string]HealthChecker) *Router {
	router := &Router{
		handler: NewJSONRPCHandler(),
		checks:  checks,
		logger:  logging.WithComponent("api-router"),
	}

	router.registerMethods(svc)

	return router
}

// Handler returns the JSON-RPC dispatcher
func (r *Router) Handler() *JSONRPCHandler {
	return r.handler
}

// EnableMetrics serves the Prometheus registry at /metrics
func (r *Router) EnableMetrics() {
	r.metrics = true
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine, middleware ...gin.HandlerFunc) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	if r.metrics {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	handlers := append(append([]gin.HandlerFunc{}, middleware...), r.handler.Handle)
	engine.POST("/", handlers...)
}

// registerMethods registers all API methods
func (r *Router) registerMethods(svc Services) {
	timelineAPI := feed.NewTimelineAPI(svc.Timeline)
	r.handler.RegisterMethod("timeline.list", timelineAPI.List)
	r.handler.RegisterMethod("timeline.get_post", timelineAPI.GetPost)

	followAPI := social.NewFollowAPI(svc.Follows)
	r.handler.RegisterMutation("follow.request", followAPI.Request)
	r.handler.RegisterMutation("follow.cancel", followAPI.Cancel)
	r.handler.RegisterMutation("follow.unfollow", followAPI.Unfollow)
	r.handler.RegisterMutation("follow.approve", followAPI.Approve)
	r.handler.RegisterMutation("follow.reject", followAPI.Reject)
	r.handler.RegisterMethod("follow.list_pending", followAPI.ListPending)
	r.handler.RegisterMethod("follow.pending_count", followAPI.PendingCount)
	r.handler.RegisterMutation("profile.set_visibility", followAPI.SetVisibility)

	relAPI := social.NewRelationshipAPI(svc.Relationships)
	r.handler.RegisterMutation("block.create", relAPI.Block)
	r.handler.RegisterMutation("block.delete", relAPI.Unblock)
	r.handler.RegisterMutation("favorite.create", relAPI.Favorite)
	r.handler.RegisterMutation("favorite.delete", relAPI.Unfavorite)

	postAPI := content.NewPostAPI(svc.Posts)
	r.handler.RegisterMutation("post.create", postAPI.Create)
	r.handler.RegisterMutation("post.update", postAPI.Update)
	r.handler.RegisterMutation("post.delete", postAPI.Delete)

	engagementAPI := content.NewEngagementAPI(svc.Engagement)
	r.handler.RegisterMutation("like.create", engagementAPI.Like)
	r.handler.RegisterMutation("like.delete", engagementAPI.Unlike)
	r.handler.RegisterMutation("comment.create", engagementAPI.AddComment)
	r.handler.RegisterMutation("comment.delete", engagementAPI.DeleteComment)
	r.handler.RegisterMethod("comment.list", engagementAPI.ListComments)
}

// healthHandler probes every dependency
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range r.checks {
		err := check.Health(ctx)
		switch {
		case err == nil:
			deps[name] = "ok"
		case errors.Is(err, cache.ErrCacheDisabled):
			deps[name] = "disabled"
		default:
			r.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	overall := "OK"
	if status != http.StatusOK {
		overall = "DEGRADED"
	}
	c.JSON(status, gin.H{
		"status":       overall,
		"service":      "timeline-api",
		"dependencies": deps,
	})
}
