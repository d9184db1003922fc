package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/castlane/timeline/internal/api"
	"github.com/castlane/timeline/internal/counter"
	"github.com/castlane/timeline/internal/engagement"
	"github.com/castlane/timeline/internal/follow"
	"github.com/castlane/timeline/internal/memstore"
	"github.com/castlane/timeline/internal/middleware"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/post"
	"github.com/castlane/timeline/internal/profile"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/timeline"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/config"
	"github.com/castlane/timeline/pkg/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	engine *gin.Engine
	store  *memstore.Store
	auth   *middleware.Authenticator
}

func memServices(store *memstore.Store) api.Services {
	authors := profile.NewResolver(store, nil, time.Minute)
	composer := timeline.NewComposer(store, store, authors, counter.NewAggregator(store), timeline.Limits{DefaultPageSize: 20, MaxPageSize: 100})
	return api.Services{
		Timeline:      composer,
		Follows:       follow.NewWorkflow(store, store, store, authors, follow.Limits{DefaultPageSize: 20, MaxPageSize: 100}),
		Relationships: relationship.NewService(store, store),
		Posts:         post.NewService(store, post.Limits{MaxPostLength: 500, MaxMedia: 4}),
		Engagement: engagement.NewService(store, composer, store, authors, engagement.Limits{
			MaxCommentLength: 200, DefaultPageSize: 20, MaxPageSize: 100,
		}),
	}
}

func newFixture(t *testing.T, svc func(*memstore.Store) api.Services, checks map[string]api.HealthChecker) *fixture {
	t.Helper()
	store := memstore.New()
	auth := middleware.NewAuthenticator(&config.AuthConfig{JWTSecret: "test-secret", Issuer: "test"})

	router := api.NewRouter(svc(store), checks)
	engine := gin.New()
	engine.Use(middleware.RequestLogger())
	router.SetupRoutes(engine, auth.Viewer())

	return &fixture{engine: engine, store: store, auth: auth}
}

func (f *fixture) token(t *testing.T, p *models.Profile) string {
	t.Helper()
	tok, err := f.auth.Issue(p.Ref(), time.Hour)
	require.NoError(t, err)
	return tok
}

type rpcResponse struct {
	Result json.RawMessage   `json:"result"`
	Error  *api.JSONRPCError `json:"error"`
}

func (f *fixture) call(t *testing.T, token, method string, params interface{}) (int, rpcResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var resp rpcResponse
	if w.Code == http.StatusOK || w.Code == http.StatusTooManyRequests {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestRegisteredMethods(t *testing.T) {
	router := api.NewRouter(memServices(memstore.New()), nil)

	want := []string{
		"timeline.list", "timeline.get_post",
		"follow.request", "follow.cancel", "follow.unfollow", "follow.approve", "follow.reject",
		"follow.list_pending", "follow.pending_count", "profile.set_visibility",
		"block.create", "block.delete", "favorite.create", "favorite.delete",
		"post.create", "post.update", "post.delete",
		"like.create", "like.delete",
		"comment.create", "comment.delete", "comment.list",
	}
	assert.ElementsMatch(t, want, router.Handler().Methods())
}

func TestTimelineListAnonymous(t *testing.T) {
	f := newFixture(t, memServices, nil)
	cast := f.store.AddProfile(models.KindCast, models.VisibilityPublic, "open")
	f.store.AddPost(cast.ID, models.VisibilityPublic, time.Now())
	f.store.AddPost(cast.ID, models.VisibilityPrivate, time.Now())

	code, resp := f.call(t, "", "timeline.list", map[string]interface{}{})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	var page timeline.Page
	require.NoError(t, json.Unmarshal(resp.Result, &page))
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "open", page.Posts[0].Author.DisplayName)
	assert.False(t, page.HasMore)
}

func TestErrorCodes(t *testing.T) {
	f := newFixture(t, memServices, nil)
	cast := f.store.AddProfile(models.KindCast, models.VisibilityPublic, "c")
	guest := f.store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")

	tests := []struct {
		name   string
		token  string
		method string
		params interface{}
		code   int
	}{
		{"unknown method", "", "timeline.nope", nil, api.ErrMethodNotFound},
		{"anonymous follow", "", "follow.request", map[string]int64{"cast_id": cast.ID}, api.ErrUnauthenticated},
		{"cast cannot follow", f.token(t, cast), "follow.request", map[string]int64{"cast_id": cast.ID}, api.ErrPermissionDenied},
		{"missing post", f.token(t, guest), "timeline.get_post", map[string]int64{"post_id": 999}, api.ErrNotFound},
		{"bad cursor", "", "timeline.list", map[string]string{"cursor": "!!"}, api.ErrInvalidParams},
		{"bad mode", "", "timeline.list", map[string]string{"mode": "trending"}, api.ErrInvalidParams},
		{"unknown param", "", "timeline.list", map[string]string{"sort": "new"}, api.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := f.call(t, tt.token, tt.method, tt.params)
			require.Equal(t, http.StatusOK, code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestPrivateFollowFlow(t *testing.T) {
	f := newFixture(t, memServices, nil)
	cast := f.store.AddProfile(models.KindCast, models.VisibilityPrivate, "closed")
	guest := f.store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")
	f.store.AddPost(cast.ID, models.VisibilityPrivate, time.Now())
	castTok, guestTok := f.token(t, cast), f.token(t, guest)

	_, resp := f.call(t, guestTok, "follow.request", map[string]int64{"cast_id": cast.ID})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"status":"pending"}`, string(resp.Result))

	_, resp = f.call(t, castTok, "follow.pending_count", nil)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"count":1}`, string(resp.Result))

	_, resp = f.call(t, castTok, "follow.approve", map[string]int64{"guest_id": guest.ID})
	require.Nil(t, resp.Error)

	_, resp = f.call(t, guestTok, "timeline.list", map[string]string{"mode": "following"})
	require.Nil(t, resp.Error)
	var page timeline.Page
	require.NoError(t, json.Unmarshal(resp.Result, &page))
	assert.Len(t, page.Posts, 1)
}

func TestHandlersLogWithComponent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	original := logging.Logger
	logging.Logger = zap.New(core)
	defer func() { logging.Logger = original }()

	f := newFixture(t, memServices, nil)
	cast := f.store.AddProfile(models.KindCast, models.VisibilityPublic, "c")
	guest := f.store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")
	f.store.AddPost(cast.ID, models.VisibilityPublic, time.Now())

	_, resp := f.call(t, f.token(t, guest), "follow.request", map[string]int64{"cast_id": cast.ID})
	require.Nil(t, resp.Error)
	_, resp = f.call(t, "", "timeline.list", nil)
	require.Nil(t, resp.Error)

	follows := logs.FilterMessage("Follow updated").All()
	require.Len(t, follows, 1)
	fields := follows[0].ContextMap()
	assert.Equal(t, "api-follow", fields["component"])
	assert.Equal(t, "approved", fields["status"])

	listed := logs.FilterMessage("Timeline listed").All()
	require.Len(t, listed, 1)
	fields = listed[0].ContextMap()
	assert.Equal(t, "api-feed", fields["component"])
	assert.Equal(t, "public", fields["mode"])
	assert.EqualValues(t, 1, fields["posts"])
}

func TestEngagementRoundTrip(t *testing.T) {
	f := newFixture(t, memServices, nil)
	cast := f.store.AddProfile(models.KindCast, models.VisibilityPublic, "c")
	guest := f.store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")
	castTok, guestTok := f.token(t, cast), f.token(t, guest)

	_, resp := f.call(t, castTok, "post.create", map[string]interface{}{"content": "hello"})
	require.Nil(t, resp.Error)
	var created struct {
		ID         int64  `json:"id"`
		Visibility string `json:"visibility"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &created))
	assert.Equal(t, "public", created.Visibility)

	_, resp = f.call(t, guestTok, "like.create", map[string]int64{"post_id": created.ID})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"likes_count":1}`, string(resp.Result))

	_, resp = f.call(t, guestTok, "comment.create", map[string]interface{}{"post_id": created.ID, "content": "nice"})
	require.Nil(t, resp.Error)

	_, resp = f.call(t, "", "comment.list", map[string]int64{"post_id": created.ID})
	require.Nil(t, resp.Error)
	var comments engagement.CommentPage
	require.NoError(t, json.Unmarshal(resp.Result, &comments))
	require.Len(t, comments.Comments, 1)
	assert.Equal(t, "nice", comments.Comments[0].Content)

	_, resp = f.call(t, castTok, "block.create", map[string]interface{}{"blocked_id": guest.ID, "blocked_type": "guest"})
	require.Nil(t, resp.Error)

	_, resp = f.call(t, guestTok, "comment.create", map[string]interface{}{"post_id": created.ID, "content": "again"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.ErrBlocked, resp.Error.Code)

	_, resp = f.call(t, guestTok, "like.delete", map[string]int64{"post_id": created.ID})
	require.Nil(t, resp.Error, "a blocked guest can still withdraw a like")
	assert.JSONEq(t, `{"likes_count":0}`, string(resp.Result))
}

func TestInvalidToken(t *testing.T) {
	f := newFixture(t, memServices, nil)

	code, _ := f.call(t, "not-a-token", "timeline.list", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

type failingTimeline struct{}

func (failingTimeline) List(context.Context, viewer.Viewer, timeline.Request) (*timeline.Page, error) {
	return nil, errors.New("pq: connection refused")
}

func (failingTimeline) GetPost(context.Context, viewer.Viewer, int64) (*timeline.Summary, error) {
	return nil, errors.New("pq: connection refused")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	f := newFixture(t, func(s *memstore.Store) api.Services {
		svc := memServices(s)
		svc.Timeline = failingTimeline{}
		return svc
	}, nil)

	_, resp := f.call(t, "", "timeline.list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.ErrInternalError, resp.Error.Code)
	assert.Equal(t, "internal error", resp.Error.Message)
	assert.NotContains(t, resp.Error.Message, "pq")
}

func TestRateLimitedMutations(t *testing.T) {
	store := memstore.New()
	router := api.NewRouter(memServices(store), nil)
	limiter := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: true, RPS: 0.01, Burst: 1})
	defer limiter.Stop()
	router.Handler().SetLimiter(limiter)

	engine := gin.New()
	router.SetupRoutes(engine)
	f := &fixture{engine: engine, store: store}

	code, resp := f.call(t, "", "follow.request", map[string]int64{"cast_id": 1})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, api.ErrUnauthenticated, resp.Error.Code)

	code, resp = f.call(t, "", "follow.request", map[string]int64{"cast_id": 1})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, api.ErrRateLimited, resp.Error.Code)

	code, _ = f.call(t, "", "timeline.list", nil)
	assert.Equal(t, http.StatusOK, code, "reads are not limited")
}

type checker struct{ err error }

func (c checker) Health(context.Context) error { return c.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]api.HealthChecker
		code   int
	}{
		{"all up", map[string]api.HealthChecker{"database": checker{}}, http.StatusOK},
		{"database down", map[string]api.HealthChecker{"database": checker{errors.New("down")}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, memServices, tt.checks)
			for _, path := range []string{"/health", "/.well-known/healthcheck.json"} {
				w := httptest.NewRecorder()
				f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				assert.Equal(t, tt.code, w.Code, path)
			}
		})
	}
}
