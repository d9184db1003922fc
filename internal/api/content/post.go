// Package content serves post authoring and engagement methods.
package content

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/api/params"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/post"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
)

// Posts manages posts on behalf of their authors
type Posts interface {
	Create(ctx context.Context, v viewer.Viewer, in post.Input) (*models.Post, error)
	Update(ctx context.Context, v viewer.Viewer, postID int64, patch post.Patch) (*models.Post, error)
	Delete(ctx context.Context, v viewer.Viewer, postID int64) error
}

// PostView is a post as returned to its author
type PostView struct {
	ID         int64             `json:"id"`
	AuthorID   int64             `json:"author_id"`
	Content    string            `json:"content"`
	Visibility models.Visibility `json:"visibility"`
	MediaURLs  []string          `json:"media_urls"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func toView(p *models.Post) *PostView {
	media := []string(p.MediaURLs)
	if media == nil {
		media = []string{}
	}
	return &PostView{
		ID:         p.ID,
		AuthorID:   p.AuthorID,
		Content:    p.Content,
		Visibility: p.Visibility,
		MediaURLs:  media,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// PostAPI provides post authoring methods
type PostAPI struct {
	posts  Posts
	logger *zap.Logger
}

// NewPostAPI creates a new post API
func NewPostAPI(posts Posts) *PostAPI {
	return &PostAPI{
		posts:  posts,
		logger: logging.WithComponent("api-post"),
	}
}

type createParams struct {
	Content    string            `json:"content"`
	Visibility models.Visibility `json:"visibility"`
	MediaURLs  []string          `json:"media_urls"`
}

// Create handles post.create
func (a *PostAPI) Create(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p createParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Visibility == "" {
		p.Visibility = models.VisibilityPublic
	}
	ctx := c.Request.Context()
	created, err := a.posts.Create(ctx, viewer.FromContext(ctx), post.Input{
		Content:    p.Content,
		Visibility: p.Visibility,
		MediaURLs:  p.MediaURLs,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Post created",
		zap.Int64("post_id", created.ID),
		zap.Int64("author_id", created.AuthorID),
		zap.String("visibility", string(created.Visibility)))
	return toView(created), nil
}

type updateParams struct {
	PostID     int64              `json:"post_id"`
	Content    *string            `json:"content"`
	Visibility *models.Visibility `json:"visibility"`
	MediaURLs  *[]string          `json:"media_urls"`
}

// Update handles post.update
func (a *PostAPI) Update(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p updateParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("post_id", p.PostID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	updated, err := a.posts.Update(ctx, viewer.FromContext(ctx), p.PostID, post.Patch{
		Content:    p.Content,
		Visibility: p.Visibility,
		MediaURLs:  p.MediaURLs,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Post updated", zap.Int64("post_id", updated.ID))
	return toView(updated), nil
}

type postIDParams struct {
	PostID int64 `json:"post_id"`
}

// Delete handles post.delete
func (a *PostAPI) Delete(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p postIDParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("post_id", p.PostID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	if err := a.posts.Delete(ctx, viewer.FromContext(ctx), p.PostID); err != nil {
		return nil, err
	}
	a.logger.Debug("Post deleted", zap.Int64("post_id", p.PostID))
	return gin.H{"success": true}, nil
}
