package content

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/api/params"
	"github.com/castlane/timeline/internal/engagement"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
)

// Engagement applies likes and comments
type Engagement interface {
	Like(ctx context.Context, v viewer.Viewer, postID int64) (int64, error)
	Unlike(ctx context.Context, v viewer.Viewer, postID int64) (int64, error)
	AddComment(ctx context.Context, v viewer.Viewer, postID int64, content string, parentID *int64) (*engagement.Comment, error)
	DeleteComment(ctx context.Context, v viewer.Viewer, commentID int64) error
	ListComments(ctx context.Context, v viewer.Viewer, postID int64, parentID *int64, rawCursor string, limit int) (*engagement.CommentPage, error)
}

// EngagementAPI provides like and comment methods
type EngagementAPI struct {
	svc    Engagement
	logger *zap.Logger
}

// NewEngagementAPI creates a new engagement API
func NewEngagementAPI(svc Engagement) *EngagementAPI {
	return &EngagementAPI{
		svc:    svc,
		logger: logging.WithComponent("api-engagement"),
	}
}

func (a *EngagementAPI) like(c *gin.Context, raw json.RawMessage, op func(context.Context, viewer.Viewer, int64) (int64, error)) (interface{}, error) {
	var p postIDParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("post_id", p.PostID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	v := viewer.FromContext(ctx)
	n, err := op(ctx, v, p.PostID)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Like updated",
		zap.String("viewer", v.String()),
		zap.Int64("post_id", p.PostID),
		zap.Int64("likes_count", n))
	return gin.H{"likes_count": n}, nil
}

// Like handles like.create
func (a *EngagementAPI) Like(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return a.like(c, raw, a.svc.Like)
}

// Unlike handles like.delete
func (a *EngagementAPI) Unlike(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return a.like(c, raw, a.svc.Unlike)
}

type commentParams struct {
	PostID   int64  `json:"post_id"`
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id"`
}

// AddComment handles comment.create
func (a *EngagementAPI) AddComment(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p commentParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("post_id", p.PostID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	return a.svc.AddComment(ctx, viewer.FromContext(ctx), p.PostID, p.Content, p.ParentID)
}

type commentIDParams struct {
	CommentID int64 `json:"comment_id"`
}

// DeleteComment handles comment.delete
func (a *EngagementAPI) DeleteComment(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p commentIDParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("comment_id", p.CommentID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	if err := a.svc.DeleteComment(ctx, viewer.FromContext(ctx), p.CommentID); err != nil {
		return nil, err
	}
	a.logger.Debug("Comment deleted", zap.Int64("comment_id", p.CommentID))
	return gin.H{"success": true}, nil
}

type listCommentsParams struct {
	PostID   int64  `json:"post_id"`
	ParentID *int64 `json:"parent_id"`
	Cursor   string `json:"cursor"`
	Limit    int    `json:"limit"`
}

// ListComments handles comment.list
func (a *EngagementAPI) ListComments(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p listCommentsParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("post_id", p.PostID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	page, err := a.svc.ListComments(ctx, viewer.FromContext(ctx), p.PostID, p.ParentID, p.Cursor, p.Limit)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Comments listed",
		zap.Int64("post_id", p.PostID),
		zap.Bool("replies", p.ParentID != nil),
		zap.Int("comments", len(page.Comments)))
	return page, nil
}
