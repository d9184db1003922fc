// Package feed serves timeline listings and single-post reads.
package feed

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/api/params"
	"github.com/castlane/timeline/internal/timeline"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
)

// Composer is the read side used by the feed API
type Composer interface {
	List(ctx context.Context, v viewer.Viewer, req timeline.Request) (*timeline.Page, error)
	GetPost(ctx context.Context, v viewer.Viewer, postID int64) (*timeline.Summary, error)
}

// TimelineAPI provides timeline methods
type TimelineAPI struct {
	composer Composer
	logger   *zap.Logger
}

// NewTimelineAPI creates a new timeline API
func NewTimelineAPI(composer Composer) *TimelineAPI {
	return &TimelineAPI{
		composer: composer,
		logger:   logging.WithComponent("api-feed"),
	}
}

type listParams struct {
	Mode     string `json:"mode"`
	AuthorID int64  `json:"author_id"`
	Limit    int    `json:"limit"`
	Cursor   string `json:"cursor"`
}

// List handles timeline.list
func (a *TimelineAPI) List(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p listParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	v := viewer.FromContext(ctx)

	mode, err := timeline.ParseMode(p.Mode, v)
	if err != nil {
		return nil, err
	}
	page, err := a.composer.List(ctx, v, timeline.Request{
		Mode:     mode,
		AuthorID: p.AuthorID,
		Limit:    p.Limit,
		Cursor:   p.Cursor,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Timeline listed",
		zap.String("viewer", v.String()),
		zap.String("mode", string(mode)),
		zap.Int("posts", len(page.Posts)),
		zap.Bool("has_more", page.HasMore))
	return page, nil
}

type postParams struct {
	PostID int64 `json:"post_id"`
}

// GetPost handles timeline.get_post
func (a *TimelineAPI) GetPost(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p postParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("post_id", p.PostID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	v := viewer.FromContext(ctx)
	summary, err := a.composer.GetPost(ctx, v, p.PostID)
	if err != nil {
		a.logger.Debug("Post lookup refused",
			zap.String("viewer", v.String()),
			zap.Int64("post_id", p.PostID),
			zap.Error(err))
		return nil, err
	}
	return summary, nil
}
