// Package social serves follow, block, favorite and profile methods.
package social

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/api/params"
	"github.com/castlane/timeline/internal/follow"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
)

// Workflow is the follow state machine
type Workflow interface {
	Request(ctx context.Context, v viewer.Viewer, castID int64) (models.FollowStatus, error)
	Approve(ctx context.Context, v viewer.Viewer, guestID int64) error
	Reject(ctx context.Context, v viewer.Viewer, guestID int64) error
	Cancel(ctx context.Context, v viewer.Viewer, castID int64) (models.FollowStatus, error)
	Unfollow(ctx context.Context, v viewer.Viewer, castID int64) (models.FollowStatus, error)
	PendingCount(ctx context.Context, v viewer.Viewer) (int64, error)
	ListPending(ctx context.Context, v viewer.Viewer, rawCursor string, limit int) (*follow.PendingPage, error)
	SetVisibility(ctx context.Context, v viewer.Viewer, visibility models.Visibility) (int64, error)
}

// FollowAPI provides follow-related API methods
type FollowAPI struct {
	workflow Workflow
	logger   *zap.Logger
}

// NewFollowAPI creates a new follow API
func NewFollowAPI(workflow Workflow) *FollowAPI {
	return &FollowAPI{
		workflow: workflow,
		logger:   logging.WithComponent("api-follow"),
	}
}

type castParams struct {
	CastID int64 `json:"cast_id"`
}

type guestParams struct {
	GuestID int64 `json:"guest_id"`
}

type statusResult struct {
	Status models.FollowStatus `json:"status"`
}

type successResult struct {
	Success bool `json:"success"`
}

// byCast runs a guest-side transition addressed by cast_id
func (f *FollowAPI) byCast(c *gin.Context, raw json.RawMessage, op func(context.Context, viewer.Viewer, int64) (models.FollowStatus, error)) (interface{}, error) {
	var p castParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	v := viewer.FromContext(ctx)
	status, err := op(ctx, v, p.CastID)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("Follow updated",
		zap.String("viewer", v.String()),
		zap.Int64("cast_id", p.CastID),
		zap.String("status", string(status)))
	return statusResult{Status: status}, nil
}

// byGuest runs a cast-side transition addressed by guest_id
func (f *FollowAPI) byGuest(c *gin.Context, raw json.RawMessage, op func(context.Context, viewer.Viewer, int64) error) (interface{}, error) {
	var p guestParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("guest_id", p.GuestID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	v := viewer.FromContext(ctx)
	if err := op(ctx, v, p.GuestID); err != nil {
		return nil, err
	}
	f.logger.Debug("Follow request resolved",
		zap.String("viewer", v.String()),
		zap.Int64("guest_id", p.GuestID))
	return successResult{Success: true}, nil
}

// Request handles follow.request
func (f *FollowAPI) Request(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return f.byCast(c, raw, f.workflow.Request)
}

// Cancel handles follow.cancel
func (f *FollowAPI) Cancel(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return f.byCast(c, raw, f.workflow.Cancel)
}

// Unfollow handles follow.unfollow
func (f *FollowAPI) Unfollow(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return f.byCast(c, raw, f.workflow.Unfollow)
}

// Approve handles follow.approve
func (f *FollowAPI) Approve(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return f.byGuest(c, raw, f.workflow.Approve)
}

// Reject handles follow.reject
func (f *FollowAPI) Reject(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return f.byGuest(c, raw, f.workflow.Reject)
}

type pendingParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

// ListPending handles follow.list_pending
func (f *FollowAPI) ListPending(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p pendingParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	return f.workflow.ListPending(ctx, viewer.FromContext(ctx), p.Cursor, p.Limit)
}

// PendingCount handles follow.pending_count
func (f *FollowAPI) PendingCount(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	if err := params.Decode(raw, &struct{}{}); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	n, err := f.workflow.PendingCount(ctx, viewer.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	return gin.H{"count": n}, nil
}

type visibilityParams struct {
	Visibility models.Visibility `json:"visibility"`
}

// SetVisibility handles profile.set_visibility
func (f *FollowAPI) SetVisibility(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var p visibilityParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	approved, err := f.workflow.SetVisibility(ctx, viewer.FromContext(ctx), p.Visibility)
	if err != nil {
		return nil, err
	}
	return gin.H{"visibility": p.Visibility, "approved": approved}, nil
}
