package social

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/api/params"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
)

// Relationships manages blocks and favorites
type Relationships interface {
	Block(ctx context.Context, v viewer.Viewer, target models.ProfileRef) error
	Unblock(ctx context.Context, v viewer.Viewer, target models.ProfileRef) error
	Favorite(ctx context.Context, v viewer.Viewer, castID int64) error
	Unfavorite(ctx context.Context, v viewer.Viewer, castID int64) error
}

// RelationshipAPI provides block and favorite methods
type RelationshipAPI struct {
	rels   Relationships
	logger *zap.Logger
}

// NewRelationshipAPI creates a new relationship API
func NewRelationshipAPI(rels Relationships) *RelationshipAPI {
	return &RelationshipAPI{
		rels:   rels,
		logger: logging.WithComponent("api-relationship"),
	}
}

type blockParams struct {
	BlockedID   int64              `json:"blocked_id"`
	BlockedType models.ProfileKind `json:"blocked_type"`
}

func (a *RelationshipAPI) block(c *gin.Context, raw json.RawMessage, op func(context.Context, viewer.Viewer, models.ProfileRef) error) (interface{}, error) {
	var p blockParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	v := viewer.FromContext(ctx)
	target := models.ProfileRef{ID: p.BlockedID, Kind: p.BlockedType}
	if err := op(ctx, v, target); err != nil {
		return nil, err
	}
	a.logger.Debug("Block updated",
		zap.String("viewer", v.String()),
		zap.Int64("blocked_id", target.ID),
		zap.String("blocked_type", string(target.Kind)))
	return successResult{Success: true}, nil
}

// Block handles block.create
func (a *RelationshipAPI) Block(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return a.block(c, raw, a.rels.Block)
}

// Unblock handles block.delete
func (a *RelationshipAPI) Unblock(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return a.block(c, raw, a.rels.Unblock)
}

func (a *RelationshipAPI) favorite(c *gin.Context, raw json.RawMessage, op func(context.Context, viewer.Viewer, int64) error) (interface{}, error) {
	var p castParams
	if err := params.Decode(raw, &p); err != nil {
		return nil, err
	}
	if err := params.RequireID("cast_id", p.CastID); err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	v := viewer.FromContext(ctx)
	if err := op(ctx, v, p.CastID); err != nil {
		return nil, err
	}
	a.logger.Debug("Favorite updated",
		zap.String("viewer", v.String()),
		zap.Int64("cast_id", p.CastID))
	return successResult{Success: true}, nil
}

// Favorite handles favorite.create
func (a *RelationshipAPI) Favorite(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return a.favorite(c, raw, a.rels.Favorite)
}

// Unfavorite handles favorite.delete
func (a *RelationshipAPI) Unfavorite(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return a.favorite(c, raw, a.rels.Unfavorite)
}
