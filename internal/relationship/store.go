// Package relationship answers who-follows, who-favorites and who-blocks questions.
package relationship

import (
	"context"

	"github.com/castlane/timeline/internal/cursor"
	"github.com/castlane/timeline/internal/models"
)

// Store is the read side of relationship facts.
// Zero ids yield empty results and never an error.
type Store interface {
	// FollowingCastIDs returns casts the guest follows with status approved
	FollowingCastIDs(ctx context.Context, guestID int64) (IDSet, error)
	IsFollowing(ctx context.Context, guestID, castID int64) (bool, error)
	FollowStatus(ctx context.Context, guestID, castID int64) (models.FollowStatus, error)
	// PendingFollowers lists pending requests oldest first, keyed on (created_at, guest_id)
	PendingFollowers(ctx context.Context, castID int64, after *cursor.Cursor, limit int) ([]PendingFollower, error)
	// BlockedBy returns profiles ref has blocked
	BlockedBy(ctx context.Context, ref models.ProfileRef) (BlockSet, error)
	// BlockSet returns profiles on either side of a block with ref
	BlockSet(ctx context.Context, ref models.ProfileRef) (BlockSet, error)
	BlockExists(ctx context.Context, a, b models.ProfileRef) (bool, error)
	FavoriteCastIDs(ctx context.Context, guestID int64) (IDSet, error)
}

// Writer mutates block and favorite facts. All methods are idempotent.
type Writer interface {
	CreateBlock(ctx context.Context, blocker, blocked models.ProfileRef) error
	DeleteBlock(ctx context.Context, blocker, blocked models.ProfileRef) error
	CreateFavorite(ctx context.Context, guestID, castID int64) error
	DeleteFavorite(ctx context.Context, guestID, castID int64) error
}

// ProfileLookup resolves a profile by id
type ProfileLookup interface {
	GetProfile(ctx context.Context, id int64) (*models.Profile, error)
}
