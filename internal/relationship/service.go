package relationship

import (
	"context"

	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
)

// Service applies block and favorite mutations on behalf of a viewer
type Service struct {
	writer   Writer
	profiles ProfileLookup
	logger   *zap.Logger
}

// NewService creates a relationship service
func NewService(writer Writer, profiles ProfileLookup) *Service {
	return &Service{
		writer:   writer,
		profiles: profiles,
		logger:   logging.WithComponent("relationship"),
	}
}

// Block records that the viewer blocks target. Existing follows are left in place.
func (s *Service) Block(ctx context.Context, v viewer.Viewer, target models.ProfileRef) error {
	blocker, err := s.checkTarget(ctx, v, target)
	if err != nil {
		return err
	}
	if err := s.writer.CreateBlock(ctx, blocker, target); err != nil {
		return errs.Internalf(err, "create block")
	}
	s.logger.Debug("Block created",
		zap.Int64("blocker_id", blocker.ID),
		zap.String("blocker_type", string(blocker.Kind)),
		zap.Int64("blocked_id", target.ID),
		zap.String("blocked_type", string(target.Kind)))
	return nil
}

// Unblock removes the viewer's block on target, if any
func (s *Service) Unblock(ctx context.Context, v viewer.Viewer, target models.ProfileRef) error {
	blocker, ok := v.Ref()
	if !ok {
		return errs.Unauthenticatedf("sign in to manage blocks")
	}
	if !target.Kind.Valid() || target.ID <= 0 {
		return errs.InvalidArgumentf("invalid block target")
	}
	if err := s.writer.DeleteBlock(ctx, blocker, target); err != nil {
		return errs.Internalf(err, "delete block")
	}
	return nil
}

// Favorite bookmarks a cast for the guest viewer
func (s *Service) Favorite(ctx context.Context, v viewer.Viewer, castID int64) error {
	guestID, ok := v.GuestID()
	if !ok {
		return guestOnly(v)
	}
	if err := s.requireCast(ctx, castID); err != nil {
		return err
	}
	if err := s.writer.CreateFavorite(ctx, guestID, castID); err != nil {
		return errs.Internalf(err, "create favorite")
	}
	return nil
}

// Unfavorite removes a bookmark, if any
func (s *Service) Unfavorite(ctx context.Context, v viewer.Viewer, castID int64) error {
	guestID, ok := v.GuestID()
	if !ok {
		return guestOnly(v)
	}
	if err := s.writer.DeleteFavorite(ctx, guestID, castID); err != nil {
		return errs.Internalf(err, "delete favorite")
	}
	return nil
}

func (s *Service) checkTarget(ctx context.Context, v viewer.Viewer, target models.ProfileRef) (models.ProfileRef, error) {
	blocker, ok := v.Ref()
	if !ok {
		return models.ProfileRef{}, errs.Unauthenticatedf("sign in to manage blocks")
	}
	if !target.Kind.Valid() || target.ID <= 0 {
		return models.ProfileRef{}, errs.InvalidArgumentf("invalid block target")
	}
	if blocker == target {
		return models.ProfileRef{}, errs.InvalidArgumentf("cannot block yourself")
	}
	p, err := s.profiles.GetProfile(ctx, target.ID)
	if err != nil {
		return models.ProfileRef{}, errs.Internalf(err, "load profile %d", target.ID)
	}
	if p == nil || p.Kind != target.Kind {
		return models.ProfileRef{}, errs.NotFoundf("profile not found")
	}
	return blocker, nil
}

func (s *Service) requireCast(ctx context.Context, castID int64) error {
	if castID <= 0 {
		return errs.InvalidArgumentf("cast_id is required")
	}
	p, err := s.profiles.GetProfile(ctx, castID)
	if err != nil {
		return errs.Internalf(err, "load profile %d", castID)
	}
	if p == nil {
		return errs.NotFoundf("cast not found")
	}
	if p.Kind != models.KindCast {
		return errs.InvalidArgumentf("profile %d is not a cast", castID)
	}
	return nil
}

func guestOnly(v viewer.Viewer) error {
	if v.IsAnonymous() {
		return errs.Unauthenticatedf("sign in as a guest")
	}
	return errs.PermissionDeniedf("only guests can favorite casts")
}
