// Package follow implements the guest-to-cast follow approval workflow.
package follow

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/cursor"
	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
	"github.com/castlane/timeline/pkg/telemetry"
)

// Store persists follow rows. Every method is a single atomic statement or transaction.
type Store interface {
	// CreateFollowIfAbsent inserts the row unless one exists for the pair and
	// returns the stored row. created is false when a row already existed.
	// The status of a new row is read from the cast's visibility atomically
	// with the insert: approved for public casts, pending otherwise.
	CreateFollowIfAbsent(ctx context.Context, guestID, castID int64) (row *models.Follow, created bool, err error)
	// GetFollow returns nil when no row exists
	GetFollow(ctx context.Context, guestID, castID int64) (*models.Follow, error)
	// TransitionFollow moves the row from one status to another; false when no row was in from
	TransitionFollow(ctx context.Context, guestID, castID int64, from, to models.FollowStatus) (bool, error)
	// DeleteFollow removes the row when its status is one of statuses
	DeleteFollow(ctx context.Context, guestID, castID int64, statuses ...models.FollowStatus) (bool, error)
	CountPending(ctx context.Context, castID int64) (int64, error)
	// SetVisibility changes a cast's visibility. Switching to public approves
	// all pending follows in the same transaction and returns how many.
	SetVisibility(ctx context.Context, castID int64, visibility models.Visibility) (int64, error)
}

// AuthorCache is notified when a cast's public data changes
type AuthorCache interface {
	Invalidate(ctx context.Context, ids ...int64)
}

// Limits bounds page sizes
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// PendingPage is one page of a cast's approval queue
type PendingPage struct {
	Followers  []relationship.PendingFollower `json:"followers"`
	NextCursor string                         `json:"next_cursor,omitempty"`
	HasMore    bool                           `json:"has_more"`
}

// Workflow applies follow transitions
type Workflow struct {
	store       Store
	rels        relationship.Store
	profiles    relationship.ProfileLookup
	authors     AuthorCache
	limits      Limits
	logger      *zap.Logger
	transitions metric.Int64Counter
}

// NewWorkflow creates a follow workflow. authors may be nil.
func NewWorkflow(store Store, rels relationship.Store, profiles relationship.ProfileLookup, authors AuthorCache, limits Limits) *Workflow {
	w := &Workflow{
		store:    store,
		rels:     rels,
		profiles: profiles,
		authors:  authors,
		limits:   limits,
		logger:   logging.WithComponent("follow"),
	}
	counter, err := telemetry.Meter().Int64Counter(
		"timeline_follow_transitions_total",
		metric.WithDescription("Follow state transitions"),
	)
	if err != nil {
		w.logger.Warn("Failed to create transitions counter", zap.Error(err))
	}
	w.transitions = counter
	return w
}

func (w *Workflow) record(ctx context.Context, transition string, n int64) {
	if w.transitions == nil || n == 0 {
		return
	}
	w.transitions.Add(ctx, n, metric.WithAttributes(attribute.String("transition", transition)))
}

// Request creates a follow from the guest viewer to castID. Public casts are
// approved immediately, private casts queue the request. Repeated requests
// return the existing status.
func (w *Workflow) Request(ctx context.Context, v viewer.Viewer, castID int64) (models.FollowStatus, error) {
	guestID, err := requireGuest(v)
	if err != nil {
		return "", err
	}
	cast, err := w.loadCast(ctx, castID)
	if err != nil {
		return "", err
	}

	blocked, err := w.rels.BlockExists(ctx,
		models.ProfileRef{ID: guestID, Kind: models.KindGuest},
		models.ProfileRef{ID: castID, Kind: models.KindCast})
	if err != nil {
		return "", errs.Internalf(err, "check block")
	}
	if blocked {
		return "", errs.Blockedf("cannot follow a blocked cast")
	}

	row, created, err := w.store.CreateFollowIfAbsent(ctx, guestID, cast.ID)
	if err != nil {
		return "", errs.Internalf(err, "create follow")
	}
	if created {
		w.record(ctx, "none_to_"+string(row.Status), 1)
		logging.WithContext(ctx).Info("Follow requested",
			zap.Int64("guest_id", guestID),
			zap.Int64("cast_id", castID),
			zap.String("status", string(row.Status)))
	}
	return row.Status, nil
}

// Approve moves a pending request to approved. Approving an approved follow is a no-op.
func (w *Workflow) Approve(ctx context.Context, v viewer.Viewer, guestID int64) error {
	castID, err := requireCast(v)
	if err != nil {
		return err
	}
	ok, err := w.store.TransitionFollow(ctx, guestID, castID, models.FollowPending, models.FollowApproved)
	if err != nil {
		return errs.Internalf(err, "approve follow")
	}
	if ok {
		w.record(ctx, "pending_to_approved", 1)
		return nil
	}

	row, err := w.store.GetFollow(ctx, guestID, castID)
	if err != nil {
		return errs.Internalf(err, "load follow")
	}
	if row == nil {
		return errs.NotFoundf("follow request not found")
	}
	return nil
}

// Reject deletes a pending request addressed to the cast viewer
func (w *Workflow) Reject(ctx context.Context, v viewer.Viewer, guestID int64) error {
	castID, err := requireCast(v)
	if err != nil {
		return err
	}
	return w.dropPending(ctx, guestID, castID, "pending_to_rejected")
}

// Cancel withdraws the guest viewer's pending request
func (w *Workflow) Cancel(ctx context.Context, v viewer.Viewer, castID int64) (models.FollowStatus, error) {
	guestID, err := requireGuest(v)
	if err != nil {
		return "", err
	}
	if err := w.dropPending(ctx, guestID, castID, "pending_to_cancelled"); err != nil {
		return "", err
	}
	return models.FollowNone, nil
}

func (w *Workflow) dropPending(ctx context.Context, guestID, castID int64, transition string) error {
	ok, err := w.store.DeleteFollow(ctx, guestID, castID, models.FollowPending)
	if err != nil {
		return errs.Internalf(err, "delete follow")
	}
	if ok {
		w.record(ctx, transition, 1)
		return nil
	}

	row, err := w.store.GetFollow(ctx, guestID, castID)
	if err != nil {
		return errs.Internalf(err, "load follow")
	}
	if row == nil {
		return errs.NotFoundf("follow request not found")
	}
	return errs.InvalidArgumentf("follow is already %s", row.Status)
}

// Unfollow removes an approved or pending follow. Unfollowing nothing succeeds.
func (w *Workflow) Unfollow(ctx context.Context, v viewer.Viewer, castID int64) (models.FollowStatus, error) {
	guestID, err := requireGuest(v)
	if err != nil {
		return "", err
	}
	ok, err := w.store.DeleteFollow(ctx, guestID, castID, models.FollowApproved, models.FollowPending)
	if err != nil {
		return "", errs.Internalf(err, "delete follow")
	}
	if ok {
		w.record(ctx, "to_none", 1)
	}
	return models.FollowNone, nil
}

// PendingCount returns how many requests await the cast viewer
func (w *Workflow) PendingCount(ctx context.Context, v viewer.Viewer) (int64, error) {
	castID, err := requireCast(v)
	if err != nil {
		return 0, err
	}
	n, err := w.store.CountPending(ctx, castID)
	if err != nil {
		return 0, errs.Internalf(err, "count pending")
	}
	return n, nil
}

// ListPending pages through the cast viewer's queue, oldest first
func (w *Workflow) ListPending(ctx context.Context, v viewer.Viewer, rawCursor string, limit int) (*PendingPage, error) {
	castID, err := requireCast(v)
	if err != nil {
		return nil, err
	}
	after, err := cursor.Decode(rawCursor)
	if err != nil {
		return nil, err
	}
	limit = cursor.Limit(limit, w.limits.DefaultPageSize, w.limits.MaxPageSize)

	rows, err := w.rels.PendingFollowers(ctx, castID, after, limit+1)
	if err != nil {
		return nil, errs.Internalf(err, "list pending followers")
	}
	page := &PendingPage{}
	page.Followers, page.HasMore = cursor.Trim(rows, limit)
	if page.Followers == nil {
		page.Followers = []relationship.PendingFollower{}
	}
	if page.HasMore {
		last := page.Followers[len(page.Followers)-1]
		page.NextCursor = cursor.New(last.RequestedAt, last.GuestID).Encode()
	}
	return page, nil
}

// SetVisibility switches the cast viewer between public and private.
// Going public approves every pending request.
func (w *Workflow) SetVisibility(ctx context.Context, v viewer.Viewer, visibility models.Visibility) (int64, error) {
	castID, err := requireCast(v)
	if err != nil {
		return 0, err
	}
	if !visibility.Valid() {
		return 0, errs.InvalidArgumentf("visibility must be public or private")
	}
	approved, err := w.store.SetVisibility(ctx, castID, visibility)
	if err != nil {
		return 0, errs.Internalf(err, "set visibility")
	}
	w.record(ctx, "pending_to_approved", approved)
	if w.authors != nil {
		w.authors.Invalidate(ctx, castID)
	}
	logging.WithContext(ctx).Info("Cast visibility changed",
		zap.Int64("cast_id", castID),
		zap.String("visibility", string(visibility)),
		zap.Int64("auto_approved", approved))
	return approved, nil
}

func (w *Workflow) loadCast(ctx context.Context, castID int64) (*models.Profile, error) {
	if castID <= 0 {
		return nil, errs.InvalidArgumentf("cast_id is required")
	}
	p, err := w.profiles.GetProfile(ctx, castID)
	if err != nil {
		return nil, errs.Internalf(err, "load profile %d", castID)
	}
	if p == nil {
		return nil, errs.NotFoundf("cast not found")
	}
	if p.Kind != models.KindCast {
		return nil, errs.InvalidArgumentf("profile %d is not a cast", castID)
	}
	return p, nil
}

func requireGuest(v viewer.Viewer) (int64, error) {
	if id, ok := v.GuestID(); ok {
		return id, nil
	}
	if v.IsAnonymous() {
		return 0, errs.Unauthenticatedf("sign in as a guest")
	}
	return 0, errs.PermissionDeniedf("only guests can follow casts")
}

func requireCast(v viewer.Viewer) (int64, error) {
	if id, ok := v.CastID(); ok {
		return id, nil
	}
	if v.IsAnonymous() {
		return 0, errs.Unauthenticatedf("sign in as a cast")
	}
	return 0, errs.PermissionDeniedf("only casts manage follow requests")
}
