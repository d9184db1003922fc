package follow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/internal/follow"
	"github.com/castlane/timeline/internal/memstore"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/viewer"
)

type recordingCache struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingCache) Invalidate(_ context.Context, ids ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ids...)
}

func setup() (*memstore.Store, *follow.Workflow, *recordingCache) {
	store := memstore.New()
	cache := &recordingCache{}
	w := follow.NewWorkflow(store, store, store, cache, follow.Limits{DefaultPageSize: 20, MaxPageSize: 100})
	return store, w, cache
}

func TestRequestPublicCastApprovesImmediately(t *testing.T) {
	store, w, _ := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPublic, "c")
	g := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")

	status, err := w.Request(ctx, viewer.Guest(g.ID), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowApproved, status)

	n, err := w.PendingCount(ctx, viewer.Cast(c.ID))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRequestIsIdempotent(t *testing.T) {
	store, w, _ := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPrivate, "c")
	g := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")
	guest := viewer.Guest(g.ID)

	first, err := w.Request(ctx, guest, c.ID)
	require.NoError(t, err)
	second, err := w.Request(ctx, guest, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowPending, first)
	assert.Equal(t, first, second)

	n, err := w.PendingCount(ctx, viewer.Cast(c.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, w.Approve(ctx, viewer.Cast(c.ID), g.ID))
	again, err := w.Request(ctx, guest, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowApproved, again)
}

func TestConcurrentRequestsCreateOneRow(t *testing.T) {
	store, w, _ := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPrivate, "c")
	g := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")

	var wg sync.WaitGroup
	statuses := make([]models.FollowStatus, 16)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i], _ = w.Request(ctx, viewer.Guest(g.ID), c.ID)
		}(i)
	}
	wg.Wait()

	for _, st := range statuses {
		assert.Equal(t, models.FollowPending, st)
	}
	n, err := w.PendingCount(ctx, viewer.Cast(c.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRequestValidation(t *testing.T) {
	store, w, _ := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPublic, "c")
	g := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")
	other := store.AddProfile(models.KindGuest, models.VisibilityPublic, "other")

	require.NoError(t, store.CreateBlock(ctx,
		models.ProfileRef{ID: c.ID, Kind: models.KindCast},
		models.ProfileRef{ID: g.ID, Kind: models.KindGuest}))

	tests := []struct {
		name   string
		viewer viewer.Viewer
		castID int64
		want   errs.Kind
	}{
		{"blocked by cast", viewer.Guest(g.ID), c.ID, errs.Blocked},
		{"anonymous", viewer.Anonymous(), c.ID, errs.Unauthenticated},
		{"cast viewer", viewer.Cast(c.ID), c.ID, errs.PermissionDenied},
		{"missing cast", viewer.Guest(other.ID), 9999, errs.NotFound},
		{"target is a guest", viewer.Guest(other.ID), g.ID, errs.InvalidArgument},
		{"zero id", viewer.Guest(other.ID), 0, errs.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Request(ctx, tt.viewer, tt.castID)
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.KindOf(err))
		})
	}
}

func TestApproveRejectCancel(t *testing.T) {
	store, w, _ := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPrivate, "c")
	g1 := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g1")
	g2 := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g2")
	g3 := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g3")
	cast := viewer.Cast(c.ID)

	for _, g := range []*models.Profile{g1, g2, g3} {
		_, err := w.Request(ctx, viewer.Guest(g.ID), c.ID)
		require.NoError(t, err)
	}

	require.NoError(t, w.Approve(ctx, cast, g1.ID))
	require.NoError(t, w.Approve(ctx, cast, g1.ID), "approving twice is a no-op")
	err := w.Approve(ctx, cast, 4242)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	err = w.Reject(ctx, cast, g1.ID)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err), "approved follows cannot be rejected")
	require.NoError(t, w.Reject(ctx, cast, g2.ID))
	err = w.Reject(ctx, cast, g2.ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	status, err := w.Cancel(ctx, viewer.Guest(g3.ID), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowNone, status)
	_, err = w.Cancel(ctx, viewer.Guest(g1.ID), c.ID)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	err = w.Approve(ctx, viewer.Guest(g1.ID), g1.ID)
	assert.Equal(t, errs.PermissionDenied, errs.KindOf(err))

	n, err := w.PendingCount(ctx, cast)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnfollow(t *testing.T) {
	store, w, _ := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPublic, "c")
	g := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")
	guest := viewer.Guest(g.ID)

	_, err := w.Request(ctx, guest, c.ID)
	require.NoError(t, err)

	status, err := w.Unfollow(ctx, guest, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowNone, status)

	following, err := store.IsFollowing(ctx, g.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, following)

	status, err = w.Unfollow(ctx, guest, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowNone, status)
}

func TestListPendingPaginates(t *testing.T) {
	store, w, _ := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPrivate, "c")

	var want []int64
	for i := 0; i < 5; i++ {
		g := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")
		_, err := w.Request(ctx, viewer.Guest(g.ID), c.ID)
		require.NoError(t, err)
		want = append(want, g.ID)
	}

	var got []int64
	next := ""
	for {
		page, err := w.ListPending(ctx, viewer.Cast(c.ID), next, 2)
		require.NoError(t, err)
		for _, f := range page.Followers {
			got = append(got, f.GuestID)
		}
		if !page.HasMore {
			break
		}
		next = page.NextCursor
	}
	assert.ElementsMatch(t, want, got)
	assert.Len(t, got, 5)

	_, err := w.ListPending(ctx, viewer.Cast(c.ID), "%%%", 2)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestSetVisibilityPublicApprovesPending(t *testing.T) {
	store, w, cache := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPrivate, "c")
	g1 := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g1")
	g2 := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g2")

	for _, g := range []*models.Profile{g1, g2} {
		_, err := w.Request(ctx, viewer.Guest(g.ID), c.ID)
		require.NoError(t, err)
	}

	approved, err := w.SetVisibility(ctx, viewer.Cast(c.ID), models.VisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, int64(2), approved)
	assert.Equal(t, []int64{c.ID}, cache.ids)

	following, err := store.FollowingCastIDs(ctx, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, relationship.NewIDSet(c.ID), following)

	// going private again leaves approvals alone
	approved, err = w.SetVisibility(ctx, viewer.Cast(c.ID), models.VisibilityPrivate)
	require.NoError(t, err)
	assert.Zero(t, approved)
	st, err := store.FollowStatus(ctx, g1.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowApproved, st)

	g3 := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g3")
	status, err := w.Request(ctx, viewer.Guest(g3.ID), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowPending, status)

	_, err = w.SetVisibility(ctx, viewer.Cast(c.ID), models.Visibility("friends"))
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

// publishingLookup flips the cast to public right after the workflow reads it
type publishingLookup struct {
	*memstore.Store
}

func (l publishingLookup) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	p, err := l.Store.GetProfile(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	if _, err := l.Store.SetVisibility(ctx, id, models.VisibilityPublic); err != nil {
		return nil, err
	}
	return p, nil
}

func TestRequestRacingSetVisibilityPublic(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPrivate, "c")
	g := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")
	w := follow.NewWorkflow(store, store, publishingLookup{store}, nil, follow.Limits{DefaultPageSize: 20, MaxPageSize: 100})

	status, err := w.Request(ctx, viewer.Guest(g.ID), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowApproved, status)

	n, err := store.CountPending(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "no request may stay pending on a public cast")
}

func TestPendingFollowerTimestamps(t *testing.T) {
	store, w, _ := setup()
	ctx := context.Background()
	c := store.AddProfile(models.KindCast, models.VisibilityPrivate, "c")
	g := store.AddProfile(models.KindGuest, models.VisibilityPublic, "g")

	before := time.Now().Add(-time.Second)
	_, err := w.Request(ctx, viewer.Guest(g.ID), c.ID)
	require.NoError(t, err)

	page, err := w.ListPending(ctx, viewer.Cast(c.ID), "", 0)
	require.NoError(t, err)
	require.Len(t, page.Followers, 1)
	assert.True(t, page.Followers[0].RequestedAt.After(before))
	assert.False(t, page.HasMore)
}
