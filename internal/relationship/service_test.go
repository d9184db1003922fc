package relationship

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/viewer"
)

type fakeWriter struct {
	blocks    map[[2]models.ProfileRef]bool
	favorites map[[2]int64]bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{blocks: map[[2]models.ProfileRef]bool{}, favorites: map[[2]int64]bool{}}
}

func (f *fakeWriter) CreateBlock(_ context.Context, a, b models.ProfileRef) error {
	f.blocks[[2]models.ProfileRef{a, b}] = true
	return nil
}

func (f *fakeWriter) DeleteBlock(_ context.Context, a, b models.ProfileRef) error {
	delete(f.blocks, [2]models.ProfileRef{a, b})
	return nil
}

func (f *fakeWriter) CreateFavorite(_ context.Context, g, c int64) error {
	f.favorites[[2]int64{g, c}] = true
	return nil
}

func (f *fakeWriter) DeleteFavorite(_ context.Context, g, c int64) error {
	delete(f.favorites, [2]int64{g, c})
	return nil
}

type fakeProfiles map[int64]*models.Profile

func (f fakeProfiles) GetProfile(_ context.Context, id int64) (*models.Profile, error) {
	return f[id], nil
}

func newService() (*Service, *fakeWriter) {
	w := newFakeWriter()
	profiles := fakeProfiles{
		1: {ID: 1, Kind: models.KindCast},
		2: {ID: 2, Kind: models.KindGuest},
	}
	return NewService(w, profiles), w
}

func TestBlock(t *testing.T) {
	ctx := context.Background()
	svc, w := newService()
	cast := models.ProfileRef{ID: 1, Kind: models.KindCast}

	require.NoError(t, svc.Block(ctx, viewer.Guest(2), cast))
	require.NoError(t, svc.Block(ctx, viewer.Guest(2), cast))
	assert.Len(t, w.blocks, 1)

	err := svc.Block(ctx, viewer.Cast(1), cast)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	err = svc.Block(ctx, viewer.Anonymous(), cast)
	assert.Equal(t, errs.Unauthenticated, errs.KindOf(err))

	err = svc.Block(ctx, viewer.Guest(2), models.ProfileRef{ID: 1, Kind: models.KindGuest})
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	require.NoError(t, svc.Unblock(ctx, viewer.Guest(2), cast))
	require.NoError(t, svc.Unblock(ctx, viewer.Guest(2), cast))
	assert.Empty(t, w.blocks)
}

func TestFavorite(t *testing.T) {
	ctx := context.Background()
	svc, w := newService()

	require.NoError(t, svc.Favorite(ctx, viewer.Guest(2), 1))
	assert.True(t, w.favorites[[2]int64{2, 1}])

	err := svc.Favorite(ctx, viewer.Guest(2), 2)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	err = svc.Favorite(ctx, viewer.Guest(2), 99)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	err = svc.Favorite(ctx, viewer.Cast(1), 1)
	assert.Equal(t, errs.PermissionDenied, errs.KindOf(err))

	require.NoError(t, svc.Unfavorite(ctx, viewer.Guest(2), 1))
	assert.Empty(t, w.favorites)
}

func TestSets(t *testing.T) {
	s := NewIDSet(3, 1, 2)
	assert.Equal(t, []int64{1, 2, 3}, s.Slice())
	assert.Equal(t, []int64{2, 3}, s.Intersect(NewIDSet(2, 3, 4)).Slice())

	b := NewBlockSet()
	assert.True(t, b.Empty())
	b.Add(models.ProfileRef{ID: 5, Kind: models.KindCast})
	assert.True(t, b.Has(models.ProfileRef{ID: 5, Kind: models.KindCast}))
	assert.False(t, b.Has(models.ProfileRef{ID: 5, Kind: models.KindGuest}))
}
