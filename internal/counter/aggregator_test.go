package counter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/viewer"
)

type comment struct {
	postID int64
	author models.ProfileRef
}

type fakeSource struct {
	mu       sync.Mutex
	likes    map[int64][]int64
	comments []comment
	calls    map[string]int
	failOn   string
}

func (f *fakeSource) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
	if f.failOn == name {
		return errors.New("store failure")
	}
	return nil
}

func (f *fakeSource) CountLikes(_ context.Context, ids []int64) (map[int64]int64, error) {
	if err := f.record("likes"); err != nil {
		return nil, err
	}
	out := map[int64]int64{}
	for _, id := range ids {
		if n := len(f.likes[id]); n > 0 {
			out[id] = int64(n)
		}
	}
	return out, nil
}

func (f *fakeSource) CountComments(_ context.Context, ids []int64, exclude relationship.BlockSet) (map[int64]int64, error) {
	if err := f.record("comments"); err != nil {
		return nil, err
	}
	want := relationship.NewIDSet(ids...)
	out := map[int64]int64{}
	for _, c := range f.comments {
		if want.Has(c.postID) && !exclude.Has(c.author) {
			out[c.postID]++
		}
	}
	return out, nil
}

func (f *fakeSource) LikedBy(_ context.Context, guestID int64, ids []int64) (map[int64]bool, error) {
	if err := f.record("liked"); err != nil {
		return nil, err
	}
	out := map[int64]bool{}
	for _, id := range ids {
		for _, g := range f.likes[id] {
			if g == guestID {
				out[id] = true
			}
		}
	}
	return out, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		likes: map[int64][]int64{1: {100, 101}, 2: {101}},
		comments: []comment{
			{1, models.ProfileRef{ID: 100, Kind: models.KindGuest}},
			{1, models.ProfileRef{ID: 200, Kind: models.KindGuest}},
			{2, models.ProfileRef{ID: 7, Kind: models.KindCast}},
		},
	}
}

func TestAggregateForGuest(t *testing.T) {
	src := newFakeSource()
	agg := NewAggregator(src)

	blocks := relationship.NewBlockSet()
	blocks.Add(models.ProfileRef{ID: 200, Kind: models.KindGuest})

	c, err := agg.Aggregate(context.Background(), []int64{1, 2, 3}, viewer.Guest(100), blocks)
	require.NoError(t, err)

	assert.Equal(t, int64(2), c.LikesOf(1))
	assert.Equal(t, int64(1), c.LikesOf(2))
	assert.Equal(t, int64(0), c.LikesOf(3))
	assert.Equal(t, int64(1), c.CommentsOf(1))
	assert.Equal(t, int64(1), c.CommentsOf(2))
	assert.True(t, c.LikedByViewer(1))
	assert.False(t, c.LikedByViewer(2))
	assert.False(t, c.LikedByViewer(3))
	assert.Equal(t, 1, src.calls["likes"])
	assert.Equal(t, 1, src.calls["comments"])
	assert.Equal(t, 1, src.calls["liked"])
}

func TestAggregateAnonymous(t *testing.T) {
	src := newFakeSource()
	agg := NewAggregator(src)

	blocks := relationship.NewBlockSet()
	blocks.Add(models.ProfileRef{ID: 200, Kind: models.KindGuest})

	c, err := agg.Aggregate(context.Background(), []int64{1}, viewer.Anonymous(), blocks)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.CommentsOf(1))
	assert.Empty(t, c.Liked)
	assert.Zero(t, src.calls["liked"])
}

func TestAggregateEmptyAndFailure(t *testing.T) {
	src := newFakeSource()
	agg := NewAggregator(src)

	c, err := agg.Aggregate(context.Background(), nil, viewer.Guest(1), relationship.NewBlockSet())
	require.NoError(t, err)
	assert.Empty(t, c.Likes)
	assert.Nil(t, src.calls)

	src.failOn = "comments"
	_, err = agg.Aggregate(context.Background(), []int64{1}, viewer.Guest(1), relationship.NewBlockSet())
	assert.Error(t, err)

	var nilCounters *Counters
	assert.Zero(t, nilCounters.LikesOf(1))
}
