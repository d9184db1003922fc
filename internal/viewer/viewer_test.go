package viewer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/castlane/timeline/internal/models"
)

func TestVariants(t *testing.T) {
	g := Guest(7)
	id, ok := g.GuestID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	_, ok = g.CastID()
	assert.False(t, ok)
	assert.False(t, g.IsAuthor(7))

	c := Cast(9)
	assert.True(t, c.IsAuthor(9))
	assert.False(t, c.IsAuthor(10))
	ref, ok := c.Ref()
	assert.True(t, ok)
	assert.Equal(t, models.ProfileRef{ID: 9, Kind: models.KindCast}, ref)

	assert.True(t, Guest(0).IsAnonymous())
	assert.True(t, Cast(-1).IsAnonymous())
	_, ok = Anonymous().Ref()
	assert.False(t, ok)
}

func TestFromRef(t *testing.T) {
	assert.Equal(t, Guest(3), FromRef(models.ProfileRef{ID: 3, Kind: models.KindGuest}))
	assert.Equal(t, Cast(3), FromRef(models.ProfileRef{ID: 3, Kind: models.KindCast}))
	assert.True(t, FromRef(models.ProfileRef{ID: 3, Kind: "robot"}).IsAnonymous())
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.True(t, FromContext(ctx).IsAnonymous())

	ctx = WithViewer(ctx, Guest(42))
	assert.Equal(t, "guest:42", FromContext(ctx).String())
}
