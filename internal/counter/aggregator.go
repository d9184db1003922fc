// Package counter assembles per-post engagement counts for a page of posts.
package counter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/telemetry"
)

// Source answers the three counter queries, one round trip each
type Source interface {
	CountLikes(ctx context.Context, postIDs []int64) (map[int64]int64, error)
	// CountComments excludes comments whose authors are in exclude
	CountComments(ctx context.Context, postIDs []int64, exclude relationship.BlockSet) (map[int64]int64, error)
	LikedBy(ctx context.Context, guestID int64, postIDs []int64) (map[int64]bool, error)
}

// Counters holds the merged results. Absent ids read as zero or false.
type Counters struct {
	Likes    map[int64]int64
	Comments map[int64]int64
	Liked    map[int64]bool
}

func (c *Counters) LikesOf(id int64) int64 {
	if c == nil {
		return 0
	}
	return c.Likes[id]
}

func (c *Counters) CommentsOf(id int64) int64 {
	if c == nil {
		return 0
	}
	return c.Comments[id]
}

func (c *Counters) LikedByViewer(id int64) bool {
	if c == nil {
		return false
	}
	return c.Liked[id]
}

// Aggregator runs the counter queries concurrently
type Aggregator struct {
	source Source
}

// NewAggregator creates a counter aggregator
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Aggregate computes counters for postIDs as seen by v. blocks is v's
// two-way block set; it is ignored for anonymous viewers.
func (a *Aggregator) Aggregate(ctx context.Context, postIDs []int64, v viewer.Viewer, blocks relationship.BlockSet) (*Counters, error) {
	out := &Counters{
		Likes:    map[int64]int64{},
		Comments: map[int64]int64{},
		Liked:    map[int64]bool{},
	}
	if len(postIDs) == 0 {
		return out, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "counter.Aggregate")
	defer span.End()
	span.SetAttributes(attribute.Int("posts", len(postIDs)))

	exclude := relationship.NewBlockSet()
	if !v.IsAnonymous() && blocks.CastIDs != nil {
		exclude = blocks
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		likes, err := a.source.CountLikes(gctx, postIDs)
		if err != nil {
			return fmt.Errorf("count likes: %w", err)
		}
		out.Likes = likes
		return nil
	})
	g.Go(func() error {
		comments, err := a.source.CountComments(gctx, postIDs, exclude)
		if err != nil {
			return fmt.Errorf("count comments: %w", err)
		}
		out.Comments = comments
		return nil
	})
	if guestID, ok := v.GuestID(); ok {
		g.Go(func() error {
			liked, err := a.source.LikedBy(gctx, guestID, postIDs)
			if err != nil {
				return fmt.Errorf("liked by viewer: %w", err)
			}
			out.Liked = liked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return out, nil
}
