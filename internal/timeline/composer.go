// Package timeline composes relationship-gated post listings.
package timeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/castlane/timeline/internal/counter"
	"github.com/castlane/timeline/internal/cursor"
	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/profile"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/internal/visibility"
	"github.com/castlane/timeline/pkg/logging"
	"github.com/castlane/timeline/pkg/telemetry"
)

// PostRow is a post joined with its author's profile visibility
type PostRow struct {
	models.Post
	AuthorVisibility models.Visibility `gorm:"column:author_visibility"`
}

// PostSource executes timeline filters
type PostSource interface {
	// ListPosts returns up to f.Limit rows ordered by (created_at desc, id desc)
	ListPosts(ctx context.Context, f *Filter) ([]PostRow, error)
	// GetPost returns nil when the post does not exist
	GetPost(ctx context.Context, postID int64) (*PostRow, error)
}

// AuthorResolver resolves author display data in one batch
type AuthorResolver interface {
	Resolve(ctx context.Context, ids []int64) (map[int64]profile.Author, error)
}

// CounterAggregator computes engagement counters for a page
type CounterAggregator interface {
	Aggregate(ctx context.Context, postIDs []int64, v viewer.Viewer, blocks relationship.BlockSet) (*counter.Counters, error)
}

// Limits bounds page sizes
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Request is a timeline listing request
type Request struct {
	Mode     Mode
	AuthorID int64
	Limit    int
	Cursor   string
}

// Summary is a post as shown in a timeline or detail view
type Summary struct {
	ID              int64             `json:"id"`
	Author          profile.Author    `json:"author"`
	Content         string            `json:"content"`
	Visibility      models.Visibility `json:"visibility"`
	MediaURLs       []string          `json:"media_urls"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	LikesCount      int64             `json:"likes_count"`
	CommentsCount   int64             `json:"comments_count"`
	LikedByViewer   bool              `json:"liked_by_viewer"`
	FollowingAuthor bool              `json:"following_author"`
}

// Page is one page of a timeline
type Page struct {
	Posts      []Summary `json:"posts"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// Access describes how a viewer relates to one post
type Access struct {
	Post *PostRow
	// Visible is the visibility decision ignoring blocks
	Visible bool
	Blocked bool
	Status  models.FollowStatus
}

// Composer builds timelines and single-post views
type Composer struct {
	posts    PostSource
	rels     relationship.Store
	authors  AuthorResolver
	counters CounterAggregator
	limits   Limits
	logger   *zap.Logger
	latency  metric.Float64Histogram
}

// NewComposer creates a timeline composer
func NewComposer(posts PostSource, rels relationship.Store, authors AuthorResolver, counters CounterAggregator, limits Limits) *Composer {
	c := &Composer{
		posts:    posts,
		rels:     rels,
		authors:  authors,
		counters: counters,
		limits:   limits,
		logger:   logging.WithComponent("timeline"),
	}
	hist, err := telemetry.Meter().Float64Histogram(
		"timeline_page_latency_seconds",
		metric.WithDescription("Time to compose one timeline page"),
		metric.WithUnit("s"),
	)
	if err != nil {
		c.logger.Warn("Failed to create latency histogram", zap.Error(err))
	}
	c.latency = hist
	return c
}

// List returns one page of the requested timeline for v
func (c *Composer) List(ctx context.Context, v viewer.Viewer, req Request) (*Page, error) {
	ctx, span := telemetry.StartSpan(ctx, "timeline.List")
	defer span.End()
	start := time.Now()

	mode, err := ParseMode(string(req.Mode), v)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("mode", string(mode)), attribute.String("viewer", v.String()))

	after, err := cursor.Decode(req.Cursor)
	if err != nil {
		return nil, err
	}
	if req.AuthorID < 0 {
		return nil, errs.InvalidArgumentf("invalid author_id")
	}
	limit := cursor.Limit(req.Limit, c.limits.DefaultPageSize, c.limits.MaxPageSize)

	rel, err := c.relations(ctx, v, mode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, errs.Internalf(err, "load relationships")
	}

	filter, err := BuildFilter(mode, v, req.AuthorID, rel)
	if err != nil {
		return nil, err
	}

	page := &Page{Posts: []Summary{}}
	if !filter.Empty() {
		filter.After = after
		filter.Limit = limit + 1

		rows, err := c.posts.ListPosts(ctx, filter)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, errs.Internalf(err, "list posts")
		}
		rows, page.HasMore = cursor.Trim(rows, limit)
		if page.HasMore {
			last := rows[len(rows)-1]
			page.NextCursor = cursor.New(last.CreatedAt, last.ID).Encode()
		}
		page.Posts, err = c.enrich(ctx, v, rows, rel)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	if c.latency != nil {
		c.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("mode", string(mode))))
	}
	logging.WithContext(ctx).Debug("Timeline composed",
		zap.String("mode", string(mode)),
		zap.String("viewer", v.String()),
		zap.Int("posts", len(page.Posts)),
		zap.Bool("has_more", page.HasMore))
	return page, nil
}

// Access loads a post and evaluates v's standing toward it.
// A missing post is NotFound.
func (c *Composer) Access(ctx context.Context, v viewer.Viewer, postID int64) (*Access, error) {
	if postID <= 0 {
		return nil, errs.InvalidArgumentf("post_id is required")
	}
	row, err := c.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, errs.Internalf(err, "load post %d", postID)
	}
	if row == nil {
		return nil, errs.NotFoundf("post not found")
	}

	acc := &Access{Post: row, Status: models.FollowNone}
	if guestID, ok := v.GuestID(); ok {
		acc.Status, err = c.rels.FollowStatus(ctx, guestID, row.AuthorID)
		if err != nil {
			return nil, errs.Internalf(err, "load follow status")
		}
	}
	if ref, ok := v.Ref(); ok && !v.IsAuthor(row.AuthorID) {
		acc.Blocked, err = c.rels.BlockExists(ctx, ref, models.ProfileRef{ID: row.AuthorID, Kind: models.KindCast})
		if err != nil {
			return nil, errs.Internalf(err, "check block")
		}
	}
	acc.Visible = visibility.CanView(&row.Post, row.AuthorVisibility, v, acc.Status)
	return acc, nil
}

// GetPost returns the post detail, or NotFound when v may not see it
func (c *Composer) GetPost(ctx context.Context, v viewer.Viewer, postID int64) (*Summary, error) {
	ctx, span := telemetry.StartSpan(ctx, "timeline.GetPost")
	defer span.End()

	acc, err := c.Access(ctx, v, postID)
	if err != nil {
		return nil, err
	}
	if !acc.Visible || acc.Blocked {
		return nil, errs.NotFoundf("post not found")
	}

	rel := Relations{Blocks: relationship.NewBlockSet()}
	if ref, ok := v.Ref(); ok {
		rel.Blocks, err = c.rels.BlockSet(ctx, ref)
		if err != nil {
			return nil, errs.Internalf(err, "load blocks")
		}
	}
	if acc.Status == models.FollowApproved {
		rel.Following = relationship.NewIDSet(acc.Post.AuthorID)
	}

	summaries, err := c.enrich(ctx, v, []PostRow{*acc.Post}, rel)
	if err != nil {
		return nil, err
	}
	return &summaries[0], nil
}

// relations loads only the sets the mode needs
func (c *Composer) relations(ctx context.Context, v viewer.Viewer, mode Mode) (Relations, error) {
	rel := Relations{
		Following: relationship.IDSet{},
		Favorites: relationship.IDSet{},
		Blocks:    relationship.NewBlockSet(),
	}
	ref, ok := v.Ref()
	if !ok {
		return rel, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		blocks, err := c.rels.BlockSet(gctx, ref)
		if err != nil {
			return err
		}
		rel.Blocks = blocks
		return nil
	})
	if guestID, isGuest := v.GuestID(); isGuest {
		g.Go(func() error {
			following, err := c.rels.FollowingCastIDs(gctx, guestID)
			if err != nil {
				return err
			}
			rel.Following = following
			return nil
		})
		if mode == ModeFavorites {
			g.Go(func() error {
				favorites, err := c.rels.FavoriteCastIDs(gctx, guestID)
				if err != nil {
					return err
				}
				rel.Favorites = favorites
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Relations{}, err
	}
	return rel, nil
}

func (c *Composer) enrich(ctx context.Context, v viewer.Viewer, rows []PostRow, rel Relations) ([]Summary, error) {
	out := make([]Summary, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	postIDs := make([]int64, len(rows))
	seen := relationship.IDSet{}
	var authorIDs []int64
	for i := range rows {
		postIDs[i] = rows[i].ID
		if !seen.Has(rows[i].AuthorID) {
			seen.Add(rows[i].AuthorID)
			authorIDs = append(authorIDs, rows[i].AuthorID)
		}
	}

	var (
		authors  map[int64]profile.Author
		counters *counter.Counters
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		authors, err = c.authors.Resolve(gctx, authorIDs)
		return err
	})
	g.Go(func() error {
		var err error
		counters, err = c.counters.Aggregate(gctx, postIDs, v, rel.Blocks)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errs.Internalf(err, "enrich posts")
	}

	for i := range rows {
		row := &rows[i]
		author, ok := authors[row.AuthorID]
		if !ok {
			author = profile.Author{ID: row.AuthorID, Kind: models.KindCast, Visibility: row.AuthorVisibility}
		}
		media := []string(row.MediaURLs)
		if media == nil {
			media = []string{}
		}
		out = append(out, Summary{
			ID:              row.ID,
			Author:          author,
			Content:         row.Content,
			Visibility:      row.Visibility,
			MediaURLs:       media,
			CreatedAt:       row.CreatedAt,
			UpdatedAt:       row.UpdatedAt,
			LikesCount:      counters.LikesOf(row.ID),
			CommentsCount:   counters.CommentsOf(row.ID),
			LikedByViewer:   counters.LikedByViewer(row.ID),
			FollowingAuthor: rel.Following.Has(row.AuthorID),
		})
	}
	return out, nil
}
