// Package engagement handles likes and comments on visible posts.
package engagement

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/cursor"
	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/profile"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/timeline"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
)

// ErrParentMissing is returned by Store.CreateComment when the parent
// comment vanished between validation and insert
var ErrParentMissing = errors.New("parent comment missing")

// Store persists likes and comments
type Store interface {
	// InsertLike is a no-op when the like exists
	InsertLike(ctx context.Context, postID, guestID int64) error
	DeleteLike(ctx context.Context, postID, guestID int64) error
	CountLikes(ctx context.Context, postIDs []int64) (map[int64]int64, error)
	// GetComment returns nil when the comment does not exist
	GetComment(ctx context.Context, commentID int64) (*models.Comment, error)
	// CreateComment inserts c and, for replies, increments the parent's
	// replies_count in the same transaction
	CreateComment(ctx context.Context, c *models.Comment) error
	// DeleteComment removes c. Replies decrement the parent; top-level
	// comments take their replies with them. One transaction.
	DeleteComment(ctx context.Context, c *models.Comment) error
	// ListComments returns comments under postID (top-level when parentID is
	// nil) oldest first, skipping authors in exclude
	ListComments(ctx context.Context, postID int64, parentID *int64, exclude relationship.BlockSet, after *cursor.Cursor, limit int) ([]models.Comment, error)
}

// PostGate evaluates a viewer's standing toward a post
type PostGate interface {
	Access(ctx context.Context, v viewer.Viewer, postID int64) (*timeline.Access, error)
}

// AuthorResolver resolves author display data in one batch
type AuthorResolver interface {
	Resolve(ctx context.Context, ids []int64) (map[int64]profile.Author, error)
}

// Limits bounds comment input and page sizes
type Limits struct {
	MaxCommentLength int
	DefaultPageSize  int
	MaxPageSize      int
}

// Comment is a comment as returned to clients
type Comment struct {
	ID           int64          `json:"id"`
	PostID       int64          `json:"post_id"`
	ParentID     *int64         `json:"parent_id,omitempty"`
	Author       profile.Author `json:"author"`
	Content      string         `json:"content"`
	RepliesCount int64          `json:"replies_count"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CommentPage is one page of comments
type CommentPage struct {
	Comments   []Comment `json:"comments"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// Service applies likes and comments
type Service struct {
	store   Store
	gate    PostGate
	rels    relationship.Store
	authors AuthorResolver
	limits  Limits
	logger  *zap.Logger
}

// NewService creates an engagement service
func NewService(store Store, gate PostGate, rels relationship.Store, authors AuthorResolver, limits Limits) *Service {
	return &Service{
		store:   store,
		gate:    gate,
		rels:    rels,
		authors: authors,
		limits:  limits,
		logger:  logging.WithComponent("engagement"),
	}
}

// Like records the guest viewer's like and returns the post's like count.
// Liking twice counts once.
func (s *Service) Like(ctx context.Context, v viewer.Viewer, postID int64) (int64, error) {
	guestID, err := requireGuest(v)
	if err != nil {
		return 0, err
	}
	if _, err := s.engageable(ctx, v, postID); err != nil {
		return 0, err
	}
	if err := s.store.InsertLike(ctx, postID, guestID); err != nil {
		return 0, errs.Internalf(err, "insert like")
	}
	return s.likes(ctx, postID)
}

// Unlike removes the guest viewer's like, if any, and returns the like count
func (s *Service) Unlike(ctx context.Context, v viewer.Viewer, postID int64) (int64, error) {
	guestID, err := requireGuest(v)
	if err != nil {
		return 0, err
	}
	acc, err := s.gate.Access(ctx, v, postID)
	if err != nil {
		return 0, err
	}
	if !acc.Visible {
		return 0, errs.NotFoundf("post not found")
	}
	if err := s.store.DeleteLike(ctx, postID, guestID); err != nil {
		return 0, errs.Internalf(err, "delete like")
	}
	return s.likes(ctx, postID)
}

func (s *Service) likes(ctx context.Context, postID int64) (int64, error) {
	counts, err := s.store.CountLikes(ctx, []int64{postID})
	if err != nil {
		return 0, errs.Internalf(err, "count likes")
	}
	return counts[postID], nil
}

// AddComment adds a top-level comment, or a reply when parentID is set.
// Replies to replies are rejected.
func (s *Service) AddComment(ctx context.Context, v viewer.Viewer, postID int64, content string, parentID *int64) (*Comment, error) {
	author, ok := v.Ref()
	if !ok {
		return nil, errs.Unauthenticatedf("sign in to comment")
	}
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > s.limits.MaxCommentLength {
		return nil, errs.InvalidArgumentf("comment must be between 1 and %d characters", s.limits.MaxCommentLength)
	}
	if _, err := s.engageable(ctx, v, postID); err != nil {
		return nil, err
	}

	if parentID != nil {
		parent, err := s.store.GetComment(ctx, *parentID)
		if err != nil {
			return nil, errs.Internalf(err, "load parent comment")
		}
		if parent == nil || parent.PostID != postID {
			return nil, errs.NotFoundf("parent comment not found")
		}
		if parent.IsReply() {
			return nil, errs.InvalidArgumentf("replies cannot be nested")
		}
	}

	c := &models.Comment{
		PostID:     postID,
		AuthorID:   author.ID,
		AuthorType: author.Kind,
		ParentID:   parentID,
		Content:    content,
		CreatedAt:  cursor.Truncate(time.Now()),
	}
	if err := s.store.CreateComment(ctx, c); err != nil {
		if errors.Is(err, ErrParentMissing) {
			return nil, errs.NotFoundf("parent comment not found")
		}
		return nil, errs.Internalf(err, "create comment")
	}

	logging.WithContext(ctx).Debug("Comment created",
		zap.Int64("comment_id", c.ID),
		zap.Int64("post_id", postID),
		zap.Bool("reply", parentID != nil))

	views, err := s.views(ctx, []models.Comment{*c})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// DeleteComment removes a comment. The comment author and the post author may delete.
func (s *Service) DeleteComment(ctx context.Context, v viewer.Viewer, commentID int64) error {
	ref, ok := v.Ref()
	if !ok {
		return errs.Unauthenticatedf("sign in to delete comments")
	}
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return errs.Internalf(err, "load comment")
	}
	if c == nil {
		return errs.NotFoundf("comment not found")
	}

	if c.Author() != ref {
		acc, err := s.gate.Access(ctx, v, c.PostID)
		if err != nil {
			return err
		}
		if !v.IsAuthor(acc.Post.AuthorID) {
			return errs.PermissionDeniedf("only the comment or post author can delete this comment")
		}
	}

	if err := s.store.DeleteComment(ctx, c); err != nil {
		return errs.Internalf(err, "delete comment")
	}
	return nil
}

// ListComments pages through top-level comments of a post, or the replies
// of one comment, oldest first
func (s *Service) ListComments(ctx context.Context, v viewer.Viewer, postID int64, parentID *int64, rawCursor string, limit int) (*CommentPage, error) {
	after, err := cursor.Decode(rawCursor)
	if err != nil {
		return nil, err
	}
	limit = cursor.Limit(limit, s.limits.DefaultPageSize, s.limits.MaxPageSize)

	acc, err := s.gate.Access(ctx, v, postID)
	if err != nil {
		return nil, err
	}
	if !acc.Visible || acc.Blocked {
		return nil, errs.NotFoundf("post not found")
	}

	exclude := relationship.NewBlockSet()
	if ref, ok := v.Ref(); ok {
		exclude, err = s.rels.BlockSet(ctx, ref)
		if err != nil {
			return nil, errs.Internalf(err, "load blocks")
		}
	}

	rows, err := s.store.ListComments(ctx, postID, parentID, exclude, after, limit+1)
	if err != nil {
		return nil, errs.Internalf(err, "list comments")
	}
	rows, hasMore := cursor.Trim(rows, limit)

	page := &CommentPage{HasMore: hasMore}
	page.Comments, err = s.views(ctx, rows)
	if err != nil {
		return nil, err
	}
	if hasMore {
		last := rows[len(rows)-1]
		page.NextCursor = cursor.New(last.CreatedAt, last.ID).Encode()
	}
	return page, nil
}

// engageable checks the post is visible to v and not behind a block
func (s *Service) engageable(ctx context.Context, v viewer.Viewer, postID int64) (*timeline.Access, error) {
	acc, err := s.gate.Access(ctx, v, postID)
	if err != nil {
		return nil, err
	}
	if !acc.Visible {
		return nil, errs.NotFoundf("post not found")
	}
	if acc.Blocked {
		return nil, errs.Blockedf("cannot engage with a blocked author")
	}
	return acc, nil
}

func (s *Service) views(ctx context.Context, rows []models.Comment) ([]Comment, error) {
	out := make([]Comment, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	seen := relationship.IDSet{}
	var ids []int64
	for i := range rows {
		if !seen.Has(rows[i].AuthorID) {
			seen.Add(rows[i].AuthorID)
			ids = append(ids, rows[i].AuthorID)
		}
	}
	authors, err := s.authors.Resolve(ctx, ids)
	if err != nil {
		return nil, errs.Internalf(err, "resolve comment authors")
	}
	for i := range rows {
		r := &rows[i]
		author, ok := authors[r.AuthorID]
		if !ok {
			author = profile.Author{ID: r.AuthorID, Kind: r.AuthorType}
		}
		out = append(out, Comment{
			ID:           r.ID,
			PostID:       r.PostID,
			ParentID:     r.ParentID,
			Author:       author,
			Content:      r.Content,
			RepliesCount: r.RepliesCount,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

func requireGuest(v viewer.Viewer) (int64, error) {
	if id, ok := v.GuestID(); ok {
		return id, nil
	}
	if v.IsAnonymous() {
		return 0, errs.Unauthenticatedf("sign in as a guest")
	}
	return 0, errs.PermissionDeniedf("only guests can like posts")
}
