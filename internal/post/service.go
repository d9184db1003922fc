// Package post implements author-side post management.
package post

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/cursor"
	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/viewer"
	"github.com/castlane/timeline/pkg/logging"
)

// Store persists posts
type Store interface {
	CreatePost(ctx context.Context, p *models.Post) error
	// FindPost returns nil when the post does not exist
	FindPost(ctx context.Context, postID int64) (*models.Post, error)
	UpdatePost(ctx context.Context, p *models.Post) error
	// DeletePost removes the post with its likes and comments in one transaction
	DeletePost(ctx context.Context, postID int64) error
}

// Limits bounds post input
type Limits struct {
	MaxPostLength int
	MaxMedia      int
}

// Input is the content of a new post
type Input struct {
	Content    string
	Visibility models.Visibility
	MediaURLs  []string
}

// Patch lists the fields to change; nil fields are left alone
type Patch struct {
	Content    *string
	Visibility *models.Visibility
	MediaURLs  *[]string
}

// Service manages posts on behalf of their authors
type Service struct {
	store  Store
	limits Limits
	logger *zap.Logger
}

// NewService creates a post service
func NewService(store Store, limits Limits) *Service {
	return &Service{
		store:  store,
		limits: limits,
		logger: logging.WithComponent("post"),
	}
}

// Create publishes a post authored by the cast viewer
func (s *Service) Create(ctx context.Context, v viewer.Viewer, in Input) (*models.Post, error) {
	castID, err := requireCast(v)
	if err != nil {
		return nil, err
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	content, err := s.validate(in.Content, in.Visibility, in.MediaURLs)
	if err != nil {
		return nil, err
	}

	now := cursor.Truncate(time.Now())
	p := &models.Post{
		AuthorID:   castID,
		Content:    content,
		Visibility: in.Visibility,
		MediaURLs:  nonNil(in.MediaURLs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreatePost(ctx, p); err != nil {
		return nil, errs.Internalf(err, "create post")
	}
	logging.WithContext(ctx).Info("Post created",
		zap.Int64("post_id", p.ID),
		zap.Int64("author_id", castID),
		zap.String("visibility", string(p.Visibility)))
	return p, nil
}

// Update edits a post in place. Only the author may edit.
func (s *Service) Update(ctx context.Context, v viewer.Viewer, postID int64, patch Patch) (*models.Post, error) {
	p, err := s.owned(ctx, v, postID)
	if err != nil {
		return nil, err
	}

	content, vis, media := p.Content, p.Visibility, []string(p.MediaURLs)
	if patch.Content != nil {
		content = *patch.Content
	}
	if patch.Visibility != nil {
		vis = *patch.Visibility
	}
	if patch.MediaURLs != nil {
		media = *patch.MediaURLs
	}
	content, err = s.validate(content, vis, media)
	if err != nil {
		return nil, err
	}

	p.Content = content
	p.Visibility = vis
	p.MediaURLs = nonNil(media)
	p.UpdatedAt = cursor.Truncate(time.Now())
	if err := s.store.UpdatePost(ctx, p); err != nil {
		return nil, errs.Internalf(err, "update post")
	}
	return p, nil
}

// Delete removes a post and its engagement. Only the author may delete.
func (s *Service) Delete(ctx context.Context, v viewer.Viewer, postID int64) error {
	if _, err := s.owned(ctx, v, postID); err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, postID); err != nil {
		return errs.Internalf(err, "delete post")
	}
	return nil
}

// owned loads a post authored by v. Other viewers get NotFound so private
// posts do not leak.
func (s *Service) owned(ctx context.Context, v viewer.Viewer, postID int64) (*models.Post, error) {
	if _, err := requireCast(v); err != nil {
		return nil, err
	}
	p, err := s.store.FindPost(ctx, postID)
	if err != nil {
		return nil, errs.Internalf(err, "load post %d", postID)
	}
	if p == nil || !v.IsAuthor(p.AuthorID) {
		return nil, errs.NotFoundf("post not found")
	}
	return p, nil
}

func (s *Service) validate(content string, vis models.Visibility, media []string) (string, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > s.limits.MaxPostLength {
		return "", errs.InvalidArgumentf("content must be between 1 and %d characters", s.limits.MaxPostLength)
	}
	if !vis.Valid() {
		return "", errs.InvalidArgumentf("visibility must be public or private")
	}
	if len(media) > s.limits.MaxMedia {
		return "", errs.InvalidArgumentf("at most %d media attachments allowed", s.limits.MaxMedia)
	}
	for _, m := range media {
		u, err := url.Parse(m)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", errs.InvalidArgumentf("invalid media url %q", m)
		}
	}
	return content, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func requireCast(v viewer.Viewer) (int64, error) {
	if id, ok := v.CastID(); ok {
		return id, nil
	}
	if v.IsAnonymous() {
		return 0, errs.Unauthenticatedf("sign in as a cast")
	}
	return 0, errs.PermissionDeniedf("only casts can publish posts")
}
