// Package memstore is an in-memory implementation of every store interface,
// with the same uniqueness and ordering guarantees as the PostgreSQL
// repositories. It backs unit tests of the domain packages.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/castlane/timeline/internal/cursor"
	"github.com/castlane/timeline/internal/engagement"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/timeline"
)

type pair struct{ a, b int64 }

type blockKey struct{ blocker, blocked models.ProfileRef }

// Store holds all rows behind one mutex
type Store struct {
	mu sync.Mutex

	nextID    int64
	profiles  map[int64]*models.Profile
	posts     map[int64]*models.Post
	follows   map[pair]*models.Follow // guest, cast
	favorites map[pair]time.Time      // guest, cast
	blocks    map[blockKey]time.Time
	likes     map[pair]time.Time // post, guest
	comments  map[int64]*models.Comment
}

// New returns an empty store
func New() *Store {
	return &Store{
		profiles:  map[int64]*models.Profile{},
		posts:     map[int64]*models.Post{},
		follows:   map[pair]*models.Follow{},
		favorites: map[pair]time.Time{},
		blocks:    map[blockKey]time.Time{},
		likes:     map[pair]time.Time{},
		comments:  map[int64]*models.Comment{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddProfile inserts a profile and returns it
func (s *Store) AddProfile(kind models.ProfileKind, vis models.Visibility, name string) *models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Profile{
		ID:          s.id(),
		AccountID:   s.nextID,
		Kind:        kind,
		DisplayName: name,
		Visibility:  vis,
		CreatedAt:   time.Now().UTC(),
	}
	s.profiles[p.ID] = p
	return p
}

// AddPost inserts a post with an explicit timestamp
func (s *Store) AddPost(authorID int64, vis models.Visibility, createdAt time.Time) *models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := cursor.Truncate(createdAt)
	p := &models.Post{
		ID:         s.id(),
		AuthorID:   authorID,
		Content:    "post",
		Visibility: vis,
		MediaURLs:  []string{},
		CreatedAt:  t,
		UpdatedAt:  t,
	}
	s.posts[p.ID] = p
	return p
}

// Profiles

func (s *Store) GetProfile(_ context.Context, id int64) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ProfilesByIDs(_ context.Context, ids []int64) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Profile
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Relationship reads

func (s *Store) FollowingCastIDs(_ context.Context, guestID int64) (relationship.IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := relationship.IDSet{}
	for k, f := range s.follows {
		if k.a == guestID && f.Status == models.FollowApproved {
			out.Add(k.b)
		}
	}
	return out, nil
}

func (s *Store) IsFollowing(ctx context.Context, guestID, castID int64) (bool, error) {
	st, err := s.FollowStatus(ctx, guestID, castID)
	return st == models.FollowApproved, err
}

func (s *Store) FollowStatus(_ context.Context, guestID, castID int64) (models.FollowStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.follows[pair{guestID, castID}]; ok {
		return f.Status, nil
	}
	return models.FollowNone, nil
}

func (s *Store) PendingFollowers(_ context.Context, castID int64, after *cursor.Cursor, limit int) ([]relationship.PendingFollower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []relationship.PendingFollower
	for k, f := range s.follows {
		if k.b == castID && f.Status == models.FollowPending && after.After(f.CreatedAt, k.a) {
			out = append(out, relationship.PendingFollower{GuestID: k.a, RequestedAt: f.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].GuestID < out[j].GuestID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) BlockedBy(_ context.Context, ref models.ProfileRef) (relationship.BlockSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := relationship.NewBlockSet()
	for k := range s.blocks {
		if k.blocker == ref {
			out.Add(k.blocked)
		}
	}
	return out, nil
}

func (s *Store) BlockSet(_ context.Context, ref models.ProfileRef) (relationship.BlockSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := relationship.NewBlockSet()
	for k := range s.blocks {
		if k.blocker == ref {
			out.Add(k.blocked)
		}
		if k.blocked == ref {
			out.Add(k.blocker)
		}
	}
	return out, nil
}

func (s *Store) BlockExists(_ context.Context, a, b models.ProfileRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ab := s.blocks[blockKey{a, b}]
	_, ba := s.blocks[blockKey{b, a}]
	return ab || ba, nil
}

func (s *Store) FavoriteCastIDs(_ context.Context, guestID int64) (relationship.IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := relationship.IDSet{}
	for k := range s.favorites {
		if k.a == guestID {
			out.Add(k.b)
		}
	}
	return out, nil
}

// Relationship writes

func (s *Store) CreateBlock(_ context.Context, blocker, blocked models.ProfileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := blockKey{blocker, blocked}
	if _, ok := s.blocks[k]; !ok {
		s.blocks[k] = time.Now().UTC()
	}
	return nil
}

func (s *Store) DeleteBlock(_ context.Context, blocker, blocked models.ProfileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, blockKey{blocker, blocked})
	return nil
}

func (s *Store) CreateFavorite(_ context.Context, guestID, castID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair{guestID, castID}
	if _, ok := s.favorites[k]; !ok {
		s.favorites[k] = time.Now().UTC()
	}
	return nil
}

func (s *Store) DeleteFavorite(_ context.Context, guestID, castID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.favorites, pair{guestID, castID})
	return nil
}

// Follows

func (s *Store) CreateFollowIfAbsent(_ context.Context, guestID, castID int64) (*models.Follow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair{guestID, castID}
	if f, ok := s.follows[k]; ok {
		cp := *f
		return &cp, false, nil
	}
	cast, ok := s.profiles[castID]
	if !ok {
		return nil, false, fmt.Errorf("profile %d not found", castID)
	}
	status := models.FollowPending
	if cast.Visibility == models.VisibilityPublic {
		status = models.FollowApproved
	}
	now := cursor.Truncate(time.Now())
	f := &models.Follow{GuestID: guestID, CastID: castID, Status: status, CreatedAt: now, UpdatedAt: now}
	s.follows[k] = f
	cp := *f
	return &cp, true, nil
}

func (s *Store) GetFollow(_ context.Context, guestID, castID int64) (*models.Follow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.follows[pair{guestID, castID}]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *Store) TransitionFollow(_ context.Context, guestID, castID int64, from, to models.FollowStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.follows[pair{guestID, castID}]
	if !ok || f.Status != from {
		return false, nil
	}
	f.Status = to
	f.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) DeleteFollow(_ context.Context, guestID, castID int64, statuses ...models.FollowStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair{guestID, castID}
	f, ok := s.follows[k]
	if !ok {
		return false, nil
	}
	for _, st := range statuses {
		if f.Status == st {
			delete(s.follows, k)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountPending(_ context.Context, castID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, f := range s.follows {
		if k.b == castID && f.Status == models.FollowPending {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetVisibility(_ context.Context, castID int64, vis models.Visibility) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[castID]
	if !ok {
		return 0, nil
	}
	p.Visibility = vis
	if vis != models.VisibilityPublic {
		return 0, nil
	}
	var n int64
	for k, f := range s.follows {
		if k.b == castID && f.Status == models.FollowPending {
			f.Status = models.FollowApproved
			n++
		}
	}
	return n, nil
}

// Posts

func (s *Store) row(p *models.Post) timeline.PostRow {
	row := timeline.PostRow{Post: *p}
	if a, ok := s.profiles[p.AuthorID]; ok {
		row.AuthorVisibility = a.Visibility
	}
	return row
}

func (s *Store) ListPosts(_ context.Context, f *timeline.Filter) ([]timeline.PostRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []timeline.PostRow
	for _, p := range s.posts {
		row := s.row(p)
		if f.Matches(&row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetPost(_ context.Context, postID int64) (*timeline.PostRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return nil, nil
	}
	row := s.row(p)
	return &row, nil
}

func (s *Store) CreatePost(_ context.Context, p *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	cp := *p
	s.posts[p.ID] = &cp
	return nil
}

func (s *Store) FindPost(_ context.Context, postID int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) UpdatePost(_ context.Context, p *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.posts[p.ID] = &cp
	return nil
}

func (s *Store) DeletePost(_ context.Context, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, postID)
	for k := range s.likes {
		if k.a == postID {
			delete(s.likes, k)
		}
	}
	for id, c := range s.comments {
		if c.PostID == postID {
			delete(s.comments, id)
		}
	}
	return nil
}

// Likes and comments

func (s *Store) InsertLike(_ context.Context, postID, guestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair{postID, guestID}
	if _, ok := s.likes[k]; !ok {
		s.likes[k] = time.Now().UTC()
	}
	return nil
}

func (s *Store) DeleteLike(_ context.Context, postID, guestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.likes, pair{postID, guestID})
	return nil
}

func (s *Store) CountLikes(_ context.Context, postIDs []int64) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := relationship.NewIDSet(postIDs...)
	out := map[int64]int64{}
	for k := range s.likes {
		if want.Has(k.a) {
			out[k.a]++
		}
	}
	return out, nil
}

func (s *Store) LikedBy(_ context.Context, guestID int64, postIDs []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]bool{}
	for _, id := range postIDs {
		if _, ok := s.likes[pair{id, guestID}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (s *Store) CountComments(_ context.Context, postIDs []int64, exclude relationship.BlockSet) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := relationship.NewIDSet(postIDs...)
	out := map[int64]int64{}
	for _, c := range s.comments {
		if want.Has(c.PostID) && !exclude.Has(c.Author()) {
			out[c.PostID]++
		}
	}
	return out, nil
}

func (s *Store) GetComment(_ context.Context, commentID int64) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) CreateComment(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ParentID != nil {
		parent, ok := s.comments[*c.ParentID]
		if !ok || parent.ParentID != nil || parent.PostID != c.PostID {
			return engagement.ErrParentMissing
		}
		parent.RepliesCount++
	}
	c.ID = s.id()
	cp := *c
	s.comments[c.ID] = &cp
	return nil
}

func (s *Store) DeleteComment(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[c.ID]; !ok {
		return nil
	}
	delete(s.comments, c.ID)
	if c.ParentID != nil {
		if parent, ok := s.comments[*c.ParentID]; ok && parent.RepliesCount > 0 {
			parent.RepliesCount--
		}
		return nil
	}
	for id, r := range s.comments {
		if r.ParentID != nil && *r.ParentID == c.ID {
			delete(s.comments, id)
		}
	}
	return nil
}

func (s *Store) ListComments(_ context.Context, postID int64, parentID *int64, exclude relationship.BlockSet, after *cursor.Cursor, limit int) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Comment
	for _, c := range s.comments {
		if c.PostID != postID || exclude.Has(c.Author()) || !after.After(c.CreatedAt, c.ID) {
			continue
		}
		if parentID == nil && c.ParentID != nil {
			continue
		}
		if parentID != nil && (c.ParentID == nil || *c.ParentID != *parentID) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LiveReplies counts replies of a comment directly, for integrity checks
func (s *Store) LiveReplies(commentID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.comments {
		if c.ParentID != nil && *c.ParentID == commentID {
			n++
		}
	}
	return n
}
