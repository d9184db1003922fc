package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/castlane/timeline/internal/counter"
	"github.com/castlane/timeline/internal/cursor"
	"github.com/castlane/timeline/internal/engagement"
	"github.com/castlane/timeline/internal/follow"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/post"
	"github.com/castlane/timeline/internal/profile"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/timeline"
)

var (
	_ relationship.Store         = (*RelationshipRepository)(nil)
	_ relationship.Writer        = (*RelationshipRepository)(nil)
	_ relationship.ProfileLookup = (*ProfileRepository)(nil)
	_ profile.Store              = (*ProfileRepository)(nil)
	_ follow.Store               = (*FollowRepository)(nil)
	_ timeline.PostSource        = (*PostRepository)(nil)
	_ post.Store                 = (*PostRepository)(nil)
	_ engagement.Store           = (*EngagementRepository)(nil)
	_ counter.Source             = (*EngagementRepository)(nil)
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func now() time.Time {
	return cursor.Truncate(time.Now())
}

func ignoreNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// ProfileRepository provides profile lookups
type ProfileRepository struct {
	*Repository
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(repo *Repository) *ProfileRepository {
	return &ProfileRepository{Repository: repo}
}

// GetProfile retrieves a profile by ID
func (r *ProfileRepository) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, ignoreNotFound(err)
	}
	return &p, nil
}

// ProfilesByIDs retrieves the profiles that exist among ids
func (r *ProfileRepository) ProfilesByIDs(ctx context.Context, ids []int64) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Create creates a new profile
func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// RelationshipRepository reads follows and favorites and reads and writes blocks
type RelationshipRepository struct {
	*Repository
}

// NewRelationshipRepository creates a new relationship repository
func NewRelationshipRepository(repo *Repository) *RelationshipRepository {
	return &RelationshipRepository{Repository: repo}
}

// FollowingCastIDs returns the casts the guest follows with an approved row
func (r *RelationshipRepository) FollowingCastIDs(ctx context.Context, guestID int64) (relationship.IDSet, error) {
	if guestID == 0 {
		return relationship.IDSet{}, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("guest_id = ? AND status = ?", guestID, models.FollowApproved).
		Pluck("cast_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return relationship.NewIDSet(ids...), nil
}

// IsFollowing reports whether the guest has an approved follow of the cast
func (r *RelationshipRepository) IsFollowing(ctx context.Context, guestID, castID int64) (bool, error) {
	st, err := r.FollowStatus(ctx, guestID, castID)
	return st == models.FollowApproved, err
}

// FollowStatus returns the follow status for the pair, or none when no row exists
func (r *RelationshipRepository) FollowStatus(ctx context.Context, guestID, castID int64) (models.FollowStatus, error) {
	if guestID == 0 || castID == 0 {
		return models.FollowNone, nil
	}
	var f models.Follow
	err := r.db.WithContext(ctx).Where("guest_id = ? AND cast_id = ?", guestID, castID).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.FollowNone, nil
		}
		return models.FollowNone, err
	}
	return f.Status, nil
}

// PendingFollowers retrieves a cast's pending requests oldest first, after the cursor
func (r *RelationshipRepository) PendingFollowers(ctx context.Context, castID int64, after *cursor.Cursor, limit int) ([]relationship.PendingFollower, error) {
	q := r.db.WithContext(ctx).
		Where("cast_id = ? AND status = ?", castID, models.FollowPending)
	if after != nil {
		q = q.Where("(created_at, guest_id) > (?, ?)", after.CreatedAt, after.ID)
	}

	var rows []models.Follow
	if err := q.Order("created_at ASC, guest_id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]relationship.PendingFollower, 0, len(rows))
	for _, f := range rows {
		out = append(out, relationship.PendingFollower{GuestID: f.GuestID, RequestedAt: f.CreatedAt.UTC()})
	}
	return out, nil
}

// BlockedBy returns the profiles that ref has blocked
func (r *RelationshipRepository) BlockedBy(ctx context.Context, ref models.ProfileRef) (relationship.BlockSet, error) {
	out := relationship.NewBlockSet()
	if ref.IsZero() {
		return out, nil
	}
	var rows []models.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocker_type = ?", ref.ID, ref.Kind).
		Find(&rows).Error
	if err != nil {
		return out, err
	}
	for i := range rows {
		out.Add(rows[i].Blocked())
	}
	return out, nil
}

// BlockSet returns every profile blocked by or blocking ref
func (r *RelationshipRepository) BlockSet(ctx context.Context, ref models.ProfileRef) (relationship.BlockSet, error) {
	out := relationship.NewBlockSet()
	if ref.IsZero() {
		return out, nil
	}
	var rows []models.Block
	err := r.db.WithContext(ctx).
		Where("(blocker_id = ? AND blocker_type = ?) OR (blocked_id = ? AND blocked_type = ?)",
			ref.ID, ref.Kind, ref.ID, ref.Kind).
		Find(&rows).Error
	if err != nil {
		return out, err
	}
	for i := range rows {
		if rows[i].Blocker() == ref {
			out.Add(rows[i].Blocked())
		} else {
			out.Add(rows[i].Blocker())
		}
	}
	return out, nil
}

// BlockExists reports whether a block exists between a and b in either direction
func (r *RelationshipRepository) BlockExists(ctx context.Context, a, b models.ProfileRef) (bool, error) {
	if a.IsZero() || b.IsZero() {
		return false, nil
	}
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Block{}).
		Where("(blocker_id = ? AND blocker_type = ? AND blocked_id = ? AND blocked_type = ?) OR "+
			"(blocker_id = ? AND blocker_type = ? AND blocked_id = ? AND blocked_type = ?)",
			a.ID, a.Kind, b.ID, b.Kind, b.ID, b.Kind, a.ID, a.Kind).
		Count(&n).Error
	return n > 0, err
}

// FavoriteCastIDs returns the casts the guest has favorited
func (r *RelationshipRepository) FavoriteCastIDs(ctx context.Context, guestID int64) (relationship.IDSet, error) {
	if guestID == 0 {
		return relationship.IDSet{}, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("guest_id = ?", guestID).
		Pluck("cast_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return relationship.NewIDSet(ids...), nil
}

// CreateBlock records a block; an existing block is left as is
func (r *RelationshipRepository) CreateBlock(ctx context.Context, blocker, blocked models.ProfileRef) error {
	row := &models.Block{
		BlockerID:   blocker.ID,
		BlockerType: blocker.Kind,
		BlockedID:   blocked.ID,
		BlockedType: blocked.Kind,
		CreatedAt:   now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// DeleteBlock removes a block if present
func (r *RelationshipRepository) DeleteBlock(ctx context.Context, blocker, blocked models.ProfileRef) error {
	return r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocker_type = ? AND blocked_id = ? AND blocked_type = ?",
			blocker.ID, blocker.Kind, blocked.ID, blocked.Kind).
		Delete(&models.Block{}).Error
}

// CreateFavorite records a favorite; an existing favorite is left as is
func (r *RelationshipRepository) CreateFavorite(ctx context.Context, guestID, castID int64) error {
	row := &models.Favorite{GuestID: guestID, CastID: castID, CreatedAt: now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// DeleteFavorite removes a favorite if present
func (r *RelationshipRepository) DeleteFavorite(ctx context.Context, guestID, castID int64) error {
	return r.db.WithContext(ctx).
		Where("guest_id = ? AND cast_id = ?", guestID, castID).
		Delete(&models.Favorite{}).Error
}

// FollowRepository stores follow rows and their status transitions
type FollowRepository struct {
	*Repository
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(repo *Repository) *FollowRepository {
	return &FollowRepository{Repository: repo}
}

// CreateFollowIfAbsent inserts a follow unless the pair already has one. The
// cast's profile row is share-locked while the status is chosen, so a
// concurrent SetVisibility either commits first or waits for the insert.
func (r *FollowRepository) CreateFollowIfAbsent(ctx context.Context, guestID, castID int64) (*models.Follow, bool, error) {
	var (
		row     models.Follow
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cast models.Profile
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id", "visibility").
			Where("id = ? AND kind = ?", castID, models.KindCast).
			First(&cast).Error
		if err != nil {
			return err
		}
		status := models.FollowPending
		if cast.Visibility == models.VisibilityPublic {
			status = models.FollowApproved
		}

		t := now()
		row = models.Follow{GuestID: guestID, CastID: castID, Status: status, CreatedAt: t, UpdatedAt: t}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			created = true
			return nil
		}
		return tx.Where("guest_id = ? AND cast_id = ?", guestID, castID).First(&row).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &row, created, nil
}

// GetFollow retrieves the follow row for the pair, nil if none
func (r *FollowRepository) GetFollow(ctx context.Context, guestID, castID int64) (*models.Follow, error) {
	var f models.Follow
	if err := r.db.WithContext(ctx).Where("guest_id = ? AND cast_id = ?", guestID, castID).First(&f).Error; err != nil {
		return nil, ignoreNotFound(err)
	}
	return &f, nil
}

// TransitionFollow moves the row from one status to another in a single conditional update
func (r *FollowRepository) TransitionFollow(ctx context.Context, guestID, castID int64, from, to models.FollowStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("guest_id = ? AND cast_id = ? AND status = ?", guestID, castID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": now()})
	return res.RowsAffected > 0, res.Error
}

// DeleteFollow removes the row when its status is one of statuses
func (r *FollowRepository) DeleteFollow(ctx context.Context, guestID, castID int64, statuses ...models.FollowStatus) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Where("guest_id = ? AND cast_id = ? AND status IN ?", guestID, castID, statuses).
		Delete(&models.Follow{})
	return res.RowsAffected > 0, res.Error
}

// CountPending counts the requests awaiting the cast
func (r *FollowRepository) CountPending(ctx context.Context, castID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("cast_id = ? AND status = ?", castID, models.FollowPending).
		Count(&n).Error
	return n, err
}

// SetVisibility updates a cast's visibility. Going public approves pending
// follows in the same transaction and returns how many.
func (r *FollowRepository) SetVisibility(ctx context.Context, castID int64, vis models.Visibility) (int64, error) {
	var approved int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Profile{}).
			Where("id = ? AND kind = ?", castID, models.KindCast).
			Update("visibility", vis).Error
		if err != nil {
			return err
		}
		if vis != models.VisibilityPublic {
			return nil
		}
		res := tx.Model(&models.Follow{}).
			Where("cast_id = ? AND status = ?", castID, models.FollowPending).
			Updates(map[string]interface{}{"status": models.FollowApproved, "updated_at": now()})
		approved = res.RowsAffected
		return res.Error
	})
	return approved, err
}

// PostRepository provides post storage and timeline queries
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

func (r *PostRepository) postRows(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("posts").
		Select("posts.*, profiles.visibility AS author_visibility").
		Joins("JOIN profiles ON profiles.id = posts.author_id")
}

// clauseSQL renders one filter clause as a parenthesized condition
func clauseSQL(c timeline.Clause) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if !c.AnyAuthor {
		conds = append(conds, "posts.author_id IN ?")
		args = append(args, c.AuthorIDs)
	}
	if c.PostPublic {
		conds = append(conds, "posts.visibility = ?")
		args = append(args, models.VisibilityPublic)
	}
	if c.AuthorPublic {
		conds = append(conds, "profiles.visibility = ?")
		args = append(args, models.VisibilityPublic)
	}
	if len(conds) == 0 {
		return "(TRUE)", nil
	}
	return "(" + strings.Join(conds, " AND ") + ")", args
}

// ListPosts runs a timeline filter as a single keyset query
func (r *PostRepository) ListPosts(ctx context.Context, f *timeline.Filter) ([]timeline.PostRow, error) {
	if f.Empty() {
		return nil, nil
	}

	var (
		parts []string
		args  []interface{}
	)
	for _, c := range f.Clauses {
		sql, a := clauseSQL(c)
		parts = append(parts, sql)
		args = append(args, a...)
	}
	q := r.postRows(ctx).Where("("+strings.Join(parts, " OR ")+")", args...)

	if f.AuthorID != 0 {
		q = q.Where("posts.author_id = ?", f.AuthorID)
	}
	if len(f.ExcludeAuthors) > 0 {
		q = q.Where("posts.author_id NOT IN ?", f.ExcludeAuthors)
	}
	if f.After != nil {
		q = q.Where("(posts.created_at, posts.id) < (?, ?)", f.After.CreatedAt, f.After.ID)
	}
	q = q.Order("posts.created_at DESC, posts.id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []timeline.PostRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetPost retrieves a post with its author's visibility
func (r *PostRepository) GetPost(ctx context.Context, postID int64) (*timeline.PostRow, error) {
	var rows []timeline.PostRow
	if err := r.postRows(ctx).Where("posts.id = ?", postID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreatePost creates a new post
func (r *PostRepository) CreatePost(ctx context.Context, p *models.Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// FindPost retrieves a post by ID
func (r *PostRepository) FindPost(ctx context.Context, postID int64) (*models.Post, error) {
	var p models.Post
	if err := r.db.WithContext(ctx).First(&p, postID).Error; err != nil {
		return nil, ignoreNotFound(err)
	}
	return &p, nil
}

// UpdatePost updates a post
func (r *PostRepository) UpdatePost(ctx context.Context, p *models.Post) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// DeletePost removes a post together with its likes and comments
func (r *PostRepository) DeletePost(ctx context.Context, postID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ? AND parent_id IS NOT NULL", postID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, postID).Error
	})
}

// EngagementRepository stores likes and comments
type EngagementRepository struct {
	*Repository
}

// NewEngagementRepository creates a new engagement repository
func NewEngagementRepository(repo *Repository) *EngagementRepository {
	return &EngagementRepository{Repository: repo}
}

type postCount struct {
	PostID int64
	N      int64
}

func toCountMap(rows []postCount) map[int64]int64 {
	out := make(map[int64]int64, len(rows))
	for _, r := range rows {
		out[r.PostID] = r.N
	}
	return out
}

// excludeAuthors drops rows whose (id, type) author is in b
func excludeAuthors(q *gorm.DB, idCol, typeCol string, b relationship.BlockSet) *gorm.DB {
	if ids := b.CastIDs.Slice(); len(ids) > 0 {
		q = q.Where("NOT ("+typeCol+" = ? AND "+idCol+" IN ?)", models.KindCast, ids)
	}
	if ids := b.GuestIDs.Slice(); len(ids) > 0 {
		q = q.Where("NOT ("+typeCol+" = ? AND "+idCol+" IN ?)", models.KindGuest, ids)
	}
	return q
}

// InsertLike records a like; liking twice is a no-op
func (r *EngagementRepository) InsertLike(ctx context.Context, postID, guestID int64) error {
	row := &models.Like{PostID: postID, GuestID: guestID, CreatedAt: now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// DeleteLike removes a like if present
func (r *EngagementRepository) DeleteLike(ctx context.Context, postID, guestID int64) error {
	return r.db.WithContext(ctx).
		Where("post_id = ? AND guest_id = ?", postID, guestID).
		Delete(&models.Like{}).Error
}

// CountLikes retrieves like counts for the given posts
func (r *EngagementRepository) CountLikes(ctx context.Context, postIDs []int64) (map[int64]int64, error) {
	if len(postIDs) == 0 {
		return map[int64]int64{}, nil
	}
	var rows []postCount
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

// LikedBy reports which of the posts the guest has liked
func (r *EngagementRepository) LikedBy(ctx context.Context, guestID int64, postIDs []int64) (map[int64]bool, error) {
	out := map[int64]bool{}
	if guestID == 0 || len(postIDs) == 0 {
		return out, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("guest_id = ? AND post_id IN ?", guestID, postIDs).
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// CountComments retrieves comment counts for the posts, skipping comments by excluded authors
func (r *EngagementRepository) CountComments(ctx context.Context, postIDs []int64, exclude relationship.BlockSet) (map[int64]int64, error) {
	if len(postIDs) == 0 {
		return map[int64]int64{}, nil
	}
	q := r.db.WithContext(ctx).Model(&models.Comment{}).
		Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", postIDs)
	q = excludeAuthors(q, "author_id", "author_type", exclude)

	var rows []postCount
	if err := q.Group("post_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

// GetComment retrieves a comment by id, nil if not found
func (r *EngagementRepository) GetComment(ctx context.Context, commentID int64) (*models.Comment, error) {
	var c models.Comment
	if err := r.db.WithContext(ctx).First(&c, commentID).Error; err != nil {
		return nil, ignoreNotFound(err)
	}
	return &c, nil
}

// CreateComment inserts c and bumps the parent's reply count atomically.
// Replies may only target a top-level comment on the same post.
func (r *EngagementRepository) CreateComment(ctx context.Context, c *models.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.ParentID != nil {
			res := tx.Model(&models.Comment{}).
				Where("id = ? AND parent_id IS NULL AND post_id = ?", *c.ParentID, c.PostID).
				UpdateColumn("replies_count", gorm.Expr("replies_count + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return engagement.ErrParentMissing
			}
		}
		return tx.Create(c).Error
	})
}

// DeleteComment removes a comment. A top-level comment takes its replies with
// it; a reply decrements its parent's counter.
func (r *EngagementRepository) DeleteComment(ctx context.Context, c *models.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.ParentID == nil {
			if err := tx.Where("parent_id = ?", c.ID).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&models.Comment{}, c.ID)
		if res.Error != nil || res.RowsAffected == 0 || c.ParentID == nil {
			return res.Error
		}
		return tx.Model(&models.Comment{}).
			Where("id = ? AND replies_count > 0", *c.ParentID).
			UpdateColumn("replies_count", gorm.Expr("replies_count - 1")).Error
	})
}

// ListComments retrieves comments or replies oldest first, after the cursor
func (r *EngagementRepository) ListComments(ctx context.Context, postID int64, parentID *int64, exclude relationship.BlockSet, after *cursor.Cursor, limit int) ([]models.Comment, error) {
	q := r.db.WithContext(ctx).Where("post_id = ?", postID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	q = excludeAuthors(q, "author_id", "author_type", exclude)
	if after != nil {
		q = q.Where("(created_at, id) > (?, ?)", after.CreatedAt, after.ID)
	}

	var out []models.Comment
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
