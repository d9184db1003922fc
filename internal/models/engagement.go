package models

import (
	"time"
)

// Like represents a guest liking a post
type Like struct {
	PostID    int64     `gorm:"primaryKey;autoIncrement:false;column:post_id"`
	GuestID   int64     `gorm:"primaryKey;autoIncrement:false;column:guest_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Like
func (Like) TableName() string {
	return "likes"
}

// Comment represents a comment on a post, or a reply to a top-level comment
type Comment struct {
	ID           int64       `gorm:"primaryKey;autoIncrement;column:id"`
	PostID       int64       `gorm:"not null;index:comments_post_created_idx,priority:1;column:post_id"`
	AuthorID     int64       `gorm:"not null;column:author_id"`
	AuthorType   ProfileKind `gorm:"type:varchar(8);not null;column:author_type"`
	ParentID     *int64      `gorm:"index;column:parent_id"`
	Content      string      `gorm:"type:text;not null;column:content"`
	RepliesCount int64       `gorm:"not null;default:0;column:replies_count"`
	CreatedAt    time.Time   `gorm:"not null;index:comments_post_created_idx,priority:2;column:created_at"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}

// IsReply reports whether the comment nests under another comment
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// Author returns the typed reference of the comment author
func (c *Comment) Author() ProfileRef {
	return ProfileRef{ID: c.AuthorID, Kind: c.AuthorType}
}
