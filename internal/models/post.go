package models

import (
	"time"

	"gorm.io/datatypes"
)

// Post represents a cast-authored post
type Post struct {
	ID         int64                       `gorm:"primaryKey;autoIncrement;column:id"`
	AuthorID   int64                       `gorm:"not null;index:posts_author_created_idx,priority:1;column:author_id"`
	Content    string                      `gorm:"type:text;not null;column:content"`
	Visibility Visibility                  `gorm:"type:varchar(8);not null;default:'public';column:visibility"`
	MediaURLs  datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]';column:media_urls"`
	CreatedAt  time.Time                   `gorm:"not null;index:posts_author_created_idx,priority:2,sort:desc;column:created_at"`
	UpdatedAt  time.Time                   `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// IsPublic reports whether the post itself is marked public
func (p *Post) IsPublic() bool {
	return p.Visibility == VisibilityPublic
}
