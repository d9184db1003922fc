package models

import (
	"time"
)

// FollowStatus is the lifecycle state of a guest-to-cast follow
type FollowStatus string

const (
	// FollowNone is never persisted; it is the absence of a row
	FollowNone     FollowStatus = "none"
	FollowPending  FollowStatus = "pending"
	FollowApproved FollowStatus = "approved"
)

// Follow represents a guest following a cast
type Follow struct {
	GuestID   int64        `gorm:"primaryKey;autoIncrement:false;column:guest_id"`
	CastID    int64        `gorm:"primaryKey;autoIncrement:false;index:follows_cast_status_idx,priority:1;column:cast_id"`
	Status    FollowStatus `gorm:"type:varchar(8);not null;index:follows_cast_status_idx,priority:2;column:status"`
	CreatedAt time.Time    `gorm:"not null;index:follows_cast_status_idx,priority:3;column:created_at"`
	UpdatedAt time.Time    `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for Follow
func (Follow) TableName() string {
	return "follows"
}

// Favorite represents a guest bookmarking a cast
type Favorite struct {
	GuestID   int64     `gorm:"primaryKey;autoIncrement:false;column:guest_id"`
	CastID    int64     `gorm:"primaryKey;autoIncrement:false;column:cast_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Favorite
func (Favorite) TableName() string {
	return "favorites"
}
