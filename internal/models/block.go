package models

import (
	"time"
)

// Block represents one profile blocking another
type Block struct {
	BlockerID   int64       `gorm:"primaryKey;autoIncrement:false;column:blocker_id"`
	BlockerType ProfileKind `gorm:"primaryKey;type:varchar(8);column:blocker_type"`
	BlockedID   int64       `gorm:"primaryKey;autoIncrement:false;index:blocks_blocked_idx,priority:1;column:blocked_id"`
	BlockedType ProfileKind `gorm:"primaryKey;type:varchar(8);index:blocks_blocked_idx,priority:2;column:blocked_type"`
	CreatedAt   time.Time   `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Block
func (Block) TableName() string {
	return "blocks"
}

// Blocker returns the blocking side
func (b *Block) Blocker() ProfileRef {
	return ProfileRef{ID: b.BlockerID, Kind: b.BlockerType}
}

// Blocked returns the blocked side
func (b *Block) Blocked() ProfileRef {
	return ProfileRef{ID: b.BlockedID, Kind: b.BlockedType}
}
