package models

import (
	"time"
)

// ProfileKind distinguishes content-authoring casts from consuming guests
type ProfileKind string

const (
	KindCast  ProfileKind = "cast"
	KindGuest ProfileKind = "guest"
)

// Valid reports whether k is a known profile kind
func (k ProfileKind) Valid() bool {
	return k == KindCast || k == KindGuest
}

// Visibility is shared by casts and posts
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Profile represents a cast or guest profile owned by an account
type Profile struct {
	ID          int64       `gorm:"primaryKey;autoIncrement;column:id"`
	AccountID   int64       `gorm:"not null;uniqueIndex:profiles_account_kind_ux;column:account_id"`
	Kind        ProfileKind `gorm:"type:varchar(8);not null;uniqueIndex:profiles_account_kind_ux;column:kind"`
	DisplayName string      `gorm:"type:varchar(64);not null;default:'';column:display_name"`
	AvatarURL   string      `gorm:"type:varchar(1024);not null;default:'';column:avatar_url"`
	Visibility  Visibility  `gorm:"type:varchar(8);not null;default:'public';column:visibility"`
	CreatedAt   time.Time   `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Profile
func (Profile) TableName() string {
	return "profiles"
}

// Ref returns the typed reference for this profile
func (p *Profile) Ref() ProfileRef {
	return ProfileRef{ID: p.ID, Kind: p.Kind}
}

// ProfileRef identifies a profile together with its kind. Ids come from the
// single profiles sequence; the kind travels with them so block rows and
// viewer tokens state which side of the relationship they name.
type ProfileRef struct {
	ID   int64       `json:"id"`
	Kind ProfileKind `json:"type"`
}

// IsZero reports whether the reference is unset
func (r ProfileRef) IsZero() bool {
	return r.ID == 0
}
