// Package viewer models the identity a request is evaluated for.
package viewer

import (
	"context"
	"fmt"

	"github.com/castlane/timeline/internal/models"
)

// Kind tags which variant a Viewer holds
type Kind int

const (
	KindAnonymous Kind = iota
	KindGuest
	KindCast
)

func (k Kind) String() string {
	switch k {
	case KindGuest:
		return "guest"
	case KindCast:
		return "cast"
	default:
		return "anonymous"
	}
}

// Viewer is Anonymous, Guest{id} or Cast{id}. The zero value is Anonymous.
type Viewer struct {
	kind Kind
	id   int64
}

// Anonymous returns the unauthenticated viewer
func Anonymous() Viewer {
	return Viewer{}
}

// Guest returns a guest viewer. Non-positive ids yield Anonymous.
func Guest(id int64) Viewer {
	if id <= 0 {
		return Viewer{}
	}
	return Viewer{kind: KindGuest, id: id}
}

// Cast returns a cast viewer. Non-positive ids yield Anonymous.
func Cast(id int64) Viewer {
	if id <= 0 {
		return Viewer{}
	}
	return Viewer{kind: KindCast, id: id}
}

// FromRef builds a viewer from a profile reference
func FromRef(ref models.ProfileRef) Viewer {
	switch ref.Kind {
	case models.KindGuest:
		return Guest(ref.ID)
	case models.KindCast:
		return Cast(ref.ID)
	default:
		return Anonymous()
	}
}

func (v Viewer) Kind() Kind { return v.kind }

func (v Viewer) IsAnonymous() bool { return v.kind == KindAnonymous }

// GuestID returns the guest id when the viewer is a guest
func (v Viewer) GuestID() (int64, bool) {
	if v.kind != KindGuest {
		return 0, false
	}
	return v.id, true
}

// CastID returns the cast id when the viewer is a cast
func (v Viewer) CastID() (int64, bool) {
	if v.kind != KindCast {
		return 0, false
	}
	return v.id, true
}

// IsAuthor reports whether the viewer is the cast that authored a post
func (v Viewer) IsAuthor(authorID int64) bool {
	return v.kind == KindCast && v.id == authorID
}

// Ref returns the profile reference, false for Anonymous
func (v Viewer) Ref() (models.ProfileRef, bool) {
	switch v.kind {
	case KindGuest:
		return models.ProfileRef{ID: v.id, Kind: models.KindGuest}, true
	case KindCast:
		return models.ProfileRef{ID: v.id, Kind: models.KindCast}, true
	default:
		return models.ProfileRef{}, false
	}
}

func (v Viewer) String() string {
	if v.kind == KindAnonymous {
		return "anonymous"
	}
	return fmt.Sprintf("%s:%d", v.kind, v.id)
}

type contextKey struct{}

// WithViewer stores v in ctx
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, contextKey{}, v)
}

// FromContext returns the viewer stored in ctx, or Anonymous
func FromContext(ctx context.Context) Viewer {
	if v, ok := ctx.Value(contextKey{}).(Viewer); ok {
		return v
	}
	return Anonymous()
}
