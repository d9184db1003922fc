package timeline

import (
	"github.com/castlane/timeline/internal/cursor"
	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/viewer"
)

// Mode selects which posts a timeline draws from
type Mode string

const (
	ModeOwn       Mode = "own"
	ModePublic    Mode = "public"
	ModeFollowing Mode = "following"
	ModeFavorites Mode = "favorites"
	ModeAll       Mode = "all"
)

// ParseMode validates s. An empty mode is "all" for signed-in viewers and
// "public" otherwise.
func ParseMode(s string, v viewer.Viewer) (Mode, error) {
	switch Mode(s) {
	case "":
		if v.IsAnonymous() {
			return ModePublic, nil
		}
		return ModeAll, nil
	case ModeOwn, ModePublic, ModeFollowing, ModeFavorites, ModeAll:
		return Mode(s), nil
	}
	return "", errs.InvalidArgumentf("unknown timeline mode %q", s)
}

// Clause is one disjunct of a timeline filter. A post matches when its author
// qualifies and every visibility requirement holds.
type Clause struct {
	AnyAuthor    bool
	AuthorIDs    []int64
	PostPublic   bool
	AuthorPublic bool
}

// Filter is the store-agnostic description of a timeline query
type Filter struct {
	Clauses        []Clause
	ExcludeAuthors []int64
	// AuthorID restricts results to one author when non-zero
	AuthorID int64
	After    *cursor.Cursor
	// Limit is the number of rows to fetch, including the look-ahead row
	Limit int
}

// Empty reports whether no post can match
func (f *Filter) Empty() bool {
	return len(f.Clauses) == 0
}

// Matches evaluates the filter against a single row, ignoring Limit
func (f *Filter) Matches(row *PostRow) bool {
	if f.AuthorID != 0 && row.AuthorID != f.AuthorID {
		return false
	}
	for _, id := range f.ExcludeAuthors {
		if row.AuthorID == id {
			return false
		}
	}
	if !f.After.Before(row.CreatedAt, row.ID) {
		return false
	}
	for _, c := range f.Clauses {
		if c.matches(row) {
			return true
		}
	}
	return false
}

func (c Clause) matches(row *PostRow) bool {
	if c.PostPublic && row.Visibility != models.VisibilityPublic {
		return false
	}
	if c.AuthorPublic && row.AuthorVisibility != models.VisibilityPublic {
		return false
	}
	if c.AnyAuthor {
		return true
	}
	for _, id := range c.AuthorIDs {
		if id == row.AuthorID {
			return true
		}
	}
	return false
}

// Relations are the viewer's relationship sets used to build a filter
type Relations struct {
	Following relationship.IDSet
	Favorites relationship.IDSet
	Blocks    relationship.BlockSet
}

func publicClause() Clause {
	return Clause{AnyAuthor: true, PostPublic: true, AuthorPublic: true}
}

func authorsClause(ids relationship.IDSet, postPublic, authorPublic bool) (Clause, bool) {
	if ids.Len() == 0 {
		return Clause{}, false
	}
	return Clause{AuthorIDs: ids.Slice(), PostPublic: postPublic, AuthorPublic: authorPublic}, true
}

// BuildFilter turns a mode and the viewer's relations into a Filter.
// The returned filter has no cursor or limit set.
func BuildFilter(mode Mode, v viewer.Viewer, authorID int64, rel Relations) (*Filter, error) {
	f := &Filter{AuthorID: authorID}

	switch mode {
	case ModeOwn:
		castID, ok := v.CastID()
		if !ok {
			return nil, requireKind(v, "own timeline requires a cast")
		}
		if authorID != 0 && authorID != castID {
			return nil, errs.InvalidArgumentf("own timeline cannot be scoped to another author")
		}
		f.AuthorID = castID
		f.Clauses = []Clause{{AuthorIDs: []int64{castID}}}
		return f, nil

	case ModePublic:
		f.Clauses = []Clause{publicClause()}

	case ModeFollowing:
		if _, ok := v.GuestID(); !ok {
			return nil, requireKind(v, "following timeline requires a guest")
		}
		if c, ok := authorsClause(rel.Following, false, false); ok {
			f.Clauses = append(f.Clauses, c)
		}

	case ModeFavorites:
		if _, ok := v.GuestID(); !ok {
			return nil, requireKind(v, "favorites timeline requires a guest")
		}
		if c, ok := authorsClause(rel.Favorites, true, true); ok {
			f.Clauses = append(f.Clauses, c)
		}
		// approval lifts the cast-level gate but never the post-level one
		if c, ok := authorsClause(rel.Favorites.Intersect(rel.Following), true, false); ok {
			f.Clauses = append(f.Clauses, c)
		}

	case ModeAll:
		if v.IsAnonymous() {
			return nil, errs.Unauthenticatedf("all timeline requires a viewer")
		}
		f.Clauses = append(f.Clauses, publicClause())
		if c, ok := authorsClause(rel.Following, false, false); ok {
			f.Clauses = append(f.Clauses, c)
		}
		if castID, ok := v.CastID(); ok {
			f.Clauses = append(f.Clauses, Clause{AuthorIDs: []int64{castID}})
		}

	default:
		return nil, errs.InvalidArgumentf("unknown timeline mode %q", mode)
	}

	f.ExcludeAuthors = rel.Blocks.CastIDs.Slice()
	return f, nil
}

func requireKind(v viewer.Viewer, msg string) error {
	if v.IsAnonymous() {
		return errs.Unauthenticatedf("%s", msg)
	}
	return errs.PermissionDeniedf("%s", msg)
}
