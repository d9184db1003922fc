// Package cursor implements the opaque keyset position shared by all paged reads.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/castlane/timeline/internal/errs"
)

// Cursor is the (created_at, id) position of the last item on a page
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

type wire struct {
	T  int64 `json:"t"`
	ID int64 `json:"id"`
}

// New builds a cursor, truncating the timestamp to storage precision
func New(createdAt time.Time, id int64) *Cursor {
	return &Cursor{CreatedAt: Truncate(createdAt), ID: id}
}

// Truncate drops sub-microsecond precision so cursors round-trip through timestamptz
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Encode returns the opaque string form of c
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	b, _ := json.Marshal(wire{T: c.CreatedAt.UnixMicro(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses s. An empty string is no cursor.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.InvalidArgumentf("invalid cursor")
	}
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil || w.ID <= 0 || w.T <= 0 {
		return nil, errs.InvalidArgumentf("invalid cursor")
	}
	return &Cursor{CreatedAt: time.UnixMicro(w.T).UTC(), ID: w.ID}, nil
}

// Before reports whether (t, id) sorts strictly after c in descending order,
// i.e. whether it belongs on the next page of a newest-first listing.
func (c *Cursor) Before(t time.Time, id int64) bool {
	if c == nil {
		return true
	}
	t = Truncate(t)
	if t.Equal(c.CreatedAt) {
		return id < c.ID
	}
	return t.Before(c.CreatedAt)
}

// After reports whether (t, id) sorts strictly after c in ascending order
func (c *Cursor) After(t time.Time, id int64) bool {
	if c == nil {
		return true
	}
	t = Truncate(t)
	if t.Equal(c.CreatedAt) {
		return id > c.ID
	}
	return t.After(c.CreatedAt)
}

// Limit clamps a requested page size. Zero or negative means def.
func Limit(requested, def, max int) int {
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

// Trim cuts a limit+1 fetch down to limit and reports whether more rows exist
func Trim[T any](rows []T, limit int) ([]T, bool) {
	if len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}
