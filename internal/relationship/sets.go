package relationship

import (
	"sort"
	"time"

	"github.com/castlane/timeline/internal/models"
)

// IDSet is an unordered set of profile ids
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id int64) {
	s[id] = struct{}{}
}

func (s IDSet) Len() int {
	return len(s)
}

// Slice returns the ids in ascending order
func (s IDSet) Slice() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Intersect returns ids present in both sets
func (s IDSet) Intersect(o IDSet) IDSet {
	out := IDSet{}
	for id := range s {
		if o.Has(id) {
			out.Add(id)
		}
	}
	return out
}

// BlockSet holds the profiles on the other side of a block, split by kind
type BlockSet struct {
	CastIDs  IDSet
	GuestIDs IDSet
}

// NewBlockSet returns an empty block set
func NewBlockSet() BlockSet {
	return BlockSet{CastIDs: IDSet{}, GuestIDs: IDSet{}}
}

// Add records ref in the set
func (b BlockSet) Add(ref models.ProfileRef) {
	switch ref.Kind {
	case models.KindCast:
		b.CastIDs.Add(ref.ID)
	case models.KindGuest:
		b.GuestIDs.Add(ref.ID)
	}
}

// Has reports whether ref is in the set
func (b BlockSet) Has(ref models.ProfileRef) bool {
	switch ref.Kind {
	case models.KindCast:
		return b.CastIDs.Has(ref.ID)
	case models.KindGuest:
		return b.GuestIDs.Has(ref.ID)
	}
	return false
}

func (b BlockSet) Empty() bool {
	return b.CastIDs.Len() == 0 && b.GuestIDs.Len() == 0
}

// PendingFollower is one entry in a cast's approval queue
type PendingFollower struct {
	GuestID     int64     `json:"guest_id"`
	RequestedAt time.Time `json:"requested_at"`
}
