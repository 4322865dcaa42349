// Package roster implements the ordered list of participant ids maintained by
// the leader of a tabsync channel.
//
// Participant ids are small integers handed out by the leader. Id 0 belongs to
// the first context that promoted itself. The roster is kept in ascending
// order, so the member at index 0 is the one with the lowest id; after every
// handoff this is the leader.
package roster

import (
	"sort"
)

// Roster is an immutable, ordered set of participant ids. Mutations return a
// new Roster.
type Roster struct {
	ids []int
}

// New creates a Roster from ids. Duplicates are removed and the result is
// sorted.
func New(ids ...int) *Roster {
	seen := make(map[int]bool, len(ids))
	res := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	sort.Ints(res)
	return &Roster{ids: res}
}

// FromSlice is New for slices received on the wire.
func FromSlice(ids []int) *Roster {
	return New(ids...)
}

// IDs returns a copy of the ordered ids.
func (r *Roster) IDs() []int {
	res := make([]int, len(r.ids))
	copy(res, r.ids)
	return res
}

// Len returns the number of participants.
func (r *Roster) Len() int {
	return len(r.ids)
}

// Leader returns the id at index 0.
func (r *Roster) Leader() (int, bool) {
	if len(r.ids) == 0 {
		return 0, false
	}
	return r.ids[0], true
}

// Contains ...
func (r *Roster) Contains(id int) bool {
	i := sort.SearchInts(r.ids, id)
	return i < len(r.ids) && r.ids[i] == id
}

// NextID returns the id the leader assigns to the next participant. Ids are
// never reused while the roster holds a higher one.
func (r *Roster) NextID() int {
	if len(r.ids) == 0 {
		return 0
	}
	return r.ids[len(r.ids)-1] + 1
}

// WithNewMember returns a Roster including id.
func (r *Roster) WithNewMember(id int) *Roster {
	if r.Contains(id) {
		return r
	}
	return New(append(r.IDs(), id)...)
}

// WithRemovedMember returns a Roster excluding id.
func (r *Roster) WithRemovedMember(id int) *Roster {
	res := make([]int, 0, len(r.ids))
	for _, m := range r.ids {
		if m != id {
			res = append(res, m)
		}
	}
	return &Roster{ids: res}
}

// Successor returns the participant that takes over when departing leaves:
// the lowest surviving id, and the Roster without departing. ok is false when
// nobody is left.
func (r *Roster) Successor(departing int) (next int, rest *Roster, ok bool) {
	rest = r.WithRemovedMember(departing)
	next, ok = rest.Leader()
	return next, rest, ok
}

// Equal ...
func (r *Roster) Equal(o *Roster) bool {
	if o == nil || len(r.ids) != len(o.ids) {
		return false
	}
	for i := range r.ids {
		if r.ids[i] != o.ids[i] {
			return false
		}
	}
	return true
}
