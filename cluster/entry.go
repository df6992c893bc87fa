// Package cluster defines the values that flow through the heap: entries,
// operators, clusters and the sibling pairs that share one storage slot.
package cluster

import "fmt"

// Rank is the priority of an entry. Smaller ranks are scheduled first.
type Rank uint64

// MaxRank is the rank carried by a non-existing entry.
const MaxRank = ^Rank(0)

// Entry is one priority-queue element.
type Entry struct {
	// Exists is false for an empty slot.
	Exists bool

	// Meta is an opaque payload carried with the entry.
	Meta uint64

	// Rank is the priority. Empty entries always carry MaxRank.
	Rank Rank
}

// Empty returns the non-existing entry.
func Empty() Entry {
	return Entry{Rank: MaxRank}
}

// NewEntry creates an existing entry.
func NewEntry(meta uint64, rank Rank) Entry {
	return Entry{Exists: true, Meta: meta, Rank: rank}
}

// Less reports whether e strictly beats o. A non-existing entry acts as
// +infinity and never beats anything, not even another empty entry.
func (e Entry) Less(o Entry) bool {
	if !e.Exists {
		return false
	}
	if !o.Exists {
		return true
	}
	return e.Rank < o.Rank
}

// Min returns the smaller of a and b. Ties keep a.
func Min(a, b Entry) Entry {
	if b.Less(a) {
		return b
	}
	return a
}

// String renders the entry for logs and test failures.
func (e Entry) String() string {
	if !e.Exists {
		return "<empty>"
	}
	return fmt.Sprintf("{rank=%d meta=%#x}", e.Rank, e.Meta)
}
