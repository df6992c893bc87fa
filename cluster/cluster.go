package cluster

import "fmt"

// Cluster is one heap node. It stores K-1 sorted entries; the node's
// conceptual slot 0 lives in the parent as MinLC or MinRC.
type Cluster struct {
	// Entries is sorted ascending by rank and left-packed.
	Entries []Entry

	// MinLC and MinRC cache the minimum resident in the left and right
	// child subtrees.
	MinLC Entry
	MinRC Entry

	// Diff is count(left subtree) - count(right subtree).
	Diff int32

	// Next addresses the child pair one level down.
	Next Addr
}

// NewCluster creates an empty cluster with width entry slots.
func NewCluster(width int) Cluster {
	c := Cluster{
		Entries: make([]Entry, width),
		MinLC:   Empty(),
		MinRC:   Empty(),
		Next:    NullAddr,
	}
	for i := range c.Entries {
		c.Entries[i] = Empty()
	}
	return c
}

// Clone returns a deep copy.
func (c Cluster) Clone() Cluster {
	out := c
	out.Entries = make([]Entry, len(c.Entries))
	copy(out.Entries, c.Entries)
	return out
}

// Width returns the number of entry slots.
func (c Cluster) Width() int {
	return len(c.Entries)
}

// Used returns the number of occupied slots.
func (c Cluster) Used() int {
	n := 0
	for _, e := range c.Entries {
		if !e.Exists {
			break
		}
		n++
	}
	return n
}

// IsFull reports whether the last slot is used.
func (c Cluster) IsFull() bool {
	return len(c.Entries) == 0 || c.Entries[len(c.Entries)-1].Exists
}

// IsEmpty reports whether the cluster holds no entry and caches no child
// minimum.
func (c Cluster) IsEmpty() bool {
	if len(c.Entries) > 0 && c.Entries[0].Exists {
		return false
	}
	return !c.MinLC.Exists && !c.MinRC.Exists
}

// ChildMin returns the cached minimum of the child on side s.
func (c Cluster) ChildMin(s Side) Entry {
	if s == Left {
		return c.MinLC
	}
	return c.MinRC
}

// SetChildMin replaces the cached minimum of the child on side s.
func (c *Cluster) SetChildMin(s Side, e Entry) {
	if s == Left {
		c.MinLC = e
		return
	}
	c.MinRC = e
}

// SmallerChild returns the smaller cached child minimum and its side. Ties
// go left.
func (c Cluster) SmallerChild() (Entry, Side) {
	if c.MinRC.Less(c.MinLC) {
		return c.MinRC, Right
	}
	return c.MinLC, Left
}

// CheckOrder verifies the sorted and left-packed invariants.
func (c Cluster) CheckOrder() error {
	for i := 1; i < len(c.Entries); i++ {
		prev, cur := c.Entries[i-1], c.Entries[i]
		if cur.Exists && !prev.Exists {
			return fmt.Errorf("slot %d used after empty slot %d", i, i-1)
		}
		if cur.Exists && cur.Less(prev) {
			return fmt.Errorf("slot %d rank %d below slot %d rank %d",
				i, cur.Rank, i-1, prev.Rank)
		}
	}
	if !c.IsFull() && (c.MinLC.Exists || c.MinRC.Exists) {
		return fmt.Errorf("children populated below a cluster with %d/%d slots",
			c.Used(), c.Width())
	}
	return nil
}

// ToStatic drops the child link.
func (c Cluster) ToStatic() StaticCluster {
	cl := c.Clone()
	return StaticCluster{
		Entries: cl.Entries,
		MinLC:   cl.MinLC,
		MinRC:   cl.MinRC,
		Diff:    cl.Diff,
	}
}

// StaticCluster is a Cluster whose child address is implicit.
type StaticCluster struct {
	Entries []Entry
	MinLC   Entry
	MinRC   Entry
	Diff    int32
}

// ToDynamic attaches an explicit child link.
func (s StaticCluster) ToDynamic(next Addr) Cluster {
	entries := make([]Entry, len(s.Entries))
	copy(entries, s.Entries)
	return Cluster{
		Entries: entries,
		MinLC:   s.MinLC,
		MinRC:   s.MinRC,
		Diff:    s.Diff,
		Next:    next,
	}
}

// Pair holds two sibling clusters sharing one storage slot.
type Pair [2]Cluster

// NewPair creates a pair of empty clusters.
func NewPair(width int) Pair {
	return Pair{NewCluster(width), NewCluster(width)}
}

// Clone returns a deep copy.
func (p Pair) Clone() Pair {
	return Pair{p[Left].Clone(), p[Right].Clone()}
}

// IsEmpty reports whether both siblings are empty.
func (p Pair) IsEmpty() bool {
	return p[Left].IsEmpty() && p[Right].IsEmpty()
}
