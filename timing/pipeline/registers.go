// Package pipeline provides the cycle-level model of the heap: a root
// processor and one three-stage level processor per tree level.
package pipeline

import "github.com/sarchlab/clubheap/cluster"

// DownPort carries an operator from a processor to the level below it.
type DownPort struct {
	// Valid indicates the port carries an operator this cycle.
	Valid bool

	// Seq is the issue sequence number of the operator.
	Seq uint64

	// Addr is the pair address at the receiving level. For the root it is
	// the partition id.
	Addr cluster.Addr

	// Side selects the cluster within the pair.
	Side cluster.Side

	// Op is the operator to apply.
	Op cluster.Operator
}

// Clear resets the port to empty state.
func (r *DownPort) Clear() {
	*r = DownPort{}
}

// UpPort carries the outcome of a level's compare back to its parent.
type UpPort struct {
	// Valid indicates the port carries a response this cycle.
	Valid bool

	// Seq is the issue sequence number of the operator.
	Seq uint64

	// Actual is the address the operator was applied at.
	Actual cluster.Addr

	// Allocated is true when Actual was taken from the free list.
	Allocated bool

	// Promoted is the new minimum of the cluster, valid for pops.
	Promoted      cluster.Entry
	PromotedValid bool

	// Emptied is true when the pair at Actual holds nothing afterwards.
	Emptied bool
}

// Clear resets the port to empty state.
func (r *UpPort) Clear() {
	*r = UpPort{}
}

// FetchLatch holds state between the fetch and compare stages of a level.
type FetchLatch struct {
	Valid bool
	Seq   uint64
	Op    cluster.Operator
	Side  cluster.Side

	// Requested is the address the parent asked for; Actual is where the
	// read landed after allocation.
	Requested cluster.Addr
	Actual    cluster.Addr
	Allocated bool

	Pair cluster.Pair
}

// Clear resets the latch to empty state.
func (r *FetchLatch) Clear() {
	*r = FetchLatch{}
}

// CompareLatch holds state between the compare and commit stages.
type CompareLatch struct {
	Valid  bool
	Seq    uint64
	Actual cluster.Addr
	Side   cluster.Side

	// Pair is the updated pair, still waiting for the promoted child value.
	Pair cluster.Pair

	// ChildSide and Forward describe what was sent one level down.
	ChildSide cluster.Side
	Forward   cluster.Operator

	// Emptied mirrors the flag reported upward.
	Emptied bool
}

// Clear resets the latch to empty state.
func (r *CompareLatch) Clear() {
	*r = CompareLatch{}
}

// ForwardRegister holds the pair a commit stage wrote this cycle, so the
// compare stage of the next operator can use it instead of its stale read.
type ForwardRegister struct {
	Valid bool
	Seq   uint64
	Addr  cluster.Addr
	Pair  cluster.Pair
}

// Clear resets the register to empty state.
func (r *ForwardRegister) Clear() {
	*r = ForwardRegister{}
}
