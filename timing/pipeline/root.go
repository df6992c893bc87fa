package pipeline

import (
	"fmt"

	"github.com/sarchlab/clubheap/cluster"
)

// RootFetchLatch holds state between the root fetch and compare stages.
type RootFetchLatch struct {
	Valid     bool
	Seq       uint64
	Issued    uint64
	Partition int
	Op        cluster.Operator
	Entry     cluster.Entry
}

// Clear resets the latch to empty state.
func (r *RootFetchLatch) Clear() {
	*r = RootFetchLatch{}
}

// RootCompareLatch holds state between the root compare and commit stages.
type RootCompareLatch struct {
	Valid     bool
	Seq       uint64
	Partition int
	Entry     cluster.Entry
}

// Clear resets the latch to empty state.
func (r *RootCompareLatch) Clear() {
	*r = RootCompareLatch{}
}

// RootForwardRegister holds the root entry committed this cycle.
type RootForwardRegister struct {
	Valid     bool
	Partition int
	Entry     cluster.Entry
}

// Clear resets the register to empty state.
func (r *RootForwardRegister) Clear() {
	*r = RootForwardRegister{}
}

// RootProcessor holds the minimum of every partition and produces the pop
// results. Its fetch port takes the partition id in DownPort.Addr.
type RootProcessor struct {
	entries    []cluster.Entry
	hazardUnit *HazardUnit

	fetched  RootFetchLatch
	compared RootCompareLatch
	forward  RootForwardRegister

	// cycle stamps fetched operators with their issue cycle.
	cycle uint64

	// Down is the operator sent to level one this cycle.
	Down DownPort
	// Result is the pop result produced this cycle.
	Result Result

	forwards uint64
}

// NewRootProcessor creates a root with the given number of partitions.
func NewRootProcessor(partitions int) *RootProcessor {
	r := &RootProcessor{
		entries:    make([]cluster.Entry, partitions),
		hazardUnit: NewHazardUnit(),
	}
	r.Reset()
	return r
}

// Entry returns the minimum of partition p.
func (r *RootProcessor) Entry(p int) cluster.Entry {
	return r.entries[p]
}

// Forwards returns how many root fetches were replaced by a forwarded entry.
func (r *RootProcessor) Forwards() uint64 {
	return r.forwards
}

// SetCycle sets the cycle stamped on operators fetched from now on.
func (r *RootProcessor) SetCycle(cycle uint64) {
	r.cycle = cycle
}

// Commit implements Processor.
func (r *RootProcessor) Commit(child *UpPort) {
	r.forward.Clear()
	if !r.compared.Valid {
		return
	}

	l := &r.compared
	entry := l.Entry
	if child != nil && child.Valid {
		if child.Seq != l.Seq {
			panic(fmt.Sprintf("root: level one answered seq %d while committing seq %d",
				child.Seq, l.Seq))
		}
		if child.PromotedValid {
			entry = child.Promoted
		}
	}

	r.entries[l.Partition] = entry
	r.forward = RootForwardRegister{Valid: true, Partition: l.Partition, Entry: entry}
	r.compared.Clear()
}

// Compare implements Processor.
func (r *RootProcessor) Compare() {
	r.Down.Clear()
	r.Result = Result{}
	r.compared.Clear()
	if !r.fetched.Valid {
		return
	}

	f := &r.fetched
	entry := f.Entry
	if r.hazardUnit.DetectRootForwarding(f.Partition, &r.forward) {
		entry = r.forward.Entry
		r.forwards++
	}

	res := CompareRoot(f.Op, entry)
	r.compared = RootCompareLatch{
		Valid:     true,
		Seq:       f.Seq,
		Partition: f.Partition,
		Entry:     res.Root,
	}
	r.Result = Result{
		Valid:     true,
		Seq:       f.Seq,
		Issued:    f.Issued,
		Partition: f.Partition,
		Op:        f.Op,
		Entry:     res.Popped,
	}
	if !res.Forward.IsNop() {
		r.Down = DownPort{
			Valid: true,
			Seq:   f.Seq,
			Addr:  cluster.Addr(f.Partition >> 1),
			Side:  cluster.Side(f.Partition & 1),
			Op:    res.Forward,
		}
	}
	r.fetched.Clear()
}

// Fetch implements Processor.
func (r *RootProcessor) Fetch(parent *DownPort) {
	r.fetched.Clear()
	if !parent.Valid {
		return
	}
	partition := int(parent.Addr)
	r.fetched = RootFetchLatch{
		Valid:     true,
		Seq:       parent.Seq,
		Issued:    r.cycle,
		Partition: partition,
		Op:        parent.Op,
		Entry:     r.entries[partition],
	}
}

// Busy implements Processor.
func (r *RootProcessor) Busy() bool {
	return r.fetched.Valid || r.compared.Valid
}

// Reset implements Processor.
func (r *RootProcessor) Reset() {
	for i := range r.entries {
		r.entries[i] = cluster.Empty()
	}
	r.fetched.Clear()
	r.compared.Clear()
	r.forward.Clear()
	r.Down.Clear()
	r.Result = Result{}
	r.forwards = 0
	r.cycle = 0
}
