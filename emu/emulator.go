// Package emu provides the functional reference model of the heap: one
// binary heap per partition with the same admission rules as the
// pipelined engine and no timing.
package emu

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/config"
)

// Admission errors. They mirror the rejections of the pipelined engine.
var (
	ErrPartitionFull    = errors.New("partition full")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrRankOverflow     = errors.New("rank exceeds rank width")
	ErrMetaOverflow     = errors.New("metadata exceeds metadata width")
	ErrBadPartition     = errors.New("partition out of range")
)

// StepResult represents the result of applying a single operator.
type StepResult struct {
	// Entry is the popped entry, empty for pushes and empty partitions.
	Entry cluster.Entry

	// Err is set if the operator was rejected.
	Err error
}

// Statistics holds emulator counters.
type Statistics struct {
	Steps     uint64
	Rejected  uint64
	Pushes    uint64
	Pops      uint64
	Replaces  uint64
	EmptyPops uint64
}

// Emulator applies operators functionally.
type Emulator struct {
	config *config.Config
	queues []*entryHeap
	total  int
	seq    uint64
	stats  Statistics
}

// NewEmulator creates a reference model for cfg.
func NewEmulator(cfg *config.Config) (*Emulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Emulator{
		config: cfg.Clone(),
		queues: make([]*entryHeap, cfg.Partitions),
	}
	for i := range e.queues {
		e.queues[i] = &entryHeap{}
	}
	return e, nil
}

// Step applies op to partition p.
func (e *Emulator) Step(p int, op cluster.Operator) StepResult {
	if err := e.admit(p, op); err != nil {
		e.stats.Rejected++
		return StepResult{Entry: cluster.Empty(), Err: err}
	}
	e.stats.Steps++

	q := e.queues[p]
	switch {
	case op.IsNop():
	case op.IsPurePush():
		e.stats.Pushes++
		e.push(q, op.Push)
		e.total++
	case op.IsPurePop():
		e.stats.Pops++
		if q.Len() == 0 {
			e.stats.EmptyPops++
			return StepResult{Entry: cluster.Empty()}
		}
		e.total--
		return StepResult{Entry: heap.Pop(q).(item).entry}
	default:
		e.stats.Replaces++
		if q.Len() == 0 || !(*q)[0].entry.Less(op.Push) {
			return StepResult{Entry: op.Push}
		}
		out := (*q)[0].entry
		(*q)[0] = item{entry: op.Push, seq: e.nextSeq()}
		heap.Fix(q, 0)
		return StepResult{Entry: out}
	}
	return StepResult{Entry: cluster.Empty()}
}

func (e *Emulator) admit(p int, op cluster.Operator) error {
	if p < 0 || p >= len(e.queues) {
		return fmt.Errorf("%w: %d", ErrBadPartition, p)
	}
	if op.Push.Exists {
		if uint64(op.Push.Rank) > e.config.MaxRank() {
			return fmt.Errorf("%w: %d", ErrRankOverflow, op.Push.Rank)
		}
		if op.Push.Meta > e.config.MaxMeta() {
			return fmt.Errorf("%w: %#x", ErrMetaOverflow, op.Push.Meta)
		}
	}
	if !op.IsPurePush() {
		return nil
	}
	if e.queues[p].Len() >= e.config.PartitionCapacity() {
		return ErrPartitionFull
	}
	if e.total >= e.config.TotalCapacity() {
		return ErrCapacityExceeded
	}
	return nil
}

func (e *Emulator) push(q *entryHeap, entry cluster.Entry) {
	heap.Push(q, item{entry: entry, seq: e.nextSeq()})
}

func (e *Emulator) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// Peek returns the minimum of partition p without removing it.
func (e *Emulator) Peek(p int) cluster.Entry {
	q := e.queues[p]
	if q.Len() == 0 {
		return cluster.Empty()
	}
	return (*q)[0].entry
}

// Len returns the number of entries in partition p.
func (e *Emulator) Len(p int) int {
	return e.queues[p].Len()
}

// Size returns the number of entries in all partitions.
func (e *Emulator) Size() int {
	return e.total
}

// Contents returns the entries of partition p in pop order.
func (e *Emulator) Contents(p int) []cluster.Entry {
	cp := make(entryHeap, len(*e.queues[p]))
	copy(cp, *e.queues[p])
	out := make([]cluster.Entry, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(item).entry)
	}
	return out
}

// Stats returns emulator statistics.
func (e *Emulator) Stats() Statistics {
	return e.stats
}

// Reset empties every partition.
func (e *Emulator) Reset() {
	for i := range e.queues {
		e.queues[i] = &entryHeap{}
	}
	e.total = 0
	e.seq = 0
	e.stats = Statistics{}
}

type item struct {
	entry cluster.Entry
	seq   uint64
}

// entryHeap orders by rank, then by insertion so ties pop first-in.
type entryHeap []item

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].entry.Rank != h[j].entry.Rank {
		return h[i].entry.Rank < h[j].entry.Rank
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
