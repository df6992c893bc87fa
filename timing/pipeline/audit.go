package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/clubheap/cluster"
)

// ErrInvariant is wrapped by every Audit failure.
var ErrInvariant = errors.New("heap invariant violated")

// ErrBusy is returned by Audit and Contents while operators are in flight.
var ErrBusy = errors.New("engine busy")

type auditWalk struct {
	e    *Engine
	live [][]cluster.Addr
	seen []map[uint32]bool
	out  []cluster.Entry
}

// Audit walks every partition tree and checks the heap invariants, the
// subtree counters, the child links and the free lists. The engine must be
// idle.
func (e *Engine) Audit() error {
	if e.Busy() {
		return ErrBusy
	}

	w := e.newWalk()
	for p := range e.counts {
		r := e.root.Entry(p)
		n, err := w.walk(1, cluster.Addr(p>>1), cluster.Side(p&1), r)
		if err != nil {
			return fmt.Errorf("partition %d: %w", p, err)
		}
		if r.Exists {
			n++
		}
		if n != e.counts[p] {
			return fmt.Errorf("%w: partition %d holds %d entries, %d admitted",
				ErrInvariant, p, n, e.counts[p])
		}
	}

	for i, l := range e.levels {
		if err := l.Store().Audit(w.live[i]); err != nil {
			return err
		}
	}
	return nil
}

// Contents returns the entries of partition p in ascending rank order. The
// engine must be idle.
func (e *Engine) Contents(p int) ([]cluster.Entry, error) {
	if e.Busy() {
		return nil, ErrBusy
	}
	if p < 0 || p >= len(e.counts) {
		return nil, fmt.Errorf("%w: %d", ErrBadPartition, p)
	}

	w := e.newWalk()
	r := e.root.Entry(p)
	if r.Exists {
		w.out = append(w.out, r)
	}
	if _, err := w.walk(1, cluster.Addr(p>>1), cluster.Side(p&1), r); err != nil {
		return nil, err
	}

	sort.SliceStable(w.out, func(i, j int) bool {
		return w.out[i].Less(w.out[j])
	})
	return w.out, nil
}

func (e *Engine) newWalk() *auditWalk {
	w := &auditWalk{
		e:    e,
		live: make([][]cluster.Addr, len(e.levels)),
		seen: make([]map[uint32]bool, len(e.levels)),
	}
	for i := range w.seen {
		w.seen[i] = make(map[uint32]bool)
	}
	return w
}

// walk checks the cluster at (addr, side) of level whose cached minimum in
// the parent is bound, and returns the number of entries stored in the
// cluster and below it.
func (w *auditWalk) walk(level int, addr cluster.Addr, side cluster.Side, bound cluster.Entry) (int, error) {
	lp := w.e.levels[level-1]
	geom := lp.Geometry()
	c := lp.Store().Peek(addr)[side]

	if err := c.CheckOrder(); err != nil {
		return 0, fmt.Errorf("%w: level %d %v/%v: %v", ErrInvariant, level, addr, side, err)
	}
	if !bound.Exists && !c.IsEmpty() {
		return 0, fmt.Errorf("%w: level %d %v/%v populated below an empty slot",
			ErrInvariant, level, addr, side)
	}
	for _, entry := range c.Entries {
		if entry.Exists && entry.Less(bound) {
			return 0, fmt.Errorf("%w: level %d %v/%v holds %v below parent minimum %v",
				ErrInvariant, level, addr, side, entry, bound)
		}
		if entry.Exists {
			w.out = append(w.out, entry)
		}
	}

	n := c.Used()
	if geom.Leaf {
		return n, nil
	}

	if geom.ChildDynamic {
		if err := w.visitLink(level, addr, side, c); err != nil {
			return 0, err
		}
	}

	last := cluster.Empty()
	if used := c.Used(); used > 0 {
		last = c.Entries[used-1]
	}

	var counts [2]int
	for _, cs := range []cluster.Side{cluster.Left, cluster.Right} {
		m := c.ChildMin(cs)
		if m.Exists && (m.Less(last) || m.Less(bound)) {
			return 0, fmt.Errorf("%w: level %d %v/%v caches child minimum %v below its own entries",
				ErrInvariant, level, addr, side, m)
		}
		if m.Exists {
			counts[cs]++
			w.out = append(w.out, m)
		}

		sub, err := w.walk(level+1, w.childAddr(geom.ChildDynamic, addr, side, c), cs, m)
		if err != nil {
			return 0, err
		}
		counts[cs] += sub
	}

	if diff := int32(counts[cluster.Left] - counts[cluster.Right]); diff != c.Diff {
		return 0, fmt.Errorf("%w: level %d %v/%v diff %d, subtrees differ by %d",
			ErrInvariant, level, addr, side, c.Diff, diff)
	}

	return n + counts[cluster.Left] + counts[cluster.Right], nil
}

func (w *auditWalk) childAddr(dynamic bool, addr cluster.Addr, side cluster.Side, c cluster.Cluster) cluster.Addr {
	if dynamic {
		return c.Next
	}
	return cluster.Addr(2*addr.Index() + uint32(side))
}

// visitLink checks the child link of a cluster whose children are
// dynamically allocated and records the child pair as live.
func (w *auditWalk) visitLink(level int, addr cluster.Addr, side cluster.Side, c cluster.Cluster) error {
	if c.Next.IsNull() {
		return nil
	}

	child := w.e.levels[level]
	if c.Next.Index() >= uint32(child.Geometry().Depth) {
		return fmt.Errorf("%w: level %d %v/%v links out of range address %v",
			ErrInvariant, level, addr, side, c.Next)
	}
	if child.Store().Peek(c.Next).IsEmpty() {
		return fmt.Errorf("%w: level %d %v/%v links empty pair %v",
			ErrInvariant, level, addr, side, c.Next)
	}

	seen := w.seen[level]
	if seen[c.Next.Index()] {
		return fmt.Errorf("%w: level %d pair %v linked twice", ErrInvariant, level+1, c.Next)
	}
	seen[c.Next.Index()] = true
	w.live[level] = append(w.live[level], c.Next)
	return nil
}
