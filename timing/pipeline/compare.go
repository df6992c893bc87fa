package pipeline

import "github.com/sarchlab/clubheap/cluster"

// CompareResult is the outcome of applying one operator to one cluster.
type CompareResult struct {
	// Cluster is the updated cluster. On a pop that pulled up a child
	// minimum, the cached minimum at ChildSide is stale until the child
	// promotes its replacement.
	Cluster cluster.Cluster

	// ChildSide is the child the forwarded operator targets.
	ChildSide cluster.Side

	// Forward is the operator for the child level. Nop when the child is
	// not involved.
	Forward cluster.Operator

	// Promoted is the entry leaving the cluster upward on a pop.
	Promoted      cluster.Entry
	PromotedValid bool

	// Overflow is set when a push spills out of a leaf.
	Overflow bool
}

// CompareUpdate applies op to c. The comparisons against every slot and the
// smaller child minimum are independent, and the result for each slot is a
// select over its own comparison and its neighbours'.
func CompareUpdate(op cluster.Operator, c cluster.Cluster, leaf bool) CompareResult {
	out := CompareResult{
		Cluster:  c.Clone(),
		Forward:  cluster.Nop(),
		Promoted: cluster.Empty(),
	}
	if op.IsNop() {
		return out
	}

	n := c.Width()
	p := op.Push
	e := c.Entries
	next := out.Cluster.Entries

	cmin, cside := cluster.Empty(), cluster.Left
	if !leaf {
		cmin, cside = c.SmallerChild()
	}

	cmp := make([]bool, n+1)
	for i := 0; i < n; i++ {
		cmp[i] = p.Less(e[i])
	}
	cmp[n] = p.Less(cmin)

	if op.Pop {
		comparePop(&out, e, next, cmp, p, cmin, cside)
		return out
	}

	comparePush(&out, e, next, cmp, p, leaf)
	return out
}

// comparePop extracts the minimum of the cluster and p, shifting the
// entries left and pulling the smaller child minimum into the last slot.
func comparePop(
	out *CompareResult,
	e, next []cluster.Entry,
	cmp []bool,
	p, cmin cluster.Entry,
	cside cluster.Side,
) {
	n := len(e)
	out.PromotedValid = true
	if cmp[0] {
		out.Promoted = p
	} else {
		out.Promoted = e[0]
	}

	for i := 0; i < n; i++ {
		switch {
		case cmp[i]:
			next[i] = e[i]
		case cmp[i+1]:
			next[i] = p
		case i+1 < n:
			next[i] = e[i+1]
		default:
			next[i] = cmin
		}
	}

	if cmp[n] || !cmin.Exists {
		return
	}

	// The child minimum moved up, so the child must pop and absorb p.
	out.ChildSide = cside
	out.Forward = cluster.Operator{Push: p, Pop: true}
	if !p.Exists {
		if cside == cluster.Left {
			out.Cluster.Diff--
		} else {
			out.Cluster.Diff++
		}
	}
}

// comparePush inserts p in order and sends the evicted entry to the
// lighter child.
func comparePush(
	out *CompareResult,
	e, next []cluster.Entry,
	cmp []bool,
	p cluster.Entry,
	leaf bool,
) {
	n := len(e)
	for i := 0; i < n; i++ {
		switch {
		case !cmp[i]:
			next[i] = e[i]
		case i == 0 || !cmp[i-1]:
			next[i] = p
		default:
			next[i] = e[i-1]
		}
	}

	evicted := p
	if cmp[n-1] {
		evicted = e[n-1]
	}
	if !evicted.Exists {
		return
	}
	if leaf {
		out.Overflow = true
		return
	}

	side := cluster.Left
	if out.Cluster.Diff > 0 {
		side = cluster.Right
	}
	if side == cluster.Left {
		out.Cluster.Diff++
	} else {
		out.Cluster.Diff--
	}
	out.ChildSide = side

	m := out.Cluster.ChildMin(side)
	if evicted.Less(m) {
		out.Cluster.SetChildMin(side, evicted)
		if m.Exists {
			out.Forward = cluster.PushOp(m)
		}
		return
	}
	out.Forward = cluster.PushOp(evicted)
}

// RootResult is the outcome of applying one operator to a partition root.
type RootResult struct {
	// Root is the new partition minimum. After a pop that pulled from level
	// one it is stale until level one promotes the replacement.
	Root cluster.Entry

	// Popped is the entry returned to the caller.
	Popped cluster.Entry

	// Forward is the operator for the level-one cluster of the partition.
	Forward cluster.Operator
}

// CompareRoot applies op to the partition minimum r.
func CompareRoot(op cluster.Operator, r cluster.Entry) RootResult {
	out := RootResult{Root: r, Popped: cluster.Empty(), Forward: cluster.Nop()}
	p := op.Push
	cmp := p.Less(r)

	switch {
	case op.Pop && cmp:
		out.Popped = p
	case op.Pop:
		out.Popped = r
		if r.Exists {
			out.Forward = cluster.Operator{Push: p, Pop: true}
		}
	case !p.Exists:
	case cmp:
		out.Root = p
		if r.Exists {
			out.Forward = cluster.PushOp(r)
		}
	default:
		out.Forward = cluster.PushOp(p)
	}
	return out
}
