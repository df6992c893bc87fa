package pipeline

import (
	"fmt"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/store"
)

// FetchStage reads the addressed pair from the level store, allocating a
// fresh pair when a push descends into a missing subtree.
type FetchStage struct {
	store *store.LevelStore
}

// NewFetchStage creates a new fetch stage.
func NewFetchStage(s *store.LevelStore) *FetchStage {
	return &FetchStage{store: s}
}

// Fetch reads the pair for the operator on port.
func (s *FetchStage) Fetch(port *DownPort) FetchLatch {
	if !port.Valid {
		return FetchLatch{}
	}
	pair, actual, allocated := s.store.Read(port.Addr, port.Op.IsPurePush())
	return FetchLatch{
		Valid:     true,
		Seq:       port.Seq,
		Op:        port.Op,
		Side:      port.Side,
		Requested: port.Addr,
		Actual:    actual,
		Allocated: allocated,
		Pair:      pair,
	}
}

// CompareStage applies an operator to the active cluster of a pair.
type CompareStage struct {
	geom config.LevelGeometry
}

// NewCompareStage creates a new compare stage.
func NewCompareStage(geom config.LevelGeometry) *CompareStage {
	return &CompareStage{geom: geom}
}

// CompareOutput is what the compare stage produces in one cycle.
type CompareOutput struct {
	Latch CompareLatch
	Up    UpPort
	Down  DownPort
}

// Compare applies the fetched operator to pair.
func (s *CompareStage) Compare(f *FetchLatch, pair cluster.Pair) CompareOutput {
	res := CompareUpdate(f.Op, pair[f.Side], s.geom.Leaf)
	if res.Overflow {
		panic(fmt.Sprintf("level %d: push overflowed a leaf cluster at %v", s.geom.Level, f.Actual))
	}
	pair[f.Side] = res.Cluster
	emptied := pair.IsEmpty()

	out := CompareOutput{
		Latch: CompareLatch{
			Valid:     true,
			Seq:       f.Seq,
			Actual:    f.Actual,
			Side:      f.Side,
			Pair:      pair,
			ChildSide: res.ChildSide,
			Forward:   res.Forward,
			Emptied:   emptied,
		},
		Up: UpPort{
			Valid:         true,
			Seq:           f.Seq,
			Actual:        f.Actual,
			Allocated:     f.Allocated,
			Promoted:      res.Promoted,
			PromotedValid: res.PromotedValid,
			Emptied:       emptied,
		},
	}

	if !s.geom.Leaf && !res.Forward.IsNop() {
		out.Down = DownPort{
			Valid: true,
			Seq:   f.Seq,
			Addr:  s.childAddr(f, res.Cluster),
			Side:  res.ChildSide,
			Op:    res.Forward,
		}
	}
	return out
}

// childAddr locates the child pair. Statically addressed children sit at
// 2a+side; dynamic ones are named by the cluster's link.
func (s *CompareStage) childAddr(f *FetchLatch, c cluster.Cluster) cluster.Addr {
	if s.geom.ChildDynamic {
		return c.Next
	}
	return cluster.Addr(2*f.Actual.Index() + uint32(f.Side))
}

// CommitStage folds the child's response into the pair.
type CommitStage struct {
	geom config.LevelGeometry
}

// NewCommitStage creates a new commit stage.
func NewCommitStage(geom config.LevelGeometry) *CommitStage {
	return &CommitStage{geom: geom}
}

// Commit returns the final pair for the latched operator. child is nil at
// the leaf level.
func (s *CommitStage) Commit(l *CompareLatch, child *UpPort) cluster.Pair {
	pair := l.Pair
	c := &pair[l.Side]

	if child != nil && child.Valid {
		if child.Seq != l.Seq {
			panic(fmt.Sprintf("level %d: child answered seq %d while committing seq %d",
				s.geom.Level, child.Seq, l.Seq))
		}
		if child.PromotedValid {
			c.SetChildMin(l.ChildSide, child.Promoted)
		}
		if s.geom.ChildDynamic {
			if child.Allocated {
				c.Next = child.Actual
			}
			if child.Emptied {
				c.Next = cluster.NullAddr
			}
		}
	}

	if s.geom.ChildDynamic && !c.MinLC.Exists && !c.MinRC.Exists {
		c.Next = cluster.NullAddr
	}

	if pair.IsEmpty() != l.Emptied {
		panic(fmt.Sprintf("level %d: pair %v emptiness changed during commit",
			s.geom.Level, l.Actual))
	}
	return pair
}

// WritebackStage writes committed pairs to the level store.
type WritebackStage struct {
	store *store.LevelStore
}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage(s *store.LevelStore) *WritebackStage {
	return &WritebackStage{store: s}
}

// Writeback stores pair at actual, freeing it when empty.
func (s *WritebackStage) Writeback(actual cluster.Addr, pair cluster.Pair) {
	s.store.Write(actual, pair)
}
