package store

import (
	"errors"
	"fmt"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/config"
)

// ErrAllocatorCorrupt is returned by Audit when the free list and the live
// set do not partition the address space.
var ErrAllocatorCorrupt = errors.New("allocator corrupt")

// Stats holds level store statistics.
type Stats struct {
	Reads    uint64
	Writes   uint64
	Allocs   uint64
	Frees    uint64
	PeakLive int
}

// LevelStore owns the block memory of one level. Dynamic levels manage an
// index arena with an intrusive free list; static levels are flat.
type LevelStore struct {
	geom  config.LevelGeometry
	mem   BlockStore
	head  cluster.Addr
	live  int
	stats Stats
}

// NewLevelStore creates the store for one level on top of mem and links
// every pair into the free list.
func NewLevelStore(geom config.LevelGeometry, mem BlockStore) *LevelStore {
	if mem.Depth() < geom.Depth {
		panic(fmt.Sprintf("level %d: block store holds %d pairs, geometry needs %d",
			geom.Level, mem.Depth(), geom.Depth))
	}
	s := &LevelStore{geom: geom, mem: mem}
	s.Reset()
	return s
}

// Geometry returns the level layout.
func (s *LevelStore) Geometry() config.LevelGeometry {
	return s.geom
}

// Reset clears every pair and rebuilds the free list in address order.
func (s *LevelStore) Reset() {
	s.live = 0
	s.stats = Stats{}
	s.head = cluster.NullAddr
	for i := 0; i < s.geom.Depth; i++ {
		p := cluster.NewPair(s.geom.Width)
		if s.geom.Dynamic {
			next := cluster.NullAddr
			if i+1 < s.geom.Depth {
				next = cluster.Addr(i + 1)
			}
			s.stashLink(&p, next)
		}
		s.mem.Write(uint32(i), p)
	}
	if s.geom.Dynamic && s.geom.Depth > 0 {
		s.head = 0
	}
}

// Read fetches the pair at addr and returns it with the actual address.
// A null addr on a dynamic level allocates when alloc is set, taking the
// free-list head; the new head is the successor link stored in the node
// just read. A null addr without alloc returns an empty pair at the null
// address.
func (s *LevelStore) Read(addr cluster.Addr, alloc bool) (cluster.Pair, cluster.Addr, bool) {
	s.stats.Reads++

	if !s.geom.Dynamic {
		if addr.IsNull() {
			panic(fmt.Sprintf("level %d: null address on a static level", s.geom.Level))
		}
		return s.unproject(s.mem.Read(addr.Index())), addr, false
	}

	if !addr.IsNull() {
		return s.unproject(s.mem.Read(addr.Index())), addr, false
	}

	if !alloc {
		return cluster.NewPair(s.geom.Width), cluster.NullAddr, false
	}

	actual := s.head
	if actual.IsNull() {
		panic(fmt.Sprintf("level %d: free list exhausted with %d live pairs",
			s.geom.Level, s.live))
	}
	raw := s.mem.Read(actual.Index())
	s.head = s.link(raw)
	s.live++
	s.stats.Allocs++
	if s.live > s.stats.PeakLive {
		s.stats.PeakLive = s.live
	}

	return cluster.NewPair(s.geom.Width), actual, true
}

// Write commits p at the actual address.
//
//	address valid | data non-empty | action
//	no            | no             | no-op
//	no            | yes            | allocation already happened at Read; fatal
//	yes           | no             | free: push the address onto the free list
//	yes           | yes            | in-place update
func (s *LevelStore) Write(actual cluster.Addr, p cluster.Pair) {
	if !s.geom.Dynamic {
		s.stats.Writes++
		s.mem.Write(actual.Index(), s.project(p))
		return
	}

	empty := p.IsEmpty()
	switch {
	case actual.IsNull() && empty:
		return
	case actual.IsNull():
		panic(fmt.Sprintf("level %d: live pair written to a null address", s.geom.Level))
	case empty:
		s.free(actual)
	default:
		s.stats.Writes++
		s.mem.Write(actual.Index(), s.project(p))
	}
}

func (s *LevelStore) free(addr cluster.Addr) {
	p := cluster.NewPair(s.geom.Width)
	s.stashLink(&p, s.head)
	s.mem.Write(addr.Index(), p)
	s.head = addr
	s.live--
	s.stats.Writes++
	s.stats.Frees++
}

// Peek returns the pair at addr without touching statistics or the
// allocator. A null addr yields an empty pair.
func (s *LevelStore) Peek(addr cluster.Addr) cluster.Pair {
	if addr.IsNull() {
		return cluster.NewPair(s.geom.Width)
	}
	return s.unproject(s.mem.Read(addr.Index()))
}

// Live returns the number of allocated pairs of a dynamic level.
func (s *LevelStore) Live() int {
	return s.live
}

// Stats returns store statistics.
func (s *LevelStore) Stats() Stats {
	return s.stats
}

// FreeList walks the free list from its head. The walk stops after Depth
// steps so a cycle cannot hang it.
func (s *LevelStore) FreeList() []cluster.Addr {
	var out []cluster.Addr
	for a := s.head; !a.IsNull() && len(out) <= s.geom.Depth; {
		out = append(out, a)
		a = s.link(s.mem.Read(a.Index()))
	}
	return out
}

// Audit checks that the free list and live together cover every address of
// a dynamic level exactly once.
func (s *LevelStore) Audit(live []cluster.Addr) error {
	if !s.geom.Dynamic {
		return nil
	}

	seen := make(map[uint32]string, s.geom.Depth)
	free := s.FreeList()
	if len(free) > s.geom.Depth {
		return fmt.Errorf("%w: level %d free list has a cycle", ErrAllocatorCorrupt, s.geom.Level)
	}
	for _, a := range free {
		if a.Index() >= uint32(s.geom.Depth) {
			return fmt.Errorf("%w: level %d free address %v out of range", ErrAllocatorCorrupt, s.geom.Level, a)
		}
		if _, dup := seen[a.Index()]; dup {
			return fmt.Errorf("%w: level %d address %v on the free list twice", ErrAllocatorCorrupt, s.geom.Level, a)
		}
		seen[a.Index()] = "free"
	}
	for _, a := range live {
		if owner, dup := seen[a.Index()]; dup {
			return fmt.Errorf("%w: level %d live address %v already %s", ErrAllocatorCorrupt, s.geom.Level, a, owner)
		}
		seen[a.Index()] = "live"
	}
	if len(seen) != s.geom.Depth {
		return fmt.Errorf("%w: level %d leaks %d addresses", ErrAllocatorCorrupt, s.geom.Level, s.geom.Depth-len(seen))
	}
	if len(live) != s.live {
		return fmt.Errorf("%w: level %d counts %d live pairs, found %d",
			ErrAllocatorCorrupt, s.geom.Level, s.live, len(live))
	}
	return nil
}

// stashLink stores a free-list successor in an empty pair. Leaf pairs have
// no link field, so the link rides in the metadata of the first entry.
func (s *LevelStore) stashLink(p *cluster.Pair, next cluster.Addr) {
	if s.geom.Leaf {
		e := cluster.Empty()
		e.Meta = uint64(next)
		p[cluster.Left].Entries[0] = e
		return
	}
	p[cluster.Left].Next = next
}

func (s *LevelStore) link(p cluster.Pair) cluster.Addr {
	if s.geom.Leaf {
		return cluster.Addr(p[cluster.Left].Entries[0].Meta)
	}
	return p[cluster.Left].Next
}

// project strips the fields a level does not store: leaf clusters keep only
// entries, and clusters whose children are statically addressed drop Next.
func (s *LevelStore) project(p cluster.Pair) cluster.Pair {
	var out cluster.Pair
	for side := range p {
		c := p[side]
		switch {
		case s.geom.Leaf:
			out[side] = cluster.StaticCluster{
				Entries: c.Entries,
				MinLC:   cluster.Empty(),
				MinRC:   cluster.Empty(),
			}.ToDynamic(cluster.NullAddr)
		case !s.geom.ChildDynamic:
			out[side] = c.ToStatic().ToDynamic(cluster.NullAddr)
		default:
			out[side] = c.Clone()
		}
	}
	return out
}

// unproject turns a stored pair back into working clusters with empty
// payload left in unused fields.
func (s *LevelStore) unproject(p cluster.Pair) cluster.Pair {
	if s.geom.Leaf {
		for side := range p {
			p[side].MinLC = cluster.Empty()
			p[side].MinRC = cluster.Empty()
			p[side].Diff = 0
			p[side].Next = cluster.NullAddr
		}
	}
	return p
}
