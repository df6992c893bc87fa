package config

import "math/bits"

// LevelGeometry describes the storage layout of one level.
type LevelGeometry struct {
	// Level is the 1-based depth below the root.
	Level int

	// Width is the number of entry slots per cluster (K-1).
	Width int

	// Leaf is true for the deepest level, whose clusters have no children.
	Leaf bool

	// Dynamic is true when pairs are allocated from a free list instead of
	// being addressed from the parent address.
	Dynamic bool

	// ChildDynamic is true when the next level is dynamic, so this level's
	// clusters must store an explicit child link.
	ChildDynamic bool

	// StaticPairs is the number of pairs a flat layout needs.
	StaticPairs int

	// DynamicPairs is the number of pairs a free-list layout needs.
	DynamicPairs int

	// Depth is the number of pairs actually provisioned.
	Depth int

	// AddrBits is the width of a pair address at this level.
	AddrBits int
}

// Geometry is the per-level layout of an engine.
type Geometry struct {
	Levels            []LevelGeometry
	PartitionCapacity int
	Capacity          int
}

// Geometry derives the per-level layout. The static/dynamic crossover is
// computed once here and never changes at runtime.
//
// A live pair at level l >= 2 needs a full parent cluster (K-1 entries), the
// cached minimum in that parent and at least one entry of its own, so at most
// capacity/K pairs are live at once. Each in-flight operator may hold one
// more pair that it has allocated ahead of another operator's free.
func (c *Config) Geometry() Geometry {
	g := Geometry{
		PartitionCapacity: c.PartitionCapacity(),
		Capacity:          c.TotalCapacity(),
	}

	dynamicPairs := g.Capacity/c.ClusterWidth + c.Latency()
	for l := 1; l <= c.Levels; l++ {
		lg := LevelGeometry{
			Level:        l,
			Width:        c.ClusterWidth - 1,
			Leaf:         l == c.Levels,
			StaticPairs:  staticPairs(c.Partitions, l),
			DynamicPairs: dynamicPairs,
		}
		lg.Dynamic = l >= 2 && lg.DynamicPairs < lg.StaticPairs
		if lg.Dynamic {
			lg.Depth = lg.DynamicPairs
		} else {
			lg.Depth = lg.StaticPairs
		}
		lg.AddrBits = addrBits(lg.Depth)
		g.Levels = append(g.Levels, lg)
	}

	for i := 0; i+1 < len(g.Levels); i++ {
		g.Levels[i].ChildDynamic = g.Levels[i+1].Dynamic
	}

	return g
}

// staticPairs counts the pairs of level l in a flat layout. Level-1 pairs
// group partitions 2k and 2k+1; below that each cluster owns one child pair.
func staticPairs(partitions, level int) int {
	if level == 1 {
		if partitions < 2 {
			return 1
		}
		return partitions / 2
	}
	return partitions << (level - 2)
}

func addrBits(depth int) int {
	if depth <= 1 {
		return 1
	}
	return bits.Len(uint(depth - 1))
}

// StoragePairs is the number of pairs provisioned across all levels.
func (g Geometry) StoragePairs() int {
	total := 0
	for _, lg := range g.Levels {
		total += lg.Depth
	}
	return total
}
