// Package store models the per-level storage of the heap: the block memory
// that holds sibling pairs and the allocator that manages it.
package store

import "github.com/sarchlab/clubheap/cluster"

// BlockStore is the dual-ported memory backing one level. Index is the
// address with the null marker stripped.
type BlockStore interface {
	// Read returns the pair stored at index.
	Read(index uint32) cluster.Pair
	// Write replaces the pair stored at index.
	Write(index uint32, p cluster.Pair)
	// Depth returns the number of addressable pairs.
	Depth() int
}

// ArrayStore is a flat BlockStore.
type ArrayStore struct {
	blocks []cluster.Pair
}

// NewArrayStore creates an ArrayStore of depth pairs, each holding empty
// clusters of width slots.
func NewArrayStore(depth, width int) *ArrayStore {
	blocks := make([]cluster.Pair, depth)
	for i := range blocks {
		blocks[i] = cluster.NewPair(width)
	}
	return &ArrayStore{blocks: blocks}
}

// Read returns a copy of the pair stored at index.
func (s *ArrayStore) Read(index uint32) cluster.Pair {
	return s.blocks[index].Clone()
}

// Write stores a copy of p at index.
func (s *ArrayStore) Write(index uint32, p cluster.Pair) {
	s.blocks[index] = p.Clone()
}

// Depth returns the number of pairs.
func (s *ArrayStore) Depth() int {
	return len(s.blocks)
}
