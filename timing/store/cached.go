package store

import (
	"errors"
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/clubheap/cluster"
)

// CacheConfig describes an on-chip cache placed in front of a level's block
// memory.
type CacheConfig struct {
	// NumSets is the number of sets.
	NumSets int
	// Associativity is the number of ways per set.
	Associativity int
	// HitLatency is the access time of a resident pair, in cycles.
	HitLatency uint64
	// MissLatency is the access time of a pair fetched from the backing
	// memory, in cycles.
	MissLatency uint64
}

// DefaultCacheConfig returns a small 4-way cache.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		NumSets:       64,
		Associativity: 4,
		HitLatency:    1,
		MissLatency:   10,
	}
}

// ErrInvalidCacheConfig is wrapped by every cache validation failure.
var ErrInvalidCacheConfig = errors.New("invalid cache config")

// Validate checks that the cache has at least one set and one way.
func (c CacheConfig) Validate() error {
	if c.NumSets < 1 {
		return fmt.Errorf("%w: num_sets must be >= 1, got %d", ErrInvalidCacheConfig, c.NumSets)
	}
	if c.Associativity < 1 {
		return fmt.Errorf("%w: associativity must be >= 1, got %d", ErrInvalidCacheConfig, c.Associativity)
	}
	return nil
}

// CacheStats holds cache residency statistics.
type CacheStats struct {
	Reads     uint64
	Writes    uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
	// Cycles is the accumulated access time under the configured latencies.
	Cycles uint64
}

// HitRate returns hits over accesses.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CachedStore tracks which pairs of a level would be resident in an on-chip
// cache. Data is written through to the inner store, so the cache never
// changes what a read returns; it only accounts for hits and misses.
type CachedStore struct {
	config    CacheConfig
	inner     BlockStore
	directory *akitacache.DirectoryImpl
	stats     CacheStats
}

// NewCachedStore wraps inner with a cache directory. config must pass
// Validate.
func NewCachedStore(config CacheConfig, inner BlockStore) *CachedStore {
	if err := config.Validate(); err != nil {
		panic(err.Error())
	}
	return &CachedStore{
		config: config,
		inner:  inner,
		directory: akitacache.NewDirectory(
			config.NumSets,
			config.Associativity,
			1,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Read returns the pair at index and records the access.
func (s *CachedStore) Read(index uint32) cluster.Pair {
	s.stats.Reads++
	s.access(uint64(index))
	return s.inner.Read(index)
}

// Write stores p at index and records the access.
func (s *CachedStore) Write(index uint32, p cluster.Pair) {
	s.stats.Writes++
	s.access(uint64(index))
	s.inner.Write(index, p)
}

// Depth returns the depth of the inner store.
func (s *CachedStore) Depth() int {
	return s.inner.Depth()
}

// Stats returns cache statistics.
func (s *CachedStore) Stats() CacheStats {
	return s.stats
}

// Reset invalidates every line and clears statistics.
func (s *CachedStore) Reset() {
	s.directory.Reset()
	s.stats = CacheStats{}
}

func (s *CachedStore) access(addr uint64) {
	block := s.directory.Lookup(0, addr)
	if block != nil && block.IsValid {
		s.stats.Hits++
		s.stats.Cycles += s.config.HitLatency
		s.directory.Visit(block)
		return
	}

	s.stats.Misses++
	s.stats.Cycles += s.config.MissLatency

	victim := s.directory.FindVictim(addr)
	if victim == nil {
		return
	}
	if victim.IsValid {
		s.stats.Evictions++
	}
	victim.Tag = addr
	victim.IsValid = true
	victim.IsDirty = false
	s.directory.Visit(victim)
}
