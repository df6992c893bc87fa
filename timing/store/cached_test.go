package store_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/store"
)

var _ = Describe("CachedStore", func() {
	var (
		inner *store.ArrayStore
		s     *store.CachedStore
	)

	BeforeEach(func() {
		inner = store.NewArrayStore(16, 2)
		s = store.NewCachedStore(store.CacheConfig{
			NumSets:       2,
			Associativity: 2,
			HitLatency:    1,
			MissLatency:   10,
		}, inner)
	})

	It("should miss first and hit afterwards", func() {
		s.Read(3)
		s.Read(3)

		stats := s.Stats()
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(1)))
		Expect(stats.Cycles).To(Equal(uint64(11)))
		Expect(stats.HitRate()).To(BeNumerically("~", 0.5))
	})

	It("should write through to the inner store", func() {
		p := cluster.NewPair(2)
		p[cluster.Right].Entries[0] = cluster.NewEntry(9, 1)

		s.Write(5, p)

		Expect(inner.Read(5)[cluster.Right].Entries[0].Meta).To(Equal(uint64(9)))
		Expect(s.Read(5)).To(Equal(p))
		Expect(s.Stats().Hits).To(Equal(uint64(1)))
	})

	It("should evict the least recently used pair of a set", func() {
		// Indices 0, 2 and 4 share a set of two ways.
		s.Read(0)
		s.Read(2)
		s.Read(0)
		s.Read(4)
		s.Read(0)
		s.Read(2)

		stats := s.Stats()
		Expect(stats.Evictions).To(Equal(uint64(2)))
		Expect(stats.Hits).To(Equal(uint64(2)))
		Expect(stats.Misses).To(Equal(uint64(4)))
	})

	It("should forget residency on reset", func() {
		s.Read(1)
		s.Reset()
		s.Read(1)

		Expect(s.Stats().Misses).To(Equal(uint64(1)))
		Expect(s.Stats().Reads).To(Equal(uint64(1)))
		Expect(s.Depth()).To(Equal(16))
	})

	DescribeTable("should reject a cache without sets or ways",
		func(sets, ways int) {
			cc := store.CacheConfig{NumSets: sets, Associativity: ways}

			Expect(cc.Validate()).To(MatchError(store.ErrInvalidCacheConfig))
			Expect(func() { store.NewCachedStore(cc, store.NewArrayStore(4, 3)) }).To(Panic())
		},
		Entry("no ways", 64, 0),
		Entry("no sets", 0, 4),
		Entry("negative ways", 4, -1),
	)

	It("should accept the default cache", func() {
		Expect(store.DefaultCacheConfig().Validate()).To(Succeed())
	})
})
