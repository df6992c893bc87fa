package store_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/store"
)

func livePair(width int, rank cluster.Rank) cluster.Pair {
	p := cluster.NewPair(width)
	p[cluster.Left].Entries[0] = cluster.NewEntry(0, rank)
	return p
}

var _ = Describe("LevelStore", func() {
	Context("dynamic level", func() {
		var (
			geom config.LevelGeometry
			s    *store.LevelStore
		)

		BeforeEach(func() {
			geom = config.LevelGeometry{
				Level:        3,
				Width:        3,
				Dynamic:      true,
				ChildDynamic: true,
				Depth:        4,
			}
			s = store.NewLevelStore(geom, store.NewArrayStore(geom.Depth, geom.Width))
		})

		It("should link every pair into the free list", func() {
			Expect(s.FreeList()).To(Equal([]cluster.Addr{0, 1, 2, 3}))
			Expect(s.Audit(nil)).To(Succeed())
		})

		It("should allocate from the head for a push to a null address", func() {
			pair, actual, allocated := s.Read(cluster.NullAddr, true)

			Expect(allocated).To(BeTrue())
			Expect(actual).To(Equal(cluster.Addr(0)))
			Expect(pair.IsEmpty()).To(BeTrue())
			Expect(pair[cluster.Left].Next.IsNull()).To(BeTrue())
			Expect(s.Live()).To(Equal(1))
			Expect(s.FreeList()).To(Equal([]cluster.Addr{1, 2, 3}))
		})

		It("should not allocate without a push", func() {
			pair, actual, allocated := s.Read(cluster.NullAddr, false)

			Expect(allocated).To(BeFalse())
			Expect(actual.IsNull()).To(BeTrue())
			Expect(pair.IsEmpty()).To(BeTrue())
			Expect(s.Live()).To(Equal(0))
		})

		It("should update, then free, a live pair", func() {
			_, a, _ := s.Read(cluster.NullAddr, true)
			_, b, _ := s.Read(cluster.NullAddr, true)

			p := livePair(3, 7)
			p[cluster.Left].Next = 2
			s.Write(a, p)
			s.Write(b, livePair(3, 8))

			got, actual, _ := s.Read(a, false)
			Expect(actual).To(Equal(a))
			Expect(got[cluster.Left].Entries[0].Rank).To(Equal(cluster.Rank(7)))
			Expect(got[cluster.Left].Next).To(Equal(cluster.Addr(2)))
			Expect(s.Audit([]cluster.Addr{a, b})).To(Succeed())

			s.Write(a, cluster.NewPair(3))

			Expect(s.Live()).To(Equal(1))
			Expect(s.FreeList()[0]).To(Equal(a))
			Expect(s.Stats().Frees).To(Equal(uint64(1)))
			Expect(s.Audit([]cluster.Addr{b})).To(Succeed())
		})

		It("should hand a just-freed pair to the next allocation", func() {
			_, a, _ := s.Read(cluster.NullAddr, true)
			_, b, _ := s.Read(cluster.NullAddr, true)
			s.Write(a, livePair(3, 4))
			s.Write(b, livePair(3, 5))
			Expect(s.FreeList()).To(Equal([]cluster.Addr{2, 3}))

			// Commit frees b, then a fetch later in the same cycle allocates.
			s.Write(b, cluster.NewPair(3))
			pair, actual, allocated := s.Read(cluster.NullAddr, true)

			Expect(allocated).To(BeTrue())
			Expect(actual).To(Equal(b))
			Expect(pair.IsEmpty()).To(BeTrue())
			Expect(s.FreeList()).To(Equal([]cluster.Addr{2, 3}))
			Expect(s.Stats().Allocs).To(Equal(uint64(3)))
			Expect(s.Stats().Frees).To(Equal(uint64(1)))
			Expect(s.Audit([]cluster.Addr{a, b})).To(Succeed())
		})

		It("should ignore an empty write to a null address", func() {
			s.Write(cluster.NullAddr, cluster.NewPair(3))

			Expect(s.Audit(nil)).To(Succeed())
		})

		It("should panic on a live write to a null address", func() {
			Expect(func() { s.Write(cluster.NullAddr, livePair(3, 1)) }).To(Panic())
		})

		It("should panic when the free list runs dry", func() {
			for i := 0; i < geom.Depth; i++ {
				s.Read(cluster.NullAddr, true)
			}

			Expect(func() { s.Read(cluster.NullAddr, true) }).To(Panic())
		})

		It("should detect leaked and doubly owned addresses", func() {
			_, a, _ := s.Read(cluster.NullAddr, true)
			s.Write(a, livePair(3, 1))

			Expect(s.Audit(nil)).To(MatchError(store.ErrAllocatorCorrupt))
			Expect(s.Audit([]cluster.Addr{a, a})).To(MatchError(store.ErrAllocatorCorrupt))
			Expect(s.Audit([]cluster.Addr{1})).To(MatchError(store.ErrAllocatorCorrupt))
		})

		It("should rebuild the free list on reset", func() {
			s.Read(cluster.NullAddr, true)
			s.Reset()

			Expect(s.Live()).To(Equal(0))
			Expect(s.FreeList()).To(HaveLen(4))
		})
	})

	Context("dynamic leaf level", func() {
		It("should keep the free list in entry metadata", func() {
			geom := config.LevelGeometry{Level: 4, Width: 2, Leaf: true, Dynamic: true, Depth: 3}
			s := store.NewLevelStore(geom, store.NewArrayStore(geom.Depth, geom.Width))

			_, a, _ := s.Read(cluster.NullAddr, true)
			s.Write(a, livePair(2, 5))
			_, b, _ := s.Read(cluster.NullAddr, true)

			Expect(b).To(Equal(cluster.Addr(1)))
			got := s.Peek(a)
			Expect(got[cluster.Left].Entries[0].Rank).To(Equal(cluster.Rank(5)))
			Expect(got[cluster.Left].Next.IsNull()).To(BeTrue())

			s.Write(a, cluster.NewPair(2))
			Expect(s.FreeList()).To(Equal([]cluster.Addr{a, 2}))
		})
	})

	Context("static level", func() {
		var s *store.LevelStore

		BeforeEach(func() {
			geom := config.LevelGeometry{Level: 1, Width: 3, StaticPairs: 2, Depth: 2}
			s = store.NewLevelStore(geom, store.NewArrayStore(2, 3))
		})

		It("should address pairs directly and drop the child link", func() {
			p := livePair(3, 4)
			p[cluster.Left].Next = 1
			p[cluster.Left].Diff = 1
			s.Write(1, p)

			got, actual, allocated := s.Read(1, true)

			Expect(allocated).To(BeFalse())
			Expect(actual).To(Equal(cluster.Addr(1)))
			Expect(got[cluster.Left].Entries[0].Rank).To(Equal(cluster.Rank(4)))
			Expect(got[cluster.Left].Diff).To(Equal(int32(1)))
			Expect(got[cluster.Left].Next.IsNull()).To(BeTrue())
		})

		It("should keep an emptied pair in place", func() {
			s.Write(0, livePair(3, 4))
			s.Write(0, cluster.NewPair(3))

			Expect(s.Peek(0).IsEmpty()).To(BeTrue())
			Expect(s.Stats().Frees).To(BeZero())
		})

		It("should panic on a null address", func() {
			Expect(func() { s.Read(cluster.NullAddr, true) }).To(Panic())
		})
	})

	It("should refuse a block store that is too shallow", func() {
		geom := config.LevelGeometry{Level: 2, Width: 3, Depth: 8}

		Expect(func() { store.NewLevelStore(geom, store.NewArrayStore(4, 3)) }).To(Panic())
	})
})
