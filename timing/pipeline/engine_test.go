package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/pipeline"
	"github.com/sarchlab/clubheap/timing/store"
)

func push(p int, meta uint64, rank cluster.Rank) pipeline.Request {
	return pipeline.Request{Partition: p, Op: cluster.PushOp(cluster.NewEntry(meta, rank))}
}

func pop(p int) pipeline.Request {
	return pipeline.Request{Partition: p, Op: cluster.PopOp()}
}

func replace(p int, meta uint64, rank cluster.Rank) pipeline.Request {
	return pipeline.Request{Partition: p, Op: cluster.ReplaceOp(cluster.NewEntry(meta, rank))}
}

// popped returns the entries returned by pop operators, in order.
func popped(results []pipeline.Result) []cluster.Entry {
	var out []cluster.Entry
	for _, r := range results {
		if r.Op.Pop {
			out = append(out, r.Entry)
		}
	}
	return out
}

func smallConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Levels = 1
	cfg.Partitions = 1
	cfg.ClusterWidth = 4
	return cfg
}

var _ = Describe("Engine", func() {
	var (
		cfg    *config.Config
		engine *pipeline.Engine
	)

	build := func() {
		var err error
		engine, err = pipeline.NewEngine(cfg)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		cfg = smallConfig()
		build()
	})

	Describe("NewEngine", func() {
		It("should reject an invalid config", func() {
			cfg.Partitions = 3

			_, err := pipeline.NewEngine(cfg)

			Expect(err).To(MatchError(config.ErrInvalidConfig))
		})

		It("should report the pipeline latency", func() {
			Expect(engine.Latency()).To(Equal(6))
		})
	})

	Describe("single partition", func() {
		It("should pop pushed entries in rank order", func() {
			results, errs := engine.Run([]pipeline.Request{
				push(0, 1, 5), push(0, 2, 3), push(0, 3, 8),
				pop(0), pop(0), pop(0), pop(0),
			})

			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			out := popped(results)
			Expect(out).To(HaveLen(4))
			Expect(out[0]).To(Equal(cluster.NewEntry(2, 3)))
			Expect(out[1]).To(Equal(cluster.NewEntry(1, 5)))
			Expect(out[2]).To(Equal(cluster.NewEntry(3, 8)))
			Expect(out[3].Exists).To(BeFalse())
			Expect(engine.Audit()).To(Succeed())
		})

		It("should return the pushed entry of a replace on an empty queue", func() {
			results, _ := engine.Run([]pipeline.Request{replace(0, 4, 10)})

			Expect(popped(results)).To(Equal([]cluster.Entry{cluster.NewEntry(4, 10)}))
			Expect(engine.Len(0)).To(Equal(0))
		})

		It("should retain and return equal ranks", func() {
			results, _ := engine.Run([]pipeline.Request{
				push(0, 1, 4), push(0, 2, 4), pop(0), pop(0), pop(0),
			})

			out := popped(results)
			Expect(out[0].Rank).To(Equal(cluster.Rank(4)))
			Expect(out[1].Rank).To(Equal(cluster.Rank(4)))
			Expect([]uint64{out[0].Meta, out[1].Meta}).To(ConsistOf(uint64(1), uint64(2)))
			Expect(out[2].Exists).To(BeFalse())
		})

		It("should keep the smaller of a replace and the minimum", func() {
			results, _ := engine.Run([]pipeline.Request{
				push(0, 1, 6), replace(0, 2, 2), replace(0, 3, 9), pop(0), pop(0),
			})

			out := popped(results)
			Expect(out[0].Rank).To(Equal(cluster.Rank(2)))
			Expect(out[1].Rank).To(Equal(cluster.Rank(6)))
			Expect(out[2].Rank).To(Equal(cluster.Rank(9)))
			Expect(out[3].Exists).To(BeFalse())
		})
	})

	Describe("timing", func() {
		It("should deliver a result exactly Latency cycles after issue", func() {
			Expect(engine.Issue(push(0, 0, 1))).To(Succeed())

			for i := 0; i < engine.Latency(); i++ {
				_, ok := engine.Tick()
				Expect(ok).To(BeFalse(), "cycle %d", i)
			}

			res, ok := engine.Tick()
			Expect(ok).To(BeTrue())
			Expect(res.Seq).To(Equal(uint64(0)))
			Expect(res.Issued).To(Equal(uint64(0)))
			Expect(engine.Cycle()).To(Equal(uint64(engine.Latency() + 1)))
		})

		DescribeTable("should take three cycles per level plus the root",
			func(levels int) {
				cfg = config.DefaultConfig()
				cfg.Levels = levels
				build()
				Expect(engine.Issue(pop(0))).To(Succeed())

				ticks := 0
				for {
					ticks++
					if _, ok := engine.Tick(); ok {
						break
					}
					Expect(ticks).To(BeNumerically("<", 100))
				}

				Expect(ticks).To(Equal(3*levels + cfg.RootLatency() + 1))
				Expect(engine.Latency()).To(Equal(3*levels + 3))
			},
			Entry("one level", 1),
			Entry("four levels", 4),
			Entry("eight levels", 8),
		)

		It("should sustain one operator per cycle", func() {
			cfg = config.DefaultConfig()
			build()

			var reqs []pipeline.Request
			for i := 0; i < 200; i++ {
				reqs = append(reqs, push(i%4, uint64(i), cluster.Rank(i*7%101)))
				reqs = append(reqs, pop(i%4))
			}

			results, _ := engine.Run(reqs)

			Expect(results).To(HaveLen(len(reqs)))
			Expect(engine.Stats().Cycles).To(Equal(uint64(len(reqs) + engine.Latency())))
			for i, r := range results {
				Expect(r.Seq).To(Equal(uint64(i)))
			}
		})

		It("should resolve back-to-back hazards by forwarding", func() {
			engine.Run([]pipeline.Request{push(0, 0, 5), push(0, 0, 3), push(0, 0, 8), pop(0)})

			Expect(engine.Stats().Forwards).To(BeNumerically(">", 0))
		})

		It("should see the previous operator's write to the same pair", func() {
			cfg = config.DefaultConfig()
			cfg.Levels = 2
			cfg.Partitions = 1
			cfg.ClusterWidth = 2

			var levelOne *store.ArrayStore
			var err error
			engine, err = pipeline.NewEngine(cfg, pipeline.WithStoreFactory(
				func(geom config.LevelGeometry) store.BlockStore {
					mem := store.NewArrayStore(geom.Depth, geom.Width)
					if geom.Level == 1 {
						levelOne = mem
					}
					return mem
				}))
			Expect(err).NotTo(HaveOccurred())

			// push(3) moves 5 into the level-one cluster holding 7; the pop
			// right behind it must promote 5 from that cluster, not 7.
			reqs := []pipeline.Request{
				push(0, 5, 5), push(0, 7, 7), push(0, 3, 3), pop(0), pop(0),
			}
			var results []pipeline.Result
			for _, req := range reqs {
				Expect(engine.Issue(req)).To(Succeed())
				if res, ok := engine.Tick(); ok {
					results = append(results, res)
				}
			}

			stale := levelOne.Read(0)[cluster.Left]
			Expect(stale.Entries[0].Rank).To(Equal(cluster.Rank(7)))
			Expect(stale.MinLC.Exists).To(BeFalse())

			results = append(results, engine.Drain()...)
			out := popped(results)
			Expect(out).To(HaveLen(2))
			Expect(out[0].Rank).To(Equal(cluster.Rank(3)))
			Expect(out[1].Rank).To(Equal(cluster.Rank(5)))

			Expect(engine.LevelStats(1).Forwards).To(BeNumerically(">=", 2))
			rest, err := engine.Contents(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rest).To(Equal([]cluster.Entry{cluster.NewEntry(7, 7)}))
			Expect(engine.Audit()).To(Succeed())
		})
	})

	Describe("admission", func() {
		It("should allow only one operator per cycle", func() {
			Expect(engine.Issue(push(0, 0, 1))).To(Succeed())
			Expect(engine.Issue(push(0, 0, 2))).To(MatchError(pipeline.ErrAlreadyIssued))

			engine.Tick()
			Expect(engine.Issue(push(0, 0, 2))).To(Succeed())
		})

		It("should reject a push into a full partition", func() {
			var reqs []pipeline.Request
			for i := 0; i < cfg.PartitionCapacity(); i++ {
				reqs = append(reqs, push(0, 0, cluster.Rank(i+1)))
			}
			reqs = append(reqs, push(0, 0, 1), replace(0, 0, 1))

			_, errs := engine.Run(reqs)

			Expect(errs[len(errs)-2]).To(MatchError(pipeline.ErrPartitionFull))
			Expect(errs[len(errs)-1]).NotTo(HaveOccurred())
			Expect(engine.Stats().Rejected).To(Equal(uint64(1)))
			Expect(engine.Audit()).To(Succeed())
		})

		It("should reject a push beyond the total capacity", func() {
			cfg.Partitions = 2
			cfg.Capacity = 3
			build()

			_, errs := engine.Run([]pipeline.Request{
				push(0, 0, 1), push(1, 0, 1), push(1, 0, 2), push(0, 0, 2),
			})

			Expect(errs[3]).To(MatchError(pipeline.ErrCapacityExceeded))
			Expect(engine.Size()).To(Equal(3))
		})

		It("should reject out-of-range fields", func() {
			Expect(engine.Issue(pop(1))).To(MatchError(pipeline.ErrBadPartition))
			Expect(engine.Issue(push(0, 0, 1<<16))).To(MatchError(pipeline.ErrRankOverflow))
			Expect(engine.Issue(push(0, 1<<32, 1))).To(MatchError(pipeline.ErrMetaOverflow))
		})

		It("should not count a pop of an empty partition", func() {
			engine.Run([]pipeline.Request{pop(0), push(0, 0, 1)})

			Expect(engine.Len(0)).To(Equal(1))
			Expect(engine.Stats().EmptyPops).To(Equal(uint64(1)))
		})
	})

	Describe("partitions", func() {
		BeforeEach(func() {
			cfg = config.DefaultConfig()
			build()
		})

		It("should keep partitions independent", func() {
			results, _ := engine.Run([]pipeline.Request{
				push(0, 0, 9), push(1, 1, 1), push(2, 2, 5), push(3, 3, 7),
				push(1, 4, 3), pop(0), pop(1), pop(2), pop(3), pop(1),
			})

			out := popped(results)
			Expect(out[0].Meta).To(Equal(uint64(0)))
			Expect(out[1].Meta).To(Equal(uint64(1)))
			Expect(out[2].Meta).To(Equal(uint64(2)))
			Expect(out[3].Meta).To(Equal(uint64(3)))
			Expect(out[4].Meta).To(Equal(uint64(4)))
		})

		It("should list partition contents in rank order", func() {
			engine.Run([]pipeline.Request{
				push(2, 0, 30), push(2, 0, 10), push(2, 0, 20), push(1, 0, 5),
			})

			entries, err := engine.Contents(2)

			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].Rank).To(Equal(cluster.Rank(10)))
			Expect(entries[2].Rank).To(Equal(cluster.Rank(30)))
		})
	})

	Describe("dynamic levels", func() {
		BeforeEach(func() {
			cfg = config.DefaultConfig()
			cfg.Levels = 5
			cfg.Partitions = 16
			cfg.Capacity = 96
			build()
		})

		It("should place the deepest level in a free-list arena", func() {
			geom := engine.Geometry()

			Expect(geom.Levels[4].Dynamic).To(BeTrue())
			Expect(geom.Levels[3].ChildDynamic).To(BeTrue())
		})

		It("should return every pair after draining", func() {
			var reqs []pipeline.Request
			for i := 0; i < 96; i++ {
				reqs = append(reqs, push(0, uint64(i), cluster.Rank(200-i)))
			}
			for i := 0; i < 96; i++ {
				reqs = append(reqs, pop(0))
			}

			results, errs := engine.Run(reqs)
			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}

			out := popped(results)
			for i, entry := range out {
				Expect(entry.Rank).To(Equal(cluster.Rank(105 + i)))
			}

			Expect(engine.Stats().Allocs).To(BeNumerically(">", 0))
			Expect(engine.Stats().Frees).To(Equal(engine.Stats().Allocs))
			Expect(engine.StoreStats(5).Frees).To(Equal(engine.StoreStats(5).Allocs))
			Expect(engine.Audit()).To(Succeed())
		})
	})

	Describe("Audit", func() {
		It("should refuse while operators are in flight", func() {
			Expect(engine.Issue(push(0, 0, 1))).To(Succeed())
			engine.Tick()

			Expect(engine.Audit()).To(MatchError(pipeline.ErrBusy))

			engine.Drain()
			Expect(engine.Audit()).To(Succeed())
		})
	})

	Describe("level cache", func() {
		It("should account accesses per level", func() {
			cfg = config.DefaultConfig()
			var err error
			engine, err = pipeline.NewEngine(cfg, pipeline.WithLevelCache(store.DefaultCacheConfig()))
			Expect(err).NotTo(HaveOccurred())

			engine.Run([]pipeline.Request{push(0, 0, 1), push(0, 0, 2), pop(0), pop(0)})

			stats, ok := engine.CacheStats(1)
			Expect(ok).To(BeTrue())
			Expect(stats.Reads).To(BeNumerically(">", 0))
			Expect(stats.Hits + stats.Misses).To(Equal(stats.Reads + stats.Writes))
		})

		It("should reject a cache without ways", func() {
			cc := store.DefaultCacheConfig()
			cc.Associativity = 0

			_, err := pipeline.NewEngine(config.DefaultConfig(), pipeline.WithLevelCache(cc))

			Expect(err).To(MatchError(store.ErrInvalidCacheConfig))
		})

		It("should report no cache when none is configured", func() {
			_, ok := engine.CacheStats(1)

			Expect(ok).To(BeFalse())
		})
	})

	Describe("Reset", func() {
		It("should empty the engine", func() {
			engine.Run([]pipeline.Request{push(0, 0, 1), push(0, 0, 2)})

			engine.Reset()

			Expect(engine.Size()).To(Equal(0))
			Expect(engine.Cycle()).To(Equal(uint64(0)))
			results, _ := engine.Run([]pipeline.Request{pop(0)})
			Expect(popped(results)[0].Exists).To(BeFalse())
			Expect(engine.Audit()).To(Succeed())
		})
	})
})
