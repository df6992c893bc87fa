package pipeline_test

import (
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/emu"
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/pipeline"
	"github.com/sarchlab/clubheap/workload"
)

type geometryCase struct {
	levels, partitions, width, capacity int
}

func (g geometryCase) config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Levels = g.levels
	cfg.Partitions = g.partitions
	cfg.ClusterWidth = g.width
	cfg.Capacity = g.capacity
	return cfg
}

func ranks(entries []cluster.Entry) []cluster.Rank {
	out := make([]cluster.Rank, len(entries))
	for i, e := range entries {
		out[i] = e.Rank
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// checkAgainstEmulator runs reqs through both models in chunks, auditing the
// engine whenever it drains.
func checkAgainstEmulator(cfg *config.Config, reqs []pipeline.Request, chunk int) *pipeline.Engine {
	engine, err := pipeline.NewEngine(cfg)
	Expect(err).NotTo(HaveOccurred())
	ref, err := emu.NewEmulator(cfg)
	Expect(err).NotTo(HaveOccurred())

	var seq uint64
	for start := 0; start < len(reqs); start += chunk {
		end := min(start+chunk, len(reqs))
		batch := reqs[start:end]

		results, errs := engine.Run(batch)

		var want []cluster.Entry
		for i, req := range batch {
			step := ref.Step(req.Partition, req.Op)
			Expect(errs[i] == nil).To(Equal(step.Err == nil),
				"request %d: engine %v, emulator %v", start+i, errs[i], step.Err)
			if step.Err == nil {
				want = append(want, step.Entry)
			}
		}

		Expect(results).To(HaveLen(len(want)))
		for i, res := range results {
			Expect(res.Seq).To(Equal(seq))
			seq++
			Expect(res.Entry.Exists).To(Equal(want[i].Exists), "seq %d", res.Seq)
			if want[i].Exists {
				Expect(res.Entry.Rank).To(Equal(want[i].Rank), "seq %d", res.Seq)
			}
		}

		Expect(engine.Audit()).To(Succeed())
		for p := 0; p < cfg.Partitions; p++ {
			got, err := engine.Contents(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(ranks(got)).To(Equal(ranks(ref.Contents(p))), "partition %d", p)
			Expect(engine.Len(p)).To(Equal(ref.Len(p)))
		}
	}
	return engine
}

var _ = Describe("Engine against the functional emulator", func() {
	geometries := []TableEntry{
		Entry("default layout", geometryCase{4, 4, 4, 0}),
		Entry("dynamic deep levels", geometryCase{5, 16, 4, 96}),
		Entry("single partition, narrow clusters", geometryCase{6, 1, 2, 8}),
		Entry("several dynamic levels", geometryCase{6, 8, 3, 30}),
		Entry("wide clusters", geometryCase{3, 2, 8, 0}),
		Entry("single level", geometryCase{1, 2, 4, 0}),
	}

	for _, mix := range workload.Mixes() {
		DescribeTable(string(mix)+" mix",
			func(g geometryCase) {
				cfg := g.config()
				gen := workload.New(workload.Config{
					Mix:        mix,
					Seed:       int64(len(mix)) * 31,
					Partitions: cfg.Partitions,
					MaxRank:    40,
					MaxMeta:    cfg.MaxMeta(),
					Fill:       cfg.TotalCapacity() / 2,
				}, 1500)

				checkAgainstEmulator(cfg, gen.Generate(1500), 250)
			},
			geometries,
		)
	}

	It("should interleave pushes and pops that collide on level-one pairs", func() {
		cfg := config.DefaultConfig()
		cfg.Levels = 3
		cfg.Partitions = 2

		var reqs []pipeline.Request
		for i := 0; i < 300; i++ {
			p := i % 2
			switch i % 5 {
			case 0, 1, 2:
				reqs = append(reqs, push(p, uint64(i), cluster.Rank((i*37)%23)))
			case 3:
				reqs = append(reqs, pop(p))
			default:
				reqs = append(reqs, replace(p, uint64(i), cluster.Rank((i*11)%19)))
			}
		}

		engine := checkAgainstEmulator(cfg, reqs, 300)
		Expect(engine.Stats().Forwards).To(BeNumerically(">", 0))
	})
})
