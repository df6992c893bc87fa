package workload_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clubheap/workload"
)

var _ = Describe("Generator", func() {
	It("should be deterministic for a seed", func() {
		cfg := workload.Config{Mix: workload.Uniform, Seed: 7, Partitions: 4, MaxRank: 100}

		a := workload.New(cfg, 200).Generate(200)
		b := workload.New(cfg, 200).Generate(200)

		Expect(a).To(Equal(b))
	})

	It("should stay within the configured ranges", func() {
		cfg := workload.Config{Mix: workload.Uniform, Seed: 1, Partitions: 4, MaxRank: 9, MaxMeta: 15}

		for _, req := range workload.New(cfg, 500).Generate(500) {
			Expect(req.Partition).To(BeNumerically("<", 4))
			if req.Op.Push.Exists {
				Expect(uint64(req.Op.Push.Rank)).To(BeNumerically("<=", 9))
				Expect(req.Op.Push.Meta).To(BeNumerically("<=", 15))
			}
		}
	})

	It("should alternate runs in the burst mix", func() {
		cfg := workload.Config{Mix: workload.Burst, Partitions: 1, MaxRank: 10, BurstLength: 3}

		reqs := workload.New(cfg, 12).Generate(12)

		for i, req := range reqs {
			if (i/3)%2 == 0 {
				Expect(req.Op.IsPurePush()).To(BeTrue(), "op %d", i)
			} else {
				Expect(req.Op.IsPurePop()).To(BeTrue(), "op %d", i)
			}
		}
	})

	It("should fill and then replace in the steady mix", func() {
		cfg := workload.Config{Mix: workload.Steady, Partitions: 2, MaxRank: 10, Fill: 5}

		reqs := workload.New(cfg, 10).Generate(10)

		for _, req := range reqs[:5] {
			Expect(req.Op.IsPurePush()).To(BeTrue())
		}
		for _, req := range reqs[5:] {
			Expect(req.Op.Pop).To(BeTrue())
			Expect(req.Op.Push.Exists).To(BeTrue())
		}
	})

	It("should push then pop in the drain mix", func() {
		cfg := workload.Config{Mix: workload.Drain, Partitions: 1, MaxRank: 10}

		reqs := workload.New(cfg, 8).Generate(8)

		for _, req := range reqs[:4] {
			Expect(req.Op.IsPurePush()).To(BeTrue())
		}
		for _, req := range reqs[4:] {
			Expect(req.Op.IsPurePop()).To(BeTrue())
		}
	})

	DescribeTable("ParseMix",
		func(name string, ok bool) {
			m, err := workload.ParseMix(name)
			if ok {
				Expect(err).NotTo(HaveOccurred())
				Expect(string(m)).To(Equal(name))
			} else {
				Expect(err).To(MatchError(workload.ErrUnknownMix))
			}
		},
		Entry("uniform", "uniform", true),
		Entry("burst", "burst", true),
		Entry("steady", "steady", true),
		Entry("drain", "drain", true),
		Entry("unknown", "zipf", false),
	)
})
