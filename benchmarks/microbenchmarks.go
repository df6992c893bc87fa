package benchmarks

import (
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/workload"
)

// GetMicrobenchmarks returns the standard set of heap scenarios. Each one
// stresses a different part of the pipeline.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		uniformSmall(),
		burstyDeep(),
		steadyScheduler(),
		drainDynamic(),
		tieStorm(),
		manyPartitions(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		uniformSmall(),
		steadyScheduler(),
		drainDynamic(),
	}
}

func geometry(levels, partitions, width, capacity int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Levels = levels
	cfg.Partitions = partitions
	cfg.ClusterWidth = width
	cfg.Capacity = capacity
	return cfg
}

func uniformSmall() Benchmark {
	return Benchmark{
		Name:        "uniform_small",
		Description: "Random push/pop/replace on a 4-level static heap",
		Config:      geometry(4, 4, 4, 0),
		Workload:    workload.Config{Mix: workload.Uniform, Seed: 1},
		Ops:         4000,
	}
}

// Long push runs followed by long pop runs keep the same paths hot, so
// forwarding fires on most cycles.
func burstyDeep() Benchmark {
	return Benchmark{
		Name:        "burst_deep",
		Description: "Alternating push and pop bursts on an 8-level heap",
		Config:      geometry(8, 2, 4, 0),
		Workload:    workload.Config{Mix: workload.Burst, Seed: 2, BurstLength: 64},
		Ops:         4000,
	}
}

func steadyScheduler() Benchmark {
	return Benchmark{
		Name:        "steady_scheduler",
		Description: "Fill then replace, the dequeue-and-reinsert loop of a packet scheduler",
		Config:      geometry(6, 8, 4, 0),
		Workload:    workload.Config{Mix: workload.Steady, Seed: 3, Fill: 256},
		Ops:         4000,
	}
}

// Capacity far below the full tree makes the two deepest levels dynamic.
// The whole stream goes to partition 0 so it overflows into them.
func drainDynamic() Benchmark {
	return Benchmark{
		Name:        "drain_dynamic",
		Description: "Fill one partition to capacity then pop it empty on dynamically allocated deep levels",
		Config:      geometry(5, 16, 4, 96),
		Workload:    workload.Config{Mix: workload.Drain, Seed: 4, Partitions: 1},
		Ops:         192,
	}
}

func tieStorm() Benchmark {
	return Benchmark{
		Name:        "tie_storm",
		Description: "Uniform mix over eight distinct ranks",
		Config:      geometry(5, 2, 3, 0),
		Workload:    workload.Config{Mix: workload.Uniform, Seed: 5, MaxRank: 7},
		Ops:         3000,
	}
}

func manyPartitions() Benchmark {
	return Benchmark{
		Name:        "many_partitions",
		Description: "Uniform mix spread over 64 partitions",
		Config:      geometry(4, 64, 2, 0),
		Workload:    workload.Config{Mix: workload.Uniform, Seed: 6},
		Ops:         4000,
	}
}
