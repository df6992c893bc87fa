// Package main provides a profiling wrapper for ClubHeap to identify
// simulator hot spots.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/clubheap/emu"
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/pipeline"
	"github.com/sarchlab/clubheap/workload"
)

var (
	configPath = flag.String("config", "", "Path to heap configuration JSON file")
	functional = flag.Bool("functional", false, "Profile the functional emulator instead of the pipelined engine")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	duration   = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	ops        = flag.Int("ops", 1000000, "operators to issue")
	mixName    = flag.String("workload", string(workload.Uniform), "workload mix")
)

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading heap config: %v\n", err)
			os.Exit(1)
		}
	}
	mix, err := workload.ParseMix(*mixName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Generated up front so the profile only covers the simulator.
	reqs := workload.New(workload.Config{
		Mix:        mix,
		Seed:       1,
		Partitions: cfg.Partitions,
		MaxRank:    cfg.MaxRank(),
		MaxMeta:    cfg.MaxMeta(),
	}, *ops).Generate(*ops)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	start := time.Now()

	go func() {
		time.Sleep(*duration)
		fmt.Printf("\nTimeout reached after %v - stopping execution\n", *duration)
		os.Exit(2)
	}()

	var retired, cycles uint64
	if *functional {
		retired, err = runEmulationProfile(cfg, reqs)
	} else {
		retired, cycles, err = runTimingProfile(cfg, reqs)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	elapsed := time.Since(start)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Operators retired: %d\n", retired)
	if cycles > 0 {
		fmt.Printf("Simulated cycles: %d\n", cycles)
	}
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if retired > 0 {
		fmt.Printf("Operators/second: %.0f\n", float64(retired)/elapsed.Seconds())
	}
}

func runEmulationProfile(cfg *config.Config, reqs []pipeline.Request) (uint64, error) {
	em, err := emu.NewEmulator(cfg)
	if err != nil {
		return 0, err
	}
	for _, req := range reqs {
		em.Step(req.Partition, req.Op)
	}
	return em.Stats().Steps, nil
}

func runTimingProfile(cfg *config.Config, reqs []pipeline.Request) (uint64, uint64, error) {
	engine, err := pipeline.NewEngine(cfg)
	if err != nil {
		return 0, 0, err
	}
	engine.Run(reqs)
	stats := engine.Stats()
	return stats.Retired, stats.Cycles, nil
}
