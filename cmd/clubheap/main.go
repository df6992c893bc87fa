// Command clubheap drives the pipelined cluster heap with a synthetic
// workload and prints a timing report.
//
// Usage:
//
//	go run ./cmd/clubheap [flags]
//
// Example:
//
//	# Run 10000 uniform operators and check them against the emulator
//	go run ./cmd/clubheap -ops 10000 -validate
//
//	# Record every result to SQLite with a 64x4 cache in front of each level
//	go run ./cmd/clubheap -trace run.db -cache-sets 64 -cache-ways 4
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"go.uber.org/zap"

	"github.com/sarchlab/clubheap/emu"
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/core"
	"github.com/sarchlab/clubheap/timing/pipeline"
	"github.com/sarchlab/clubheap/timing/store"
	"github.com/sarchlab/clubheap/trace"
	"github.com/sarchlab/clubheap/workload"
)

var (
	configPath = flag.String("config", "", "Path to heap configuration JSON file")
	mixName    = flag.String("workload", string(workload.Uniform), "Workload mix: uniform, burst, steady or drain")
	ops        = flag.Int("ops", 1000, "Number of operators to issue")
	seed       = flag.Int64("seed", 1, "Workload random seed")
	validate   = flag.Bool("validate", false, "Check every result against the functional emulator")
	tracePath  = flag.String("trace", "", "Record retired results to this SQLite file")
	cacheSets  = flag.Int("cache-sets", 0, "Sets of the per-level cache model (0 disables it)")
	cacheWays  = flag.Int("cache-ways", 4, "Ways of the per-level cache model")
	verbose    = flag.Bool("v", false, "Verbose output")
)

// errMismatch is returned when the heap and the emulator disagree.
var errMismatch = errors.New("heap and emulator disagree")

type options struct {
	config    *config.Config
	mix       workload.Mix
	ops       int
	seed      int64
	validate  bool
	tracePath string
	cacheSets int
	cacheWays int
	verbose   bool
}

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

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	opts := options{
		config:    cfg,
		mix:       mix,
		ops:       *ops,
		seed:      *seed,
		validate:  *validate,
		tracePath: *tracePath,
		cacheSets: *cacheSets,
		cacheWays: *cacheWays,
		verbose:   *verbose,
	}
	if err := run(opts, log, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(opts options, log *zap.Logger, out io.Writer) error {
	engineOpts := []pipeline.EngineOption{pipeline.WithLogger(log)}
	if opts.cacheSets != 0 {
		cc := store.DefaultCacheConfig()
		cc.NumSets = opts.cacheSets
		cc.Associativity = opts.cacheWays
		engineOpts = append(engineOpts, pipeline.WithLevelCache(cc))
	}

	heap, err := pipeline.NewEngine(opts.config, engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to build heap: %w", err)
	}

	var coreOpts []core.Option
	coreOpts = append(coreOpts, core.WithLogger(log))
	var rec *trace.SQLiteRecorder
	if opts.tracePath != "" {
		rec, err = trace.NewSQLiteRecorder(opts.tracePath, trace.DefaultBatchSize)
		if err != nil {
			return err
		}
		defer rec.Close()
		coreOpts = append(coreOpts, core.WithRecorder(rec))
	}

	gen := workload.New(workload.Config{
		Mix:        opts.mix,
		Seed:       opts.seed,
		Partitions: opts.config.Partitions,
		MaxRank:    opts.config.MaxRank(),
		MaxMeta:    opts.config.MaxMeta(),
	}, opts.ops)
	reqs := gen.Generate(opts.ops)

	simEngine := sim.NewSerialEngine()
	comp := core.NewCore("ClubHeap", simEngine, 1*sim.GHz, heap, coreOpts...)
	comp.Submit(reqs...)
	if err := simEngine.Run(); err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	if err := comp.RecordErr(); err != nil {
		return err
	}
	if rec != nil {
		if err := rec.RecordStats(heap.Stats()); err != nil {
			return err
		}
		if err := rec.Close(); err != nil {
			return err
		}
	}

	if err := heap.Audit(); err != nil {
		return err
	}

	printReport(out, opts, heap)

	if opts.validate {
		if err := validateRun(opts.config, reqs, comp); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nValidation: %d operators match the emulator\n", len(reqs))
	}
	return nil
}

// validateRun replays reqs on the emulator and compares admission and
// popped ranks. Ties may pop different metadata, so only ranks are
// compared.
func validateRun(cfg *config.Config, reqs []pipeline.Request, comp *core.Core) error {
	em, err := emu.NewEmulator(cfg)
	if err != nil {
		return err
	}

	rejected := make(map[int]bool)
	for _, r := range comp.Rejected() {
		rejected[r.Index] = true
	}

	results := comp.Results()
	next := 0
	for i, req := range reqs {
		want := em.Step(req.Partition, req.Op)
		if (want.Err != nil) != rejected[i] {
			return fmt.Errorf("%w: operator %d admission: emulator %v, heap rejected=%v",
				errMismatch, i, want.Err, rejected[i])
		}
		if rejected[i] {
			continue
		}
		if next >= len(results) {
			return fmt.Errorf("%w: operator %d never retired", errMismatch, i)
		}
		got := results[next].Entry
		next++
		if got.Exists != want.Entry.Exists || (got.Exists && got.Rank != want.Entry.Rank) {
			return fmt.Errorf("%w: operator %d popped %v, emulator popped %v",
				errMismatch, i, got, want.Entry)
		}
	}
	return nil
}

func printReport(out io.Writer, opts options, heap *pipeline.Engine) {
	cfg := opts.config
	stats := heap.Stats()

	fmt.Fprintf(out, "ClubHeap - pipelined cluster heap\n")
	fmt.Fprintf(out, "Levels: %d  Partitions: %d  Cluster width: %d  Capacity: %d\n",
		cfg.Levels, cfg.Partitions, cfg.ClusterWidth, heap.Geometry().Capacity)
	fmt.Fprintf(out, "Entry: %d-bit partition, %d-bit rank, %d-bit meta\n",
		cfg.PartitionBits(), cfg.RankWidth, cfg.MetaWidth)
	fmt.Fprintf(out, "Workload: %s (%d operators, seed %d)\n", opts.mix, opts.ops, opts.seed)
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Total Cycles: %d\n", stats.Cycles)
	fmt.Fprintf(out, "Latency: %d cycles\n", heap.Latency())
	fmt.Fprintf(out, "Throughput: %.3f ops/cycle\n", stats.Throughput())
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Operators:\n")
	fmt.Fprintf(out, "  Issued:     %d\n", stats.Issued)
	fmt.Fprintf(out, "  Rejected:   %d\n", stats.Rejected)
	fmt.Fprintf(out, "  Pushes:     %d\n", stats.Pushes)
	fmt.Fprintf(out, "  Pops:       %d (%d empty)\n", stats.Pops, stats.EmptyPops)
	fmt.Fprintf(out, "  Replaces:   %d\n", stats.Replaces)
	fmt.Fprintf(out, "  Resident:   %d\n", heap.Size())
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Pipeline Events:\n")
	fmt.Fprintf(out, "  Bubbles:  %d\n", stats.Bubbles)
	fmt.Fprintf(out, "  Forwards: %d\n", stats.Forwards)
	fmt.Fprintf(out, "  Allocs:   %d\n", stats.Allocs)
	fmt.Fprintf(out, "  Frees:    %d\n", stats.Frees)

	if !opts.verbose && opts.cacheSets == 0 {
		return
	}

	fmt.Fprintf(out, "\nLevels:\n")
	for _, lg := range heap.Geometry().Levels {
		ls := heap.LevelStats(lg.Level)
		ss := heap.StoreStats(lg.Level)
		kind := "static"
		if lg.Dynamic {
			kind = "dynamic"
		}
		fmt.Fprintf(out, "  L%-2d %-7s pairs=%-6d peak=%-6d forwards=%-6d ops=%d",
			lg.Level, kind, lg.Depth, ss.PeakLive, ls.Forwards, ls.Ops)
		if cs, ok := heap.CacheStats(lg.Level); ok {
			fmt.Fprintf(out, " hit=%.1f%% evictions=%d", 100*cs.HitRate(), cs.Evictions)
		}
		fmt.Fprintf(out, "\n")
	}
}
