// Package benchmarks provides the heap throughput harness: named workload
// scenarios run through the pipelined engine and reported side by side.
package benchmarks

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/sarchlab/clubheap/emu"
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/pipeline"
	"github.com/sarchlab/clubheap/timing/store"
	"github.com/sarchlab/clubheap/workload"
)

// BenchmarkResult is the outcome of one scenario on the engine.
type BenchmarkResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// SimulatedCycles counts engine ticks, pipeline fill and drain included
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// Retired is the number of completed operators
	Retired uint64 `json:"retired"`

	// Rejected is the number of operators refused at admission
	Rejected uint64 `json:"rejected"`

	// Throughput is retired operators per cycle
	Throughput float64 `json:"throughput"`

	// Forwards is the number of hazards resolved by forwarding
	Forwards uint64 `json:"forwards"`

	// Allocs and Frees count dynamic pair allocations
	Allocs uint64 `json:"allocs"`
	Frees  uint64 `json:"frees"`

	// EmptyPops is the number of pops that found the partition empty
	EmptyPops uint64 `json:"empty_pops"`

	// CacheHits/Misses (if cache enabled), summed over levels
	CacheHits   uint64 `json:"cache_hits,omitempty"`
	CacheMisses uint64 `json:"cache_misses,omitempty"`

	// Mismatches is the number of results that disagree with the emulator
	Mismatches int `json:"mismatches"`

	// WallTime covers Engine.Run only, not workload generation or validation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single workload scenario.
type Benchmark struct {
	// Name is the short key used in CSV and JSON reports
	Name string

	// Description is a one-line summary of the operator stream
	Description string

	// Config is the heap geometry
	Config *config.Config

	// Workload configures the operator stream. Partitions and rank bounds
	// default to the heap geometry.
	Workload workload.Config

	// Ops is the stream length
	Ops int
}

// HarnessConfig selects the cache model, validation and report sink.
type HarnessConfig struct {
	// EnableCache places a cache model in front of every level
	EnableCache bool

	// Cache is the cache geometry used when EnableCache is set
	Cache store.CacheConfig

	// Validate checks every result against the functional emulator
	Validate bool

	// Output receives printed reports; nil means os.Stdout
	Output io.Writer
}

// DefaultConfig enables the default level cache and emulator validation.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableCache: true,
		Cache:       store.DefaultCacheConfig(),
		Validate:    true,
		Output:      os.Stdout,
	}
}

// Harness runs scenarios in order, each on a fresh engine.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness returns a harness with no scenarios.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark appends one scenario.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks appends scenarios in order.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll runs every scenario and stops at the first one that fails to
// build, validate or audit. Results gathered so far are returned with the
// error.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return results, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	cfg := bench.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	var opts []pipeline.EngineOption
	if h.config.EnableCache {
		opts = append(opts, pipeline.WithLevelCache(h.config.Cache))
	}
	engine, err := pipeline.NewEngine(cfg, opts...)
	if err != nil {
		return BenchmarkResult{}, err
	}

	wc := bench.Workload
	if wc.Partitions == 0 {
		wc.Partitions = cfg.Partitions
	}
	if wc.MaxRank == 0 || wc.MaxRank > cfg.MaxRank() {
		wc.MaxRank = cfg.MaxRank()
	}
	if wc.MaxMeta == 0 || wc.MaxMeta > cfg.MaxMeta() {
		wc.MaxMeta = cfg.MaxMeta()
	}
	reqs := workload.New(wc, bench.Ops).Generate(bench.Ops)

	start := time.Now()
	results, errs := engine.Run(reqs)
	wallTime := time.Since(start)

	stats := engine.Stats()
	result := BenchmarkResult{
		Name:            bench.Name,
		Description:     bench.Description,
		SimulatedCycles: stats.Cycles,
		Retired:         stats.Retired,
		Rejected:        stats.Rejected,
		Throughput:      stats.Throughput(),
		Forwards:        stats.Forwards,
		Allocs:          stats.Allocs,
		Frees:           stats.Frees,
		EmptyPops:       stats.EmptyPops,
		WallTime:        wallTime,
	}

	for _, lg := range engine.Geometry().Levels {
		if cs, ok := engine.CacheStats(lg.Level); ok {
			result.CacheHits += cs.Hits
			result.CacheMisses += cs.Misses
		}
	}

	if h.config.Validate {
		result.Mismatches, err = countMismatches(cfg, reqs, results, errs)
		if err != nil {
			return result, err
		}
	}

	if err := engine.Audit(); err != nil {
		return result, err
	}

	return result, nil
}

// countMismatches replays reqs on the emulator and counts operators whose
// admission or popped rank differ.
func countMismatches(cfg *config.Config, reqs []pipeline.Request, results []pipeline.Result, errs []error) (int, error) {
	em, err := emu.NewEmulator(cfg)
	if err != nil {
		return 0, err
	}

	mismatches := 0
	next := 0
	for i, req := range reqs {
		want := em.Step(req.Partition, req.Op)
		if (want.Err != nil) != (errs[i] != nil) {
			mismatches++
			continue
		}
		if errs[i] != nil {
			continue
		}
		if next >= len(results) {
			mismatches++
			continue
		}
		got := results[next].Entry
		next++
		if got.Exists != want.Entry.Exists || (got.Exists && got.Rank != want.Entry.Rank) {
			mismatches++
		}
	}
	return mismatches, nil
}

// PrintResults writes one block per scenario.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== ClubHeap Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles: %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Retired:          %d\n", r.Retired)
		_, _ = fmt.Fprintf(h.config.Output, "  Rejected:         %d\n", r.Rejected)
		_, _ = fmt.Fprintf(h.config.Output, "  Throughput:       %.3f ops/cycle\n", r.Throughput)
		_, _ = fmt.Fprintf(h.config.Output, "  Forwards:         %d\n", r.Forwards)
		_, _ = fmt.Fprintf(h.config.Output, "  Empty Pops:       %d\n", r.EmptyPops)
		if r.Allocs > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Allocs/Frees:     %d/%d\n", r.Allocs, r.Frees)
		}

		if r.CacheHits > 0 || r.CacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Level Caches ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.CacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.CacheMisses)
		}

		if h.config.Validate {
			_, _ = fmt.Fprintf(h.config.Output, "  Emulator Mismatches: %d\n", r.Mismatches)
		}
		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV writes a header and one row per scenario.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,retired,rejected,throughput,forwards,allocs,frees,empty_pops,cache_hits,cache_misses,mismatches")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.Retired,
			r.Rejected,
			r.Throughput,
			r.Forwards,
			r.Allocs,
			r.Frees,
			r.EmptyPops,
			r.CacheHits,
			r.CacheMisses,
			r.Mismatches,
		)
	}
}

// BenchmarkReport is the document written by PrintJSON.
type BenchmarkReport struct {
	Metadata ReportMetadata    `json:"metadata"`
	Results  []BenchmarkResult `json:"results"`
	Summary  ReportSummary     `json:"summary"`
}

// ReportMetadata records when and how the scenarios ran.
type ReportMetadata struct {
	// Timestamp is the RFC 3339 UTC time the report was written
	Timestamp string `json:"timestamp"`

	// CacheEnabled reports whether the level cache model was active
	CacheEnabled bool `json:"cache_enabled"`
}

// ReportSummary totals the per-scenario counters.
type ReportSummary struct {
	TotalBenchmarks int    `json:"total_benchmarks"`
	TotalCycles     uint64 `json:"total_cycles"`
	TotalRetired    uint64 `json:"total_retired"`

	// AverageThroughput is total retired over total cycles
	AverageThroughput float64 `json:"average_throughput"`

	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON writes the results and their totals as indented JSON.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	var totalCycles, totalRetired uint64
	var totalWallTime time.Duration
	for _, r := range results {
		totalCycles += r.SimulatedCycles
		totalRetired += r.Retired
		totalWallTime += r.WallTime
	}

	avg := float64(0)
	if totalCycles > 0 {
		avg = float64(totalRetired) / float64(totalCycles)
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			CacheEnabled: h.config.EnableCache,
		},
		Results: results,
		Summary: ReportSummary{
			TotalBenchmarks:   len(results),
			TotalCycles:       totalCycles,
			TotalRetired:      totalRetired,
			AverageThroughput: avg,
			TotalWallTime:     totalWallTime,
		},
	}

	data, err := sonnet.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize benchmark report: %w", err)
	}
	data = append(data, '\n')
	_, err = h.config.Output.Write(data)
	return err
}
