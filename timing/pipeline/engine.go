package pipeline

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/store"
)

// Admission errors returned by Issue.
var (
	ErrPartitionFull    = errors.New("partition full")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrRankOverflow     = errors.New("rank exceeds rank width")
	ErrMetaOverflow     = errors.New("metadata exceeds metadata width")
	ErrBadPartition     = errors.New("partition out of range")
	ErrAlreadyIssued    = errors.New("operator already issued this cycle")
)

// Request is one operator addressed to a partition.
type Request struct {
	Partition int
	Op        cluster.Operator
}

// Result is the outcome of one operator.
type Result struct {
	// Valid is false for the zero Result.
	Valid bool

	// Seq is the issue sequence number.
	Seq uint64

	// Issued is the cycle the operator was issued in.
	Issued uint64

	Partition int
	Op        cluster.Operator

	// Entry is the popped entry. It is empty for pushes and for pops of an
	// empty partition.
	Entry cluster.Entry
}

// Statistics holds engine performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Issued is the number of operators admitted.
	Issued uint64
	// Retired is the number of results delivered.
	Retired uint64
	// Bubbles is the number of cycles without an issued operator.
	Bubbles uint64
	// Rejected is the number of operators refused at admission.
	Rejected uint64
	// Pushes, Pops and Replaces count admitted operators by kind.
	Pushes   uint64
	Pops     uint64
	Replaces uint64
	// EmptyPops is the number of pops that returned nothing.
	EmptyPops uint64
	// Forwards is the number of hazards resolved by forwarding, all levels.
	Forwards uint64
	// Allocs and Frees count dynamic pair allocations, all levels.
	Allocs uint64
	Frees  uint64
}

// Throughput returns retired operators per cycle.
func (s Statistics) Throughput() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Retired) / float64(s.Cycles)
}

// StoreFactory builds the block memory of one level.
type StoreFactory func(geom config.LevelGeometry) store.BlockStore

// EngineOption is a functional option for configuring the Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithStoreFactory replaces the flat block memory of every level.
func WithStoreFactory(factory StoreFactory) EngineOption {
	return func(e *Engine) {
		e.storeFactory = factory
	}
}

// WithLevelCache places a cache model in front of every level's block
// memory.
func WithLevelCache(cacheConfig store.CacheConfig) EngineOption {
	return func(e *Engine) {
		c := cacheConfig
		e.cacheConfig = &c
	}
}

// Engine is the pipelined heap. One operator may be issued per cycle; its
// result is delivered Latency cycles later.
type Engine struct {
	config  *config.Config
	geom    config.Geometry
	latency uint64
	log     *zap.Logger

	storeFactory StoreFactory
	cacheConfig  *store.CacheConfig
	caches       []*store.CachedStore

	root   *RootProcessor
	levels []*LevelProcessor

	pending  DownPort
	inflight []Result

	cycle uint64
	seq   uint64

	counts []int
	total  int

	stats Statistics
}

// NewEngine creates an engine for cfg.
func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:  cfg.Clone(),
		geom:    cfg.Geometry(),
		latency: uint64(cfg.Latency()),
		log:     zap.NewNop(),
		storeFactory: func(geom config.LevelGeometry) store.BlockStore {
			return store.NewArrayStore(geom.Depth, geom.Width)
		},
		counts: make([]int, cfg.Partitions),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cacheConfig != nil {
		if err := e.cacheConfig.Validate(); err != nil {
			return nil, fmt.Errorf("failed to configure level cache: %w", err)
		}
	}

	e.root = NewRootProcessor(cfg.Partitions)
	for _, lg := range e.geom.Levels {
		mem := e.storeFactory(lg)
		if e.cacheConfig != nil {
			cached := store.NewCachedStore(*e.cacheConfig, mem)
			e.caches = append(e.caches, cached)
			mem = cached
		}
		e.levels = append(e.levels, NewLevelProcessor(store.NewLevelStore(lg, mem), e.log))
	}
	for _, c := range e.caches {
		c.Reset()
	}

	e.log.Info("heap engine ready",
		zap.Int("levels", cfg.Levels),
		zap.Int("partitions", cfg.Partitions),
		zap.Int("cluster_width", cfg.ClusterWidth),
		zap.Int("capacity", e.geom.Capacity),
		zap.Int("storage_pairs", e.geom.StoragePairs()),
		zap.Uint64("latency", e.latency))

	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.config.Clone()
}

// Geometry returns the per-level layout.
func (e *Engine) Geometry() config.Geometry {
	return e.geom
}

// Latency returns the number of cycles from Issue to the Tick that
// delivers the result.
func (e *Engine) Latency() int {
	return int(e.latency)
}

// Cycle returns the current cycle.
func (e *Engine) Cycle() uint64 {
	return e.cycle
}

// Len returns the number of entries admitted to partition p.
func (e *Engine) Len(p int) int {
	return e.counts[p]
}

// Size returns the number of entries admitted to all partitions.
func (e *Engine) Size() int {
	return e.total
}

// Issue submits req for the current cycle. Admission is decided against
// the partition occupancy after every earlier operator.
func (e *Engine) Issue(req Request) error {
	if err := e.admit(req); err != nil {
		e.stats.Rejected++
		e.log.Debug("operator rejected",
			zap.Uint64("cycle", e.cycle),
			zap.Int("partition", req.Partition),
			zap.Error(err))
		return err
	}

	op := req.Op
	switch {
	case op.IsPurePush():
		e.counts[req.Partition]++
		e.total++
		e.stats.Pushes++
	case op.IsPurePop():
		if e.counts[req.Partition] > 0 {
			e.counts[req.Partition]--
			e.total--
		}
		e.stats.Pops++
	case op.Pop:
		e.stats.Replaces++
	}

	e.pending = DownPort{
		Valid: true,
		Seq:   e.seq,
		Addr:  cluster.Addr(req.Partition),
		Op:    op,
	}
	e.seq++
	e.stats.Issued++
	return nil
}

func (e *Engine) admit(req Request) error {
	if e.pending.Valid {
		return fmt.Errorf("%w: cycle %d", ErrAlreadyIssued, e.cycle)
	}
	if req.Partition < 0 || req.Partition >= len(e.counts) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrBadPartition, req.Partition, len(e.counts))
	}

	push := req.Op.Push
	if push.Exists {
		if uint64(push.Rank) > e.config.MaxRank() {
			return fmt.Errorf("%w: rank %d above %d", ErrRankOverflow, push.Rank, e.config.MaxRank())
		}
		if push.Meta > e.config.MaxMeta() {
			return fmt.Errorf("%w: meta %#x above %#x", ErrMetaOverflow, push.Meta, e.config.MaxMeta())
		}
	}

	if !req.Op.IsPurePush() {
		return nil
	}
	if e.counts[req.Partition] >= e.geom.PartitionCapacity {
		return fmt.Errorf("%w: partition %d holds %d entries",
			ErrPartitionFull, req.Partition, e.counts[req.Partition])
	}
	if e.total >= e.geom.Capacity {
		return fmt.Errorf("%w: %d entries admitted", ErrCapacityExceeded, e.total)
	}
	return nil
}

// Tick advances the engine by one cycle and returns the result of the
// operator issued Latency cycles earlier, if any.
func (e *Engine) Tick() (Result, bool) {
	e.stats.Cycles++

	for i := len(e.levels) - 1; i >= 0; i-- {
		var child *UpPort
		if i+1 < len(e.levels) {
			child = &e.levels[i+1].Up
		}
		e.levels[i].Commit(child)
		e.levels[i].Compare()
	}
	e.root.Commit(&e.levels[0].Up)
	e.root.Compare()
	if e.root.Result.Valid {
		e.inflight = append(e.inflight, e.root.Result)
	}

	if !e.pending.Valid {
		e.stats.Bubbles++
	}
	e.root.SetCycle(e.cycle)
	e.root.Fetch(&e.pending)
	e.levels[0].Fetch(&e.root.Down)
	for i := 1; i < len(e.levels); i++ {
		e.levels[i].Fetch(&e.levels[i-1].Down)
	}
	e.pending.Clear()

	res, ok := e.retire()
	e.cycle++
	return res, ok
}

func (e *Engine) retire() (Result, bool) {
	if len(e.inflight) == 0 || e.inflight[0].Issued+e.latency != e.cycle {
		return Result{}, false
	}

	res := e.inflight[0]
	e.inflight = e.inflight[1:]
	e.stats.Retired++
	if res.Op.Pop && !res.Entry.Exists {
		e.stats.EmptyPops++
	}
	e.log.Debug("operator retired",
		zap.Uint64("cycle", e.cycle),
		zap.Uint64("seq", res.Seq),
		zap.Int("partition", res.Partition),
		zap.Stringer("entry", res.Entry))
	return res, true
}

// Busy reports whether any operator is still in flight.
func (e *Engine) Busy() bool {
	if e.pending.Valid || len(e.inflight) > 0 || e.root.Busy() {
		return true
	}
	for _, l := range e.levels {
		if l.Busy() {
			return true
		}
	}
	return false
}

// Drain ticks until every in-flight operator has retired.
func (e *Engine) Drain() []Result {
	var out []Result
	for e.Busy() {
		if res, ok := e.Tick(); ok {
			out = append(out, res)
		}
	}
	return out
}

// Run issues reqs back to back, one per cycle, and drains the pipeline.
// errs[i] is the admission error of reqs[i], nil when it was accepted.
func (e *Engine) Run(reqs []Request) (results []Result, errs []error) {
	errs = make([]error, len(reqs))
	for i, req := range reqs {
		errs[i] = e.Issue(req)
		if res, ok := e.Tick(); ok {
			results = append(results, res)
		}
	}
	results = append(results, e.Drain()...)
	return results, errs
}

// Stats returns engine statistics.
func (e *Engine) Stats() Statistics {
	s := e.stats
	s.Forwards = e.root.Forwards()
	for _, l := range e.levels {
		ls := l.Stats()
		s.Forwards += ls.Forwards
		s.Allocs += ls.Allocs
		s.Frees += ls.Frees
	}
	return s
}

// LevelStats returns the statistics of level (1-based).
func (e *Engine) LevelStats(level int) LevelStats {
	return e.levels[level-1].Stats()
}

// StoreStats returns the block memory statistics of level (1-based).
func (e *Engine) StoreStats(level int) store.Stats {
	return e.levels[level-1].Store().Stats()
}

// CacheStats returns the cache statistics of level (1-based). ok is false
// when the engine was built without WithLevelCache.
func (e *Engine) CacheStats(level int) (stats store.CacheStats, ok bool) {
	if e.caches == nil {
		return store.CacheStats{}, false
	}
	return e.caches[level-1].Stats(), true
}

// Reset empties every partition and drops all in-flight operators.
func (e *Engine) Reset() {
	e.root.Reset()
	for _, l := range e.levels {
		l.Reset()
	}
	for _, c := range e.caches {
		c.Reset()
	}
	for i := range e.counts {
		e.counts[i] = 0
	}
	e.total = 0
	e.pending.Clear()
	e.inflight = nil
	e.cycle = 0
	e.seq = 0
	e.stats = Statistics{}
}
