package pipeline

import (
	"go.uber.org/zap"

	"github.com/sarchlab/clubheap/timing/config"
	"github.com/sarchlab/clubheap/timing/store"
)

// Processor is one pipelined stage group of the heap. Within a cycle the
// engine calls Commit and Compare deepest-first, then Fetch top-down, so a
// processor sees its child's response and its parent's request from the
// same cycle.
type Processor interface {
	// Commit finishes the operator in the compare latch using the child's
	// response, and writes the result back.
	Commit(child *UpPort)
	// Compare resolves hazards and applies the fetched operator.
	Compare()
	// Fetch reads the pair requested by the parent.
	Fetch(parent *DownPort)
	// Busy reports whether any latch holds an operator.
	Busy() bool
	// Reset drops all in-flight state.
	Reset()
}

// LevelStats holds per-level statistics.
type LevelStats struct {
	// Ops is the number of operators compared at the level.
	Ops uint64
	// Forwards is the number of fetches replaced by a forwarded pair.
	Forwards uint64
	// Allocs and Frees count pairs taken from and returned to the free list.
	Allocs uint64
	Frees  uint64
}

// LevelProcessor runs the fetch, compare and commit stages of one level.
type LevelProcessor struct {
	geom  config.LevelGeometry
	store *store.LevelStore
	log   *zap.Logger

	fetchStage     *FetchStage
	compareStage   *CompareStage
	commitStage    *CommitStage
	writebackStage *WritebackStage
	hazardUnit     *HazardUnit

	fetched  FetchLatch
	compared CompareLatch
	forward  ForwardRegister

	// Down and Up are driven by Compare and sampled by the neighbours in
	// the same cycle.
	Down DownPort
	Up   UpPort

	stats LevelStats
}

// NewLevelProcessor creates the processor for one level on top of s.
func NewLevelProcessor(s *store.LevelStore, log *zap.Logger) *LevelProcessor {
	geom := s.Geometry()
	return &LevelProcessor{
		geom:           geom,
		store:          s,
		log:            log.With(zap.Int("level", geom.Level)),
		fetchStage:     NewFetchStage(s),
		compareStage:   NewCompareStage(geom),
		commitStage:    NewCommitStage(geom),
		writebackStage: NewWritebackStage(s),
		hazardUnit:     NewHazardUnit(),
	}
}

// Geometry returns the level layout.
func (p *LevelProcessor) Geometry() config.LevelGeometry {
	return p.geom
}

// Store returns the level store.
func (p *LevelProcessor) Store() *store.LevelStore {
	return p.store
}

// Stats returns level statistics.
func (p *LevelProcessor) Stats() LevelStats {
	return p.stats
}

// Commit implements Processor.
func (p *LevelProcessor) Commit(child *UpPort) {
	p.forward.Clear()
	if !p.compared.Valid {
		return
	}

	l := &p.compared
	pair := p.commitStage.Commit(l, child)

	if p.geom.Dynamic && l.Emptied && !l.Actual.IsNull() {
		p.stats.Frees++
		p.log.Debug("free pair", zap.Uint64("seq", l.Seq), zap.Stringer("addr", l.Actual))
	}
	p.writebackStage.Writeback(l.Actual, pair)

	p.forward = ForwardRegister{
		Valid: true,
		Seq:   l.Seq,
		Addr:  l.Actual,
		Pair:  pair,
	}
	p.compared.Clear()
}

// Compare implements Processor.
func (p *LevelProcessor) Compare() {
	p.Down.Clear()
	p.Up.Clear()
	p.compared.Clear()
	if !p.fetched.Valid {
		return
	}

	f := &p.fetched
	pair, forwarded := p.hazardUnit.Resolve(f, &p.forward)
	if forwarded {
		p.stats.Forwards++
	}
	p.stats.Ops++

	out := p.compareStage.Compare(f, pair)
	p.compared = out.Latch
	p.Up = out.Up
	p.Down = out.Down
	p.fetched.Clear()
}

// Fetch implements Processor.
func (p *LevelProcessor) Fetch(parent *DownPort) {
	p.fetched = p.fetchStage.Fetch(parent)
	if p.fetched.Allocated {
		p.stats.Allocs++
		p.log.Debug("allocate pair",
			zap.Uint64("seq", p.fetched.Seq),
			zap.Stringer("addr", p.fetched.Actual))
	}
}

// Busy implements Processor.
func (p *LevelProcessor) Busy() bool {
	return p.fetched.Valid || p.compared.Valid
}

// Reset implements Processor. The level store is reset as well.
func (p *LevelProcessor) Reset() {
	p.fetched.Clear()
	p.compared.Clear()
	p.forward.Clear()
	p.Down.Clear()
	p.Up.Clear()
	p.stats = LevelStats{}
	p.store.Reset()
}
