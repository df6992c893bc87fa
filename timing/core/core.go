// Package core wraps the pipelined heap as an akita ticking component so it
// can be driven by a discrete-event simulation engine.
package core

import (
	"github.com/sarchlab/akita/v4/sim"
	"go.uber.org/zap"

	"github.com/sarchlab/clubheap/timing/pipeline"
	"github.com/sarchlab/clubheap/trace"
)

// Rejection records a request refused at admission.
type Rejection struct {
	// Index is the position of the request in submission order.
	Index   int
	Request pipeline.Request
	Err     error
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithRecorder sends every retired result to rec.
func WithRecorder(rec trace.Recorder) Option {
	return func(c *Core) {
		c.recorder = rec
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *Core) {
		c.log = log
	}
}

// Core issues queued requests into the heap, one per tick, and collects the
// results.
type Core struct {
	*sim.TickingComponent

	heap     *pipeline.Engine
	recorder trace.Recorder
	log      *zap.Logger

	queue     []pipeline.Request
	submitted int

	results   []pipeline.Result
	rejected  []Rejection
	recordErr error
}

// NewCore creates a component that drives heap at freq.
func NewCore(name string, engine sim.Engine, freq sim.Freq, heap *pipeline.Engine, opts ...Option) *Core {
	c := &Core{
		heap: heap,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.TickingComponent = sim.NewTickingComponent(name, engine, freq, c)
	return c
}

// Heap returns the wrapped engine.
func (c *Core) Heap() *pipeline.Engine {
	return c.heap
}

// Submit queues reqs behind any pending requests and wakes the component.
func (c *Core) Submit(reqs ...pipeline.Request) {
	if len(reqs) == 0 {
		return
	}
	c.queue = append(c.queue, reqs...)
	c.TickLater()
}

// Tick issues the next queued request, advances the heap by one cycle and
// collects the retiring result. It reports whether work remains.
func (c *Core) Tick() bool {
	if len(c.queue) > 0 {
		req := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.heap.Issue(req); err != nil {
			c.rejected = append(c.rejected, Rejection{Index: c.submitted, Request: req, Err: err})
		}
		c.submitted++
	}

	if res, ok := c.heap.Tick(); ok {
		c.results = append(c.results, res)
		c.record(res)
	}

	return len(c.queue) > 0 || c.heap.Busy()
}

func (c *Core) record(res pipeline.Result) {
	if c.recorder == nil || c.recordErr != nil {
		return
	}
	if err := c.recorder.Record(res); err != nil {
		c.recordErr = err
		c.log.Error("trace recording stopped",
			zap.String("component", c.Name()),
			zap.Uint64("seq", res.Seq),
			zap.Error(err))
	}
}

// Pending returns the number of requests not yet issued.
func (c *Core) Pending() int {
	return len(c.queue)
}

// Done reports whether every submitted request has been issued and retired.
func (c *Core) Done() bool {
	return len(c.queue) == 0 && !c.heap.Busy()
}

// Results returns the retired results in retirement order.
func (c *Core) Results() []pipeline.Result {
	return c.results
}

// Rejected returns the requests refused at admission.
func (c *Core) Rejected() []Rejection {
	return c.rejected
}

// RecordErr returns the first error returned by the recorder, if any.
func (c *Core) RecordErr() error {
	return c.recordErr
}

// Stats returns the heap statistics.
func (c *Core) Stats() pipeline.Statistics {
	return c.heap.Stats()
}

// Reset empties the heap and drops queued requests and collected results.
func (c *Core) Reset() {
	c.heap.Reset()
	c.queue = nil
	c.submitted = 0
	c.results = nil
	c.rejected = nil
	c.recordErr = nil
}
