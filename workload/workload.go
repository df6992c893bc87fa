// Package workload generates seeded operator streams for the heap engine.
package workload

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sarchlab/clubheap/cluster"
	"github.com/sarchlab/clubheap/timing/pipeline"
)

// ErrUnknownMix is returned for an unrecognized mix name.
var ErrUnknownMix = errors.New("unknown workload mix")

// Mix names an operator pattern.
type Mix string

const (
	// Uniform draws push, pop and replace independently per operator.
	Uniform Mix = "uniform"
	// Burst alternates runs of pushes and runs of pops.
	Burst Mix = "burst"
	// Steady fills the queue, then holds its size with replaces, the way a
	// scheduler reinserts a flow after dequeuing it.
	Steady Mix = "steady"
	// Drain pushes the first half of the stream and pops the rest.
	Drain Mix = "drain"
)

// Mixes lists every supported mix.
func Mixes() []Mix {
	return []Mix{Uniform, Burst, Steady, Drain}
}

// ParseMix converts a name into a Mix.
func ParseMix(name string) (Mix, error) {
	for _, m := range Mixes() {
		if string(m) == name {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMix, name)
}

// Config controls a generator.
type Config struct {
	Mix        Mix
	Seed       int64
	Partitions int

	// MaxRank bounds the generated ranks. Small values produce many ties.
	MaxRank uint64

	// MaxMeta bounds the generated metadata.
	MaxMeta uint64

	// BurstLength is the run length of the burst mix. Default: 32.
	BurstLength int

	// Fill is the number of pushes the steady mix issues before it starts
	// replacing. Default: 64.
	Fill int
}

// Generator produces a deterministic operator stream.
type Generator struct {
	config Config
	rng    *rand.Rand
	issued int
	total  int
	meta   uint64
}

// New creates a generator. total is the stream length the drain mix splits
// in half; other mixes ignore it.
func New(config Config, total int) *Generator {
	if config.Partitions < 1 {
		config.Partitions = 1
	}
	if config.BurstLength < 1 {
		config.BurstLength = 32
	}
	if config.Fill < 1 {
		config.Fill = 64
	}
	if config.MaxMeta == 0 {
		config.MaxMeta = 1<<32 - 1
	}
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		total:  total,
	}
}

// Next returns the next request.
func (g *Generator) Next() pipeline.Request {
	req := pipeline.Request{Partition: g.rng.Intn(g.config.Partitions)}

	switch g.config.Mix {
	case Burst:
		if (g.issued/g.config.BurstLength)%2 == 0 {
			req.Op = cluster.PushOp(g.entry())
		} else {
			req.Op = cluster.PopOp()
		}
	case Steady:
		if g.issued < g.config.Fill {
			req.Op = cluster.PushOp(g.entry())
		} else {
			req.Op = cluster.ReplaceOp(g.entry())
		}
	case Drain:
		if g.issued < g.total/2 {
			req.Op = cluster.PushOp(g.entry())
		} else {
			req.Op = cluster.PopOp()
		}
	default:
		switch n := g.rng.Intn(10); {
		case n < 5:
			req.Op = cluster.PushOp(g.entry())
		case n < 8:
			req.Op = cluster.PopOp()
		default:
			req.Op = cluster.ReplaceOp(g.entry())
		}
	}

	g.issued++
	return req
}

// Generate returns the next n requests.
func (g *Generator) Generate(n int) []pipeline.Request {
	out := make([]pipeline.Request, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

func (g *Generator) entry() cluster.Entry {
	var rank uint64
	switch g.config.MaxRank {
	case 0:
	case ^uint64(0):
		rank = g.rng.Uint64()
	default:
		rank = g.rng.Uint64() % (g.config.MaxRank + 1)
	}

	if g.config.MaxMeta == ^uint64(0) {
		g.meta++
	} else {
		g.meta = (g.meta + 1) % (g.config.MaxMeta + 1)
	}
	return cluster.NewEntry(g.meta, cluster.Rank(rank))
}
