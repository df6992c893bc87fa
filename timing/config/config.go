// Package config holds the construction-time constants of a heap engine and
// the per-level geometry derived from them.
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"os"

	"github.com/sugawarayuuta/sonnet"

	"github.com/sarchlab/clubheap/cluster"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid heap config")

// Config holds the constants shared by all components of one engine.
type Config struct {
	// RankWidth is the width of a rank in bits. Default: 16.
	RankWidth uint `json:"rank_width"`

	// MetaWidth is the width of the opaque metadata in bits. Default: 32.
	MetaWidth uint `json:"meta_width"`

	// FanOut is the number of children per cluster. Only 2 is supported.
	FanOut int `json:"fan_out"`

	// Levels is the number of level processors below the root. Default: 4.
	Levels int `json:"levels"`

	// Partitions is the number of independent root queues. Must be a power
	// of two. Default: 4.
	Partitions int `json:"partitions"`

	// ClusterWidth is K, the conceptual slots per cluster (K-1 are stored in
	// the cluster, one in its parent). Default: 4.
	ClusterWidth int `json:"cluster_width"`

	// Capacity is the total number of entries the engine admits across all
	// partitions. Zero means every partition may fill up completely.
	Capacity int `json:"capacity"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		RankWidth:    16,
		MetaWidth:    32,
		FanOut:       2,
		Levels:       4,
		Partitions:   4,
		ClusterWidth: 4,
		Capacity:     0,
	}
}

// LoadConfig loads a Config from a JSON file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read heap config file: %w", err)
	}

	config := DefaultConfig()
	if err := sonnet.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse heap config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := sonnet.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize heap config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write heap config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration describes a buildable engine.
func (c *Config) Validate() error {
	if c.RankWidth == 0 || c.RankWidth > 64 {
		return fmt.Errorf("%w: rank_width must be in [1, 64], got %d", ErrInvalidConfig, c.RankWidth)
	}
	if c.MetaWidth > 64 {
		return fmt.Errorf("%w: meta_width must be <= 64, got %d", ErrInvalidConfig, c.MetaWidth)
	}
	if c.FanOut != 2 {
		return fmt.Errorf("%w: fan_out must be 2, got %d", ErrInvalidConfig, c.FanOut)
	}
	if c.Levels < 1 || c.Levels > 24 {
		return fmt.Errorf("%w: levels must be in [1, 24], got %d", ErrInvalidConfig, c.Levels)
	}
	if c.Partitions < 1 || c.Partitions > 1<<16 || bits.OnesCount(uint(c.Partitions)) != 1 {
		return fmt.Errorf("%w: partitions must be a power of two in [1, 65536], got %d",
			ErrInvalidConfig, c.Partitions)
	}
	if c.ClusterWidth < 2 || c.ClusterWidth > 64 {
		return fmt.Errorf("%w: cluster_width must be in [2, 64], got %d", ErrInvalidConfig, c.ClusterWidth)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0, got %d", ErrInvalidConfig, c.Capacity)
	}
	if limit := c.Partitions * c.PartitionCapacity(); c.Capacity > limit {
		return fmt.Errorf("%w: capacity %d exceeds the %d slots of %d partitions",
			ErrInvalidConfig, c.Capacity, limit, c.Partitions)
	}
	for _, lg := range c.Geometry().Levels {
		if lg.Depth > 1<<cluster.MaxAddrBits {
			return fmt.Errorf("%w: level %d needs %d pairs, beyond the address space",
				ErrInvalidConfig, lg.Level, lg.Depth)
		}
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}

// PartitionCapacity is the number of entries one partition tree can hold:
// every level-l cluster owns K conceptual slots and there are 2^(l-1) of
// them per partition.
func (c *Config) PartitionCapacity() int {
	return ((1 << c.Levels) - 1) * c.ClusterWidth
}

// TotalCapacity resolves Capacity, substituting the full-tree capacity for
// zero.
func (c *Config) TotalCapacity() int {
	if c.Capacity == 0 {
		return c.Partitions * c.PartitionCapacity()
	}
	return c.Capacity
}

// MaxRank is the largest rank representable in RankWidth bits.
func (c *Config) MaxRank() uint64 {
	if c.RankWidth >= 64 {
		return ^uint64(0)
	}
	return (1 << c.RankWidth) - 1
}

// MaxMeta is the largest metadata value representable in MetaWidth bits.
func (c *Config) MaxMeta() uint64 {
	if c.MetaWidth >= 64 {
		return ^uint64(0)
	}
	return (1 << c.MetaWidth) - 1
}

// PartitionBits is the width of a partition id.
func (c *Config) PartitionBits() int {
	return bits.Len(uint(c.Partitions - 1))
}

// StageCycles is the slice every level, and the root, spends on one
// operator: fetch/hazard-resolve, compare-update, commit+write.
const StageCycles = 3

// RootLatency is the number of cycles the root adds on top of the levels.
func (c *Config) RootLatency() int {
	return StageCycles
}

// Latency is the number of cycles between issuing an operator and the
// delivery of its result: one slice per level plus the root.
func (c *Config) Latency() int {
	return StageCycles*c.Levels + c.RootLatency()
}
