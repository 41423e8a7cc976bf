// Package config holds the tunable surface of the spike-exchange kernel.
package config

import (
	"fmt"
	"os"

	"github.com/sugawarayuuta/sonnet"
)

// Config is fixed for the lifetime of a simulation: the kernel derives its
// wire encoding and buffer geometry from it once at setup.
type Config struct {
	// Threads is the number of worker threads per rank.
	Threads int `json:"threads"`

	// MinDelaySteps is the length of the min-delay window in steps; every
	// recorded lag is below it.
	MinDelaySteps int `json:"min_delay_steps"`

	// MaxDelaySteps bounds the total synaptic delay.
	MaxDelaySteps int `json:"max_delay_steps"`

	// OffGridSpiking selects the precise (two-word) wire encoding that
	// carries a sub-step offset with every spike.
	OffGridSpiking bool `json:"off_grid_spiking"`

	// UseCompressedSpikes sends one slot per (source, rank) and resolves
	// the local fan-out through the router's expansion table.
	UseCompressedSpikes bool `json:"use_compressed_spikes"`

	// InitialCapacity is the starting per-rank-pair chunk capacity in
	// slots.
	InitialCapacity int `json:"initial_buffer_capacity"`

	// ShrinkLimit, ShrinkSpare, and GrowExtra control the adaptive buffer
	// policy: shrink when utilization falls below ShrinkLimit of capacity,
	// leaving ShrinkSpare headroom; grow past demand by GrowExtra.
	ShrinkLimit float64 `json:"adaptive_buffer_shrink_limit"`
	ShrinkSpare float64 `json:"adaptive_buffer_shrink_spare"`
	GrowExtra   float64 `json:"adaptive_buffer_grow_extra"`

	// MaxSynapseTypes and MaxConnectionsPerThread bound the values the
	// wire encoding must address.
	MaxSynapseTypes         int `json:"max_synapse_types"`
	MaxConnectionsPerThread int `json:"max_connections_per_thread"`
}

// Default returns the configuration a simulation starts from.
func Default() Config {
	return Config{
		Threads:                 1,
		MinDelaySteps:           1,
		MaxDelaySteps:           1,
		InitialCapacity:         64,
		ShrinkLimit:             0.2,
		ShrinkSpare:             0.1,
		GrowExtra:               0.5,
		MaxSynapseTypes:         16,
		MaxConnectionsPerThread: 1 << 20,
	}
}

// Load reads a JSON file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants the kernel depends on.
func (c Config) Validate() error {
	switch {
	case c.Threads < 1:
		return fmt.Errorf("config: threads must be positive, got %d", c.Threads)
	case c.MinDelaySteps < 1:
		return fmt.Errorf("config: min_delay_steps must be positive, got %d", c.MinDelaySteps)
	case c.MaxDelaySteps < c.MinDelaySteps:
		return fmt.Errorf("config: max_delay_steps %d below min_delay_steps %d",
			c.MaxDelaySteps, c.MinDelaySteps)
	case c.InitialCapacity < 2:
		return fmt.Errorf("config: initial_buffer_capacity must be at least 2, got %d",
			c.InitialCapacity)
	case c.ShrinkLimit < 0 || c.ShrinkLimit >= 1:
		return fmt.Errorf("config: adaptive_buffer_shrink_limit must be in [0,1), got %g",
			c.ShrinkLimit)
	case c.ShrinkSpare < 0:
		return fmt.Errorf("config: adaptive_buffer_shrink_spare must not be negative, got %g",
			c.ShrinkSpare)
	case c.GrowExtra <= 0:
		return fmt.Errorf("config: adaptive_buffer_grow_extra must be positive, got %g",
			c.GrowExtra)
	case c.MaxSynapseTypes < 1:
		return fmt.Errorf("config: max_synapse_types must be positive, got %d", c.MaxSynapseTypes)
	case c.MaxConnectionsPerThread < 1:
		return fmt.Errorf("config: max_connections_per_thread must be positive, got %d",
			c.MaxConnectionsPerThread)
	}
	return nil
}
