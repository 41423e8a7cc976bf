package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Error(err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.json")
	body := `{
		"threads": 4,
		"min_delay_steps": 8,
		"max_delay_steps": 16,
		"off_grid_spiking": true,
		"initial_buffer_capacity": 128
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Threads != 4 || cfg.MinDelaySteps != 8 || !cfg.OffGridSpiking {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.ShrinkLimit != 0.2 || cfg.GrowExtra != 0.5 {
		t.Errorf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.json")
	if err := os.WriteFile(path, []byte(`{"initial_buffer_capacity": 1}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected a validation error for capacity 1")
	}
}

func TestValidate(t *testing.T) {
	break1 := func(f func(*Config)) Config {
		cfg := Default()
		f(&cfg)
		return cfg
	}
	bad := []Config{
		break1(func(c *Config) { c.Threads = 0 }),
		break1(func(c *Config) { c.MinDelaySteps = 0 }),
		break1(func(c *Config) { c.MaxDelaySteps = 0; c.MinDelaySteps = 1 }),
		break1(func(c *Config) { c.ShrinkLimit = 1.0 }),
		break1(func(c *Config) { c.ShrinkSpare = -0.1 }),
		break1(func(c *Config) { c.GrowExtra = 0 }),
		break1(func(c *Config) { c.MaxSynapseTypes = 0 }),
		break1(func(c *Config) { c.MaxConnectionsPerThread = 0 }),
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected a validation error for %+v", i, cfg)
		}
	}
}
