// Package config loads the optional YAML sidecar cmd/rvsim's -config flag
// accepts. It is a CLI convenience, not part of the core engine: the core
// triad (guest, cpu, kernel) is configured entirely through Go option
// functions, per SPEC_FULL.md's Configuration section.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rv64vm/sandbox/internal/guest"
)

// Config overrides the memory size cmd/rvsim would otherwise pass to
// guest.NewMemory, and can turn on debug logging.
type Config struct {
	MemorySize int  `yaml:"memory_size"`
	Debug      bool `yaml:"debug"`
}

// Default returns a Config matching the hard-coded defaults cmd/rvsim uses
// when no sidecar is given.
func Default() Config {
	return Config{MemorySize: guest.StandaloneSize}
}

// Load reads and parses a YAML sidecar at path, starting from Default and
// overriding only the fields the file sets.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	if cfg.MemorySize <= 0 || cfg.MemorySize%guest.PageSize != 0 {
		return cfg, fmt.Errorf("config: memory_size must be a positive multiple of %d", guest.PageSize)
	}

	return cfg, nil
}
