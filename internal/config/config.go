// Package config loads the TOML configuration of the radixsort CLI.
//
// Example:
//
//	[sort]
//	workers = 8
//	keyBits = 32
//	spinBudget = 1048576
//	histogramTiling = [256, 15]
//	scatterTiling = [256, 15]
//	subgroupSize = 32
//
//	[bench]
//	keys = 1000000
//	runs = 10
//	backend = "cpu"
//	distribution = "uniform"
//	seed = 1
//
//	[log]
//	level = "info"
package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/radixsort"
)

// Distributions accepted by [bench] distribution.
var Distributions = []string{"uniform", "few", "sorted", "reversed"}

type SortConfig struct {
	Workers         int      `toml:"workers"`
	KeyBits         uint32   `toml:"keyBits"`
	SpinBudget      uint32   `toml:"spinBudget"`
	HistogramTiling []uint32 `toml:"histogramTiling"`
	ScatterTiling   []uint32 `toml:"scatterTiling"`
	SubgroupSize    uint32   `toml:"subgroupSize"`
}

type BenchConfig struct {
	Keys         uint32 `toml:"keys"`
	Runs         int    `toml:"runs"`
	Backend      string `toml:"backend"`
	Distribution string `toml:"distribution"`
	Seed         uint64 `toml:"seed"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Sort  SortConfig  `toml:"sort"`
	Bench BenchConfig `toml:"bench"`
	Log   LogConfig   `toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Sort: SortConfig{KeyBits: 32},
		Bench: BenchConfig{
			Keys:         1 << 20,
			Runs:         5,
			Backend:      radixsort.BackendCPU,
			Distribution: "uniform",
			Seed:         1,
		},
		Log: LogConfig{Level: "warn"},
	}
}

// Load reads path over the defaults. Unknown keys are an error so that
// typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML text over the defaults.
func Parse(text string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that the sort options do not check themselves.
func (c *Config) Validate() error {
	if n := len(c.Sort.HistogramTiling); n != 0 && n != 2 {
		return fmt.Errorf("sort.histogramTiling: want [workgroupSize, rows], got %d values", n)
	}
	if n := len(c.Sort.ScatterTiling); n != 0 && n != 2 {
		return fmt.Errorf("sort.scatterTiling: want [workgroupSize, rows], got %d values", n)
	}
	if c.Bench.Runs < 1 {
		return fmt.Errorf("bench.runs must be positive, got %d", c.Bench.Runs)
	}
	if !slices.Contains(Distributions, c.Bench.Distribution) {
		return fmt.Errorf("bench.distribution %q: want one of %s",
			c.Bench.Distribution, strings.Join(Distributions, ", "))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Options converts the [sort] table into sorter options.
func (c *Config) Options() []radixsort.Option {
	s := c.Sort
	var opts []radixsort.Option
	if s.Workers > 0 {
		opts = append(opts, radixsort.WithWorkers(s.Workers))
	}
	if s.KeyBits != 0 {
		opts = append(opts, radixsort.WithKeyBits(s.KeyBits))
	}
	if s.SpinBudget != 0 {
		opts = append(opts, radixsort.WithSpinBudget(s.SpinBudget))
	}
	if len(s.HistogramTiling) == 2 {
		opts = append(opts, radixsort.WithHistogramTiling(s.HistogramTiling[0], s.HistogramTiling[1]))
	}
	if len(s.ScatterTiling) == 2 {
		opts = append(opts, radixsort.WithScatterTiling(s.ScatterTiling[0], s.ScatterTiling[1]))
	}
	if s.SubgroupSize != 0 {
		opts = append(opts, radixsort.WithSubgroupSize(s.SubgroupSize))
	}
	return opts
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", name, err)
	}
	return level, nil
}
