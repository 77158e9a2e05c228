// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"errors"
	"fmt"
)

// Radix constants shared by every stage. They match the rs_* constants of
// the WGSL shader.
const (
	// RadixLog2 is the digit width in bits.
	RadixLog2 = 8

	// RadixSize is the number of buckets per digit pass.
	RadixSize = 1 << RadixLog2

	// RadixMask extracts one digit.
	RadixMask = RadixSize - 1

	// MaxPasses is the number of digit passes for 32-bit keys.
	MaxPasses = 4

	// SentinelKey marks padding and inactive elements. It sorts last.
	SentinelKey uint32 = 0xFFFFFFFF
)

// Default launch parameters, taken from the shader build used in production.
const (
	DefaultHistogramWorkgroupSize = 256
	DefaultHistogramBlockRows     = 15
	DefaultPrefixWorkgroupSize    = RadixSize / 2
	DefaultScatterWorkgroupSize   = 256
	DefaultScatterBlockRows       = 15
	DefaultSubgroupSize           = 32

	// DefaultSpinBudget bounds every look-back wait loop. It counts polls of
	// a partition word, not wall-clock time.
	DefaultSpinBudget = 1 << 20
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("radixsort: invalid launch configuration")

// Config holds the compile-time/launch-time constants every stage must agree
// on. The GPU backend prepends the same values to the shader source.
type Config struct {
	// Passes is the number of 8-bit digit passes: 4 for 32-bit keys,
	// 2 for 16-bit keys.
	Passes uint32

	// HistogramWorkgroupSize is the number of lanes of a histogram workgroup.
	HistogramWorkgroupSize uint32

	// HistogramBlockRows is the number of keys each histogram lane holds.
	HistogramBlockRows uint32

	// PrefixWorkgroupSize is the number of lanes of a prefix workgroup.
	// Each lane owns two buckets, so it must be RadixSize/2.
	PrefixWorkgroupSize uint32

	// ScatterWorkgroupSize is the number of lanes of a scatter workgroup.
	ScatterWorkgroupSize uint32

	// ScatterBlockRows is the number of keys each scatter lane holds.
	ScatterBlockRows uint32

	// SubgroupSize is the lane span scanned when ranking equal digits.
	// It must divide ScatterWorkgroupSize.
	SubgroupSize uint32

	// SpinBudget is the maximum number of polls of a single partition word
	// before a workgroup gives up and flags the sort as failed.
	SpinBudget uint32
}

// DefaultConfig returns the configuration for 32-bit keys.
func DefaultConfig() Config {
	return Config{
		Passes:                 MaxPasses,
		HistogramWorkgroupSize: DefaultHistogramWorkgroupSize,
		HistogramBlockRows:     DefaultHistogramBlockRows,
		PrefixWorkgroupSize:    DefaultPrefixWorkgroupSize,
		ScatterWorkgroupSize:   DefaultScatterWorkgroupSize,
		ScatterBlockRows:       DefaultScatterBlockRows,
		SubgroupSize:           DefaultSubgroupSize,
		SpinBudget:             DefaultSpinBudget,
	}
}

// Validate reports whether the configuration can be dispatched.
func (c Config) Validate() error {
	switch {
	case c.Passes != 2 && c.Passes != MaxPasses:
		return fmt.Errorf("%w: passes must be 2 or 4, got %d", ErrInvalidConfig, c.Passes)
	case c.HistogramWorkgroupSize == 0 || c.HistogramBlockRows == 0:
		return fmt.Errorf("%w: empty histogram tile (%dx%d)", ErrInvalidConfig,
			c.HistogramWorkgroupSize, c.HistogramBlockRows)
	case c.ScatterWorkgroupSize == 0 || c.ScatterBlockRows == 0:
		return fmt.Errorf("%w: empty scatter tile (%dx%d)", ErrInvalidConfig,
			c.ScatterWorkgroupSize, c.ScatterBlockRows)
	case c.PrefixWorkgroupSize != RadixSize/2:
		return fmt.Errorf("%w: prefix workgroup size must be %d, got %d", ErrInvalidConfig,
			RadixSize/2, c.PrefixWorkgroupSize)
	case c.SubgroupSize == 0 || c.ScatterWorkgroupSize%c.SubgroupSize != 0:
		return fmt.Errorf("%w: subgroup size %d does not divide scatter workgroup size %d",
			ErrInvalidConfig, c.SubgroupSize, c.ScatterWorkgroupSize)
	case c.SpinBudget == 0:
		return fmt.Errorf("%w: spin budget must be positive", ErrInvalidConfig)
	}
	return nil
}

// KeyBits returns the number of key bits ordered by the sort.
func (c Config) KeyBits() uint32 {
	return c.Passes * RadixLog2
}

// HistogramBlockKeys returns the number of keys in one histogram tile.
func (c Config) HistogramBlockKeys() uint32 {
	return c.HistogramWorkgroupSize * c.HistogramBlockRows
}

// ScatterBlockKeys returns the number of keys in one scatter tile.
func (c Config) ScatterBlockKeys() uint32 {
	return c.ScatterWorkgroupSize * c.ScatterBlockRows
}

// ScatterBlocks returns the number of scatter workgroups covering n keys.
func (c Config) ScatterBlocks(n uint32) uint32 {
	return divCeil(n, c.ScatterBlockKeys())
}

// HistogramBlocks returns the number of histogram workgroups covering the
// scatter-rounded size of n keys.
func (c Config) HistogramBlocks(n uint32) uint32 {
	return divCeil(c.ScatterBlocks(n)*c.ScatterBlockKeys(), c.HistogramBlockKeys())
}

// PaddedSize returns the key/payload buffer length for n keys: a whole number
// of histogram tiles, which is never smaller than a whole number of scatter
// tiles.
func (c Config) PaddedSize(n uint32) uint32 {
	return c.HistogramBlocks(n) * c.HistogramBlockKeys()
}

// ZeroWorkgroups returns the number of workgroups of the zero stage. At least
// one workgroup runs so that GeneralInfo is reset even for empty sorts.
func (c Config) ZeroWorkgroups(n uint32) uint32 {
	return max(c.HistogramBlocks(n), 1)
}

// PartitionBase returns the word offset of the partition region.
func (c Config) PartitionBase() uint32 {
	return c.Passes * RadixSize
}

// HistogramWords returns the length in words of the histogram buffer for
// n keys: one row per pass plus one partition row per scatter workgroup.
func (c Config) HistogramWords(n uint32) uint32 {
	return (c.Passes + c.ScatterBlocks(n)) * RadixSize
}

func divCeil(a, b uint32) uint32 {
	return (a + b - 1) / b
}
