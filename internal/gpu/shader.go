// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gogpu/naga"

	"github.com/gogpu/radixsort"
	"github.com/gogpu/radixsort/kernel"
)

//go:embed shaders/radix_sort.wgsl
var radixSortWGSL string

// entryPoints maps each stage to its shader entry point.
var entryPoints = [stageCount]string{
	radixsort.StageZero:        "zero_histograms",
	radixsort.StageHistogram:   "calculate_histogram",
	radixsort.StagePrefix:      "prefix_histogram",
	radixsort.StageScatterEven: "scatter_even",
	radixsort.StageScatterOdd:  "scatter_odd",
}

// stageCount is the number of compute pipelines.
const stageCount = int(radixsort.StageScatterOdd) + 1

// maxWorkgroupInvocations is the WebGPU default limit on invocations per
// workgroup.
const maxWorkgroupInvocations = 256

// ShaderSource returns the WGSL source for cfg: the launch constants
// followed by the embedded shader.
func ShaderSource(cfg kernel.Config) string {
	var b strings.Builder
	consts := []struct {
		name  string
		value uint32
	}{
		{"histogram_wg_size", cfg.HistogramWorkgroupSize},
		{"histogram_block_rows", cfg.HistogramBlockRows},
		{"prefix_wg_size", cfg.PrefixWorkgroupSize},
		{"scatter_wg_size", cfg.ScatterWorkgroupSize},
		{"scatter_block_rows", cfg.ScatterBlockRows},
		{"rank_span", cfg.SubgroupSize},
		{"rs_passes", cfg.Passes},
		{"spin_budget", cfg.SpinBudget},
	}
	for _, c := range consts {
		fmt.Fprintf(&b, "const %s: u32 = %du;\n", c.name, c.value)
	}
	b.WriteString("\n")
	b.WriteString(radixSortWGSL)
	return b.String()
}

// CompileSPIRV compiles the shader for cfg to SPIR-V words with naga.
// Results are cached per configuration; the returned slice is shared and
// must not be modified.
func CompileSPIRV(cfg kernel.Config) ([]uint32, error) {
	if err := validateDeviceConfig(cfg); err != nil {
		return nil, err
	}
	return compiledShaders.get(cfg, func() ([]uint32, error) {
		return compileSPIRV(cfg)
	})
}

func compileSPIRV(cfg kernel.Config) ([]uint32, error) {
	spirvBytes, err := naga.Compile(ShaderSource(cfg))
	if err != nil {
		return nil, fmt.Errorf("gpu: compile radix sort shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// validateDeviceConfig checks the limits a configuration must respect on
// top of kernel.Config.Validate to run as shaders.
func validateDeviceConfig(cfg kernel.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.HistogramWorkgroupSize > maxWorkgroupInvocations || cfg.ScatterWorkgroupSize > maxWorkgroupInvocations {
		return fmt.Errorf("%w: workgroup size exceeds %d invocations (histogram %d, scatter %d)",
			radixsort.ErrInvalidConfig, maxWorkgroupInvocations,
			cfg.HistogramWorkgroupSize, cfg.ScatterWorkgroupSize)
	}
	return nil
}
