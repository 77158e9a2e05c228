// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel provides CPU implementations of the radix sort compute
// shaders.
//
// The kernels intentionally replicate the WGSL shaders in gpu/shaders instead
// of using CPU-friendly alternatives: a workgroup is one goroutine that runs
// its lanes in program order between barriers, workgroups share the histogram
// and partition memory through atomics, and nothing but the partition status
// words orders workgroups of the same dispatch. This makes the package both a
// reference for the GPU backend and a way to exercise the decoupled look-back
// protocol under the Go scheduler.
//
// Stage order (one dispatch each, with a global barrier in between):
//
//  1. Zero      -- clear histogram and partition memory, reset GeneralInfo flags
//  2. Histogram -- per-pass 256-bucket digit counts, sentinel-fill padding keys
//  3. Prefix    -- one workgroup per pass, Blelloch exclusive scan in place
//  4. Scatter   -- ScatterEven/ScatterOdd alternating, one dispatch per pass
//
// Memory layout of the histogram buffer (uint32 words):
//
//	[pass 0..Passes)[digit 0..256)           global histograms, then prefix sums
//	[workgroup 0..ScatterBlocks)[digit 0..256) partition status words
package kernel
