//go:build !nogpu

// Package gpu runs the radix sort pipeline as WGSL compute shaders.
//
// This is the internal implementation behind the public gpu package. It
// leverages gogpu/wgpu HAL devices (Vulkan, Metal, DX12 or the noop device
// used in tests) and mirrors the CPU reference kernels in package kernel:
// the same GeneralInfo record, histogram/partition memory layout and
// partition status encoding.
//
// # Pipelines
//
// One shader module provides five entry points, each compiled into its own
// compute pipeline sharing one bind group layout:
//
//	zero_histograms -> calculate_histogram -> prefix_histogram -> scatter_even/scatter_odd x passes
//
// All stages of a sort are recorded into a single command buffer, one
// compute pass per dispatch, followed by copies into mappable staging
// buffers. The host waits on a fence and reads back keys, payloads and the
// info record; a set sort_failed word is reported as radixsort.ErrSortFailed.
package gpu
