// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/radixsort"
	"github.com/gogpu/radixsort/kernel"
)

// fenceTimeout is the maximum time to wait for a sort to complete.
const fenceTimeout = 5 * time.Second

// Binding indices of the shader's storage buffers.
const (
	bindingInfo uint32 = iota
	bindingHistograms
	bindingKeysA
	bindingKeysB
	bindingPayloadsA
	bindingPayloadsB
	bindingCount
)

// Sorter runs the radix sort pipeline on a HAL device.
//
// Pipelines are created lazily by Init (or the first Sort). Device buffers
// are sized for the largest sort so far and reused. A Sorter serializes
// sorts and is safe for concurrent use.
type Sorter struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue
	cfg    kernel.Config

	// instance is set when the sorter opened its own device.
	instance       hal.Instance
	externalDevice bool

	module     hal.ShaderModule
	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipelines  [stageCount]hal.ComputePipeline

	initialized bool
	closed      bool

	bufs     *deviceBuffers
	bindings map[*Binding]struct{}
}

var _ radixsort.Engine = (*Sorter)(nil)

// NewSorter creates a sorter on an existing device and queue. The device
// is not owned: Close leaves it open.
func NewSorter(device hal.Device, queue hal.Queue, opts ...radixsort.Option) (*Sorter, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("gpu: device and queue must not be nil")
	}
	cfg, err := radixsort.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	if err := validateDeviceConfig(cfg); err != nil {
		return nil, err
	}
	return &Sorter{
		device:         device,
		queue:          queue,
		cfg:            cfg,
		externalDevice: true,
	}, nil
}

// Config returns the launch configuration of the sorter.
func (s *Sorter) Config() kernel.Config {
	return s.cfg
}

// Init compiles the shader and creates the five compute pipelines.
// Calling Init on an initialized sorter is a no-op.
func (s *Sorter) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return radixsort.ErrClosed
	}
	return s.initLocked()
}

func (s *Sorter) initLocked() error {
	if s.initialized {
		return nil
	}

	src := ShaderSource(s.cfg)
	module, err := s.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "radix_sort",
		Source: hal.ShaderSource{WGSL: src},
	})
	if err != nil {
		return fmt.Errorf("gpu: create shader module: %w", err)
	}
	s.module = module

	entries := make([]gputypes.BindGroupLayoutEntry, bindingCount)
	for i := range entries {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}
	bgLayout, err := s.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "radix_sort_bgl",
		Entries: entries,
	})
	if err != nil {
		s.destroyPartialInit()
		return fmt.Errorf("gpu: create bind group layout: %w", err)
	}
	s.bgLayout = bgLayout

	pipeLayout, err := s.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "radix_sort_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		s.destroyPartialInit()
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}
	s.pipeLayout = pipeLayout

	for i, entry := range entryPoints {
		stage := radixsort.Stage(i)
		pipeline, err := s.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  "radix_sort_" + stage.String(),
			Layout: pipeLayout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: entry,
			},
		})
		if err != nil {
			s.destroyPartialInit()
			return fmt.Errorf("gpu: create compute pipeline for %s: %w", stage, err)
		}
		s.pipelines[i] = pipeline
	}

	slogger().Info("gpu: radix sort pipelines initialized",
		"stages", stageCount,
		"passes", s.cfg.Passes,
		"shader_bytes", len(src))

	s.initialized = true
	return nil
}

// destroyPartialInit releases whatever initLocked created so far.
func (s *Sorter) destroyPartialInit() {
	for i, p := range s.pipelines {
		if p != nil {
			s.device.DestroyComputePipeline(p)
			s.pipelines[i] = nil
		}
	}
	if s.pipeLayout != nil {
		s.device.DestroyPipelineLayout(s.pipeLayout)
		s.pipeLayout = nil
	}
	if s.bgLayout != nil {
		s.device.DestroyBindGroupLayout(s.bgLayout)
		s.bgLayout = nil
	}
	if s.module != nil {
		s.device.DestroyShaderModule(s.module)
		s.module = nil
	}
}

// Close releases all GPU resources. A device opened by OpenDefault is
// destroyed too. Close is safe to call multiple times.
func (s *Sorter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	for b := range s.bindings {
		b.destroyLocked()
	}
	s.destroyBuffers()
	s.destroyPartialInit()
	s.initialized = false

	if !s.externalDevice && s.device != nil {
		s.device.Destroy()
	}
	if s.instance != nil {
		s.instance.Destroy()
		s.instance = nil
	}
	s.device = nil
	s.queue = nil
}

// deviceBuffers holds the storage buffers of one capacity together with
// their staging copies and bind group.
type deviceBuffers struct {
	capacity uint32

	info       hal.Buffer
	histograms hal.Buffer
	keys       [2]hal.Buffer
	payloads   [2]hal.Buffer

	// Mappable copies of info and the final keys and payloads.
	stagingInfo     hal.Buffer
	stagingKeys     hal.Buffer
	stagingPayloads hal.Buffer

	bindGroup hal.BindGroup
}

// createBuffer creates a single GPU buffer with a minimum size guarantee.
func (s *Sorter) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	const minBufSize = 4
	if size < minBufSize {
		size = minBufSize
	}
	return s.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}

// ensureBuffers makes sure the device buffers hold n keys.
func (s *Sorter) ensureBuffers(n uint32) error {
	if s.bufs != nil && n <= s.bufs.capacity {
		return nil
	}
	s.destroyBuffers()

	storage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	staging := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	padded := uint64(s.cfg.PaddedSize(n)) * 4
	b := &deviceBuffers{capacity: n}
	specs := []struct {
		target *hal.Buffer
		label  string
		size   uint64
		usage  gputypes.BufferUsage
	}{
		{&b.info, "radix_sort_info", kernel.InfoWords * 4, storage},
		{&b.histograms, "radix_sort_histograms", uint64(s.cfg.HistogramWords(n)) * 4, storage},
		{&b.keys[kernel.BufferA], "radix_sort_keys_a", padded, storage},
		{&b.keys[kernel.BufferB], "radix_sort_keys_b", padded, storage},
		{&b.payloads[kernel.BufferA], "radix_sort_payloads_a", padded, storage},
		{&b.payloads[kernel.BufferB], "radix_sort_payloads_b", padded, storage},
		{&b.stagingInfo, "radix_sort_info_staging", kernel.InfoWords * 4, staging},
		{&b.stagingKeys, "radix_sort_keys_staging", uint64(n) * 4, staging},
		{&b.stagingPayloads, "radix_sort_payloads_staging", uint64(n) * 4, staging},
	}
	for _, spec := range specs {
		buf, err := s.createBuffer(spec.label, spec.size, spec.usage)
		if err != nil {
			s.bufs = b
			s.destroyBuffers()
			return fmt.Errorf("gpu: create buffer %s: %w", spec.label, err)
		}
		*spec.target = buf
	}

	bg, err := s.createBindGroup("radix_sort_bg", b.info, b.histograms, b.keys, b.payloads)
	if err != nil {
		s.bufs = b
		s.destroyBuffers()
		return err
	}
	b.bindGroup = bg
	s.bufs = b

	slogger().Info("gpu: buffers allocated",
		"capacity", n,
		"padded", s.cfg.PaddedSize(n),
		"histogram_words", s.cfg.HistogramWords(n))
	return nil
}

// createBindGroup binds the six storage buffers in shader binding order.
func (s *Sorter) createBindGroup(label string, info, histograms hal.Buffer, keys, payloads [2]hal.Buffer) (hal.BindGroup, error) {
	entry := func(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: 0},
		}
	}
	bg, err := s.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label,
		Layout: s.bgLayout,
		Entries: []gputypes.BindGroupEntry{
			entry(bindingInfo, info),
			entry(bindingHistograms, histograms),
			entry(bindingKeysA, keys[kernel.BufferA]),
			entry(bindingKeysB, keys[kernel.BufferB]),
			entry(bindingPayloadsA, payloads[kernel.BufferA]),
			entry(bindingPayloadsB, payloads[kernel.BufferB]),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group %s: %w", label, err)
	}
	return bg, nil
}

func (s *Sorter) destroyBuffers() {
	b := s.bufs
	if b == nil {
		return
	}
	if b.bindGroup != nil {
		s.device.DestroyBindGroup(b.bindGroup)
	}
	for _, buf := range []hal.Buffer{
		b.info, b.histograms,
		b.keys[0], b.keys[1], b.payloads[0], b.payloads[1],
		b.stagingInfo, b.stagingKeys, b.stagingPayloads,
	} {
		if buf != nil {
			s.device.DestroyBuffer(buf)
		}
	}
	s.bufs = nil
}

// Sort sorts keys ascending on the device and carries payloads along. A nil
// payloads slice sorts the identity permutation.
//
// All stages are submitted in one command buffer, so ctx is only checked
// before submission. Result.Stages lists the recorded dispatches without
// per-stage timings.
func (s *Sorter) Sort(ctx context.Context, keys, payloads []uint32) (*radixsort.Result, error) {
	if payloads != nil && len(payloads) != len(keys) {
		return nil, fmt.Errorf("%w: %d keys, %d payloads", radixsort.ErrLength, len(keys), len(payloads))
	}
	if uint64(len(keys)) > kernel.CountMask || s.cfg.PaddedSize(uint32(len(keys))) > kernel.CountMask {
		return nil, fmt.Errorf("%w: %d keys, at most %d", radixsort.ErrCapacity, len(keys), kernel.CountMask)
	}
	n := uint32(len(keys))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, radixsort.ErrClosed
	}
	if err := s.initLocked(); err != nil {
		return nil, err
	}
	if err := s.ensureBuffers(n); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gpu: %w", err)
	}

	begin := time.Now()
	s.upload(keys, payloads)

	res := &radixsort.Result{
		NumKeys:    n,
		PaddedSize: s.cfg.PaddedSize(n),
	}
	out := kernel.BufferA
	if s.cfg.Passes%2 == 1 {
		out = kernel.BufferB
	}

	run := &dispatchResources{device: s.device}
	defer run.cleanup()
	if err := s.encode(run, res, out); err != nil {
		return nil, err
	}
	if err := s.submitAndWait(run); err != nil {
		return nil, err
	}

	info, err := s.readWords(s.bufs.stagingInfo, kernel.InfoWords)
	if err != nil {
		return nil, err
	}
	if res.Keys, err = s.readWords(s.bufs.stagingKeys, n); err != nil {
		return nil, err
	}
	if res.Payloads, err = s.readWords(s.bufs.stagingPayloads, n); err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(begin)

	slogger().Debug("gpu: sort complete",
		"keys", n,
		"dispatches", len(res.Stages),
		"elapsed", res.Elapsed)

	if info[kernel.InfoSortFailed] != 0 {
		res.Failed = true
		slogger().Warn("gpu: sort failed", "keys", n)
		return res, fmt.Errorf("gpu: %w (%d keys)", radixsort.ErrSortFailed, n)
	}
	return res, nil
}

// upload writes the info record, keys and payloads into buffer A.
func (s *Sorter) upload(keys, payloads []uint32) {
	n := uint32(len(keys))
	var info [kernel.InfoWords]uint32
	info[kernel.InfoNumKeys] = n
	info[kernel.InfoPaddedSize] = s.cfg.PaddedSize(n)
	s.queue.WriteBuffer(s.bufs.info, 0, wordsToBytes(info[:]))

	if n == 0 {
		return
	}
	if payloads == nil {
		payloads = make([]uint32, n)
		for i := range payloads {
			payloads[i] = uint32(i)
		}
	}
	s.queue.WriteBuffer(s.bufs.keys[kernel.BufferA], 0, wordsToBytes(keys))
	s.queue.WriteBuffer(s.bufs.payloads[kernel.BufferA], 0, wordsToBytes(payloads))
}

// encode records every dispatch and the staging copies into a command
// buffer, appending the dispatch list to res.Stages.
func (s *Sorter) encode(run *dispatchResources, res *radixsort.Result, out int) error {
	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "radix_sort",
	})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("radix_sort"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}

	n := res.NumKeys
	res.Stages = append(res.Stages, s.record(encoder, s.bufs.bindGroup, n)...)

	encoder.CopyBufferToBuffer(s.bufs.info, s.bufs.stagingInfo, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: kernel.InfoWords * 4},
	})
	if n > 0 {
		size := uint64(n) * 4
		encoder.CopyBufferToBuffer(s.bufs.keys[out], s.bufs.stagingKeys, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: size},
		})
		encoder.CopyBufferToBuffer(s.bufs.payloads[out], s.bufs.stagingPayloads, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: size},
		})
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	run.cmdBuf = cmdBuf
	return nil
}

// record encodes one compute pass per non-empty dispatch of the plan for
// n keys and returns the planned stages.
func (s *Sorter) record(encoder hal.CommandEncoder, bg hal.BindGroup, n uint32) []radixsort.StageStats {
	ds := s.plan(n)
	stages := make([]radixsort.StageStats, 0, len(ds))
	for _, d := range ds {
		stages = append(stages, radixsort.StageStats{
			Stage:      d.stage,
			Pass:       d.pass,
			Workgroups: d.groups,
		})
		if d.groups == 0 {
			continue
		}
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
			Label: "radix_sort_" + d.stage.String(),
		})
		pass.SetPipeline(s.pipelines[d.stage])
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(d.groups, 1, 1)
		pass.End()

		slogger().Debug("gpu: dispatch recorded",
			"stage", d.stage.String(),
			"pass", d.pass,
			"workgroups", d.groups)
	}
	return stages
}

// stageDispatch is one planned compute pass.
type stageDispatch struct {
	stage  radixsort.Stage
	pass   uint32
	groups uint32
}

// plan returns the dispatch sequence for n keys. It matches the CPU
// sorter: zero, histogram, prefix, then alternating scatters.
func (s *Sorter) plan(n uint32) []stageDispatch {
	cfg := s.cfg
	ds := []stageDispatch{
		{stage: radixsort.StageZero, groups: cfg.ZeroWorkgroups(n)},
		{stage: radixsort.StageHistogram, groups: cfg.HistogramBlocks(n)},
		{stage: radixsort.StagePrefix, groups: cfg.Passes},
	}
	for pass := range cfg.Passes {
		stage := radixsort.StageScatterEven
		if pass%2 == 1 {
			stage = radixsort.StageScatterOdd
		}
		ds = append(ds, stageDispatch{stage: stage, pass: pass, groups: cfg.ScatterBlocks(n)})
	}
	return ds
}

// dispatchResources tracks per-sort GPU resources for cleanup.
type dispatchResources struct {
	device hal.Device
	cmdBuf hal.CommandBuffer
	fence  hal.Fence
}

// cleanup destroys all tracked per-sort resources.
func (r *dispatchResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
}

// submitAndWait submits the command buffer and waits for GPU completion.
func (s *Sorter) submitAndWait(run *dispatchResources) error {
	fence, err := s.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	run.fence = fence

	if err := s.queue.Submit([]hal.CommandBuffer{run.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}
	ok, err := s.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("gpu: GPU timeout after %v", fenceTimeout)
	}
	return nil
}

// readWords reads n little-endian words from a staging buffer.
func (s *Sorter) readWords(buf hal.Buffer, n uint32) ([]uint32, error) {
	out := make([]uint32, n)
	if n == 0 {
		return out, nil
	}
	raw := make([]byte, uint64(n)*4)
	if err := s.queue.ReadBuffer(buf, 0, raw); err != nil {
		return nil, fmt.Errorf("gpu: readback: %w", err)
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
