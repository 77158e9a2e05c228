// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

// Zero clears a grid-strided share of the histogram and partition region.
// Workgroup 0 also resets the failure flag and both pass counters.
//
// Dispatch with Config.ZeroWorkgroups(num_keys) workgroups.
func Zero(b *Buffers, wg uint32) {
	cfg := b.Config
	n := b.Info.NumKeys.Load()
	if wg == 0 {
		b.Info.SortFailed.Store(0)
		b.Info.EvenPass.Store(0)
		b.Info.OddPass.Store(0)
	}

	words := cfg.HistogramWords(n)
	stride := cfg.ZeroWorkgroups(n) * cfg.HistogramWorkgroupSize
	for lane := range cfg.HistogramWorkgroupSize {
		for i := wg*cfg.HistogramWorkgroupSize + lane; i < words; i += stride {
			b.Histograms[i].Store(0)
		}
	}
}

// Histogram counts the digits of one histogram tile for every pass and adds
// the counts to the global histogram rows. Keys of the tile at or past
// num_keys are overwritten with SentinelKey first, so stale data from a
// previous, larger sort never reaches the scatter stage.
//
// Dispatch with Config.HistogramBlocks(num_keys) workgroups.
func Histogram(b *Buffers, wg uint32) {
	cfg := b.Config
	n := b.Info.NumKeys.Load()
	base := wg * cfg.HistogramBlockKeys()
	if base >= b.Info.PaddedSize.Load() {
		return
	}

	// Per-lane registers, row-major: kv[row*wgSize+lane].
	kv := make([]uint32, cfg.HistogramBlockKeys())
	keys := b.Keys[BufferA]
	for i := range kv {
		idx := base + uint32(i)
		if idx >= n {
			keys[idx] = SentinelKey
		}
		kv[i] = keys[idx]
	}

	// Lanes of one workgroup run in program order, so the shared
	// accumulator needs no atomics here.
	var smem [RadixSize]uint32
	for pass := range cfg.Passes {
		clear(smem[:])
		for _, k := range kv {
			smem[Digit(k, pass)]++
		}
		row := b.Histograms[pass*RadixSize : (pass+1)*RadixSize]
		for d, c := range smem {
			if c != 0 {
				row[d].Add(c)
			}
		}
	}
}

// Prefix turns the global histogram of pass wg into exclusive prefix sums
// with a work-efficient (Blelloch) scan. Each of the PrefixWorkgroupSize
// lanes owns two buckets.
//
// Dispatch with Config.Passes workgroups.
func Prefix(b *Buffers, wg uint32) {
	cfg := b.Config
	if wg >= cfg.Passes {
		return
	}
	row := b.Histograms[wg*RadixSize : (wg+1)*RadixSize]

	var smem [RadixSize]uint32
	for i := range smem {
		smem[i] = row[i].Load()
	}
	lanes := cfg.PrefixWorkgroupSize

	// Up-sweep: build partial sums in place.
	offset := uint32(1)
	for d := uint32(RadixSize >> 1); d > 0; d >>= 1 {
		for lane := range min(lanes, d) {
			ai := offset*(2*lane+1) - 1
			bi := offset*(2*lane+2) - 1
			smem[bi] += smem[ai]
		}
		offset <<= 1
	}

	// Down-sweep from a cleared root.
	smem[RadixSize-1] = 0
	for d := uint32(1); d < RadixSize; d <<= 1 {
		offset >>= 1
		for lane := range min(lanes, d) {
			ai := offset*(2*lane+1) - 1
			bi := offset*(2*lane+2) - 1
			t := smem[ai]
			smem[ai] = smem[bi]
			smem[bi] += t
		}
	}

	for i := range row {
		row[i].Store(smem[i])
	}
}
