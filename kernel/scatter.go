// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import "runtime"

// ScatterEven runs one workgroup of an even digit pass (2*even_pass), moving
// keys and payloads from buffer A to buffer B. Workgroup 0 hands the pass
// index to the following odd dispatch.
//
// It returns false when the workgroup gave up waiting for a predecessor, or
// when the sort had already failed; such a workgroup writes nothing.
//
// Dispatch with Config.ScatterBlocks(num_keys) workgroups.
func ScatterEven(b *Buffers, wg uint32) bool {
	even := b.Info.EvenPass.Load()
	if wg == 0 {
		b.Info.OddPass.Store(even)
	}
	return scatter(b, wg, 2*even, BufferA, BufferB)
}

// ScatterOdd runs one workgroup of an odd digit pass (2*odd_pass+1), moving
// keys and payloads from buffer B back to buffer A. Workgroup 0 advances the
// even counter for the next pass pair.
func ScatterOdd(b *Buffers, wg uint32) bool {
	odd := b.Info.OddPass.Load()
	if wg == 0 {
		b.Info.EvenPass.Store((odd + 1) % 2)
	}
	return scatter(b, wg, 2*odd+1, BufferB, BufferA)
}

func scatter(b *Buffers, wg, pass uint32, src, dst int) bool {
	if b.Info.Failed() {
		return false
	}
	cfg := b.Config
	blockKeys := cfg.ScatterBlockKeys()
	base := wg * blockKeys
	if base >= b.Info.PaddedSize.Load() {
		return true
	}

	mem := acquireMemory(cfg)
	defer releaseMemory(cfg, mem)
	kv, pv := mem.keys, mem.payloads
	copy(kv, b.Keys[src][base:base+blockKeys])
	copy(pv, b.Payloads[src][base:base+blockKeys])

	// local holds the tile histogram once ranking is done.
	local := rankTile(cfg, mem, pass)
	kr := mem.ranks

	var exclusive [RadixSize]uint32
	if wg == 0 {
		// Fold the global exclusive prefix into the published counts so that
		// every resolved prefix is an absolute destination base.
		for d := range uint32(RadixSize) {
			g := b.Histograms[pass*RadixSize+d].Load()
			exclusive[d] = g
			b.partition(0, d).Store(PackStatus(StatusPrefix, g+local[d], pass))
		}
	} else {
		for d := range uint32(RadixSize) {
			b.partition(wg, d).Store(PackStatus(StatusAggregate, local[d], pass))
		}
		// One lane per digit resolves the exclusive count by walking back.
		for d := range uint32(RadixSize) {
			sum, ok := lookBack(b, wg, d, pass)
			if !ok {
				return false
			}
			exclusive[d] = sum
			b.partition(wg, d).Store(PackStatus(StatusPrefix, sum+local[d], pass))
		}
	}

	keys, payloads := b.Keys[dst], b.Payloads[dst]
	for i, k := range kv {
		idx := exclusive[Digit(k, pass)] + kr[i] - 1
		keys[idx] = k
		payloads[idx] = pv[i]
	}
	return true
}

// rankTile computes into m.ranks the stable local rank of every element of
// the scatter tile in m.keys. Rows are processed in order. Within a row, each
// lane counts the lanes of its subgroup span holding the same digit; the last
// lane of a digit in the span then folds the span count into the running
// tile histogram, which is returned.
func rankTile(cfg Config, m *workgroupMemory, pass uint32) [RadixSize]uint32 {
	wgSize := cfg.ScatterWorkgroupSize
	span := cfg.SubgroupSize
	kv, kr := m.keys, m.ranks
	digits, counts, ranks := m.digits, m.counts, m.laneRanks

	var running [RadixSize]uint32
	for row := range cfg.ScatterBlockRows {
		off := row * wgSize
		for lane := range wgSize {
			digits[lane] = Digit(kv[off+lane], pass)
		}

		for start := uint32(0); start < wgSize; start += span {
			end := start + span
			for lane := start; lane < end; lane++ {
				d := digits[lane]
				var count, rank uint32
				for j := start; j < end; j++ {
					if digits[j] == d {
						count++
						if j <= lane {
							rank++
						}
					}
				}
				counts[lane] = count
				ranks[lane] = rank
				kr[off+lane] = running[d] + rank
			}
			// barrier
			for lane := start; lane < end; lane++ {
				if ranks[lane] == counts[lane] {
					running[digits[lane]] += counts[lane]
				}
			}
		}
	}
	return running
}

// lookBack walks the partition slots of digit d backwards from wg-1,
// summing aggregates until it reaches a prefix. Every wait on an unpublished
// slot counts against the spin budget; exhausting it, or observing that
// another workgroup already failed, aborts the walk.
func lookBack(b *Buffers, wg, d, pass uint32) (uint32, bool) {
	var sum, spins uint32
	prev := wg - 1
	for {
		status, count := UnpackStatus(b.partition(prev, d).Load(), pass)
		switch {
		case status == StatusPrefix:
			return sum + count, true
		case status == StatusAggregate && prev > 0:
			sum += count
			prev--
			continue
		}

		if b.Info.Failed() {
			return 0, false
		}
		spins++
		if spins > b.Config.SpinBudget {
			b.Info.SortFailed.Store(1)
			return 0, false
		}
		runtime.Gosched()
	}
}
