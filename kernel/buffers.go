// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"fmt"
	"sync/atomic"
)

// Buffer indices of the ping-pong key and payload buffers.
const (
	BufferA = 0
	BufferB = 1
)

// Word offsets of the GeneralInfo fields in the GPU info buffer.
const (
	InfoNumKeys = iota
	InfoPaddedSize
	InfoEvenPass
	InfoOddPass
	InfoSortFailed

	// InfoWords is the length of the info buffer in words.
	InfoWords
)

// GeneralInfo is the control record shared by all stages.
type GeneralInfo struct {
	NumKeys    atomic.Uint32
	PaddedSize atomic.Uint32
	EvenPass   atomic.Uint32
	OddPass    atomic.Uint32
	SortFailed atomic.Uint32
}

// Words returns the record in GPU buffer order.
func (g *GeneralInfo) Words() [InfoWords]uint32 {
	return [InfoWords]uint32{
		InfoNumKeys:    g.NumKeys.Load(),
		InfoPaddedSize: g.PaddedSize.Load(),
		InfoEvenPass:   g.EvenPass.Load(),
		InfoOddPass:    g.OddPass.Load(),
		InfoSortFailed: g.SortFailed.Load(),
	}
}

// Failed reports whether any workgroup flagged the sort as failed.
func (g *GeneralInfo) Failed() bool {
	return g.SortFailed.Load() != 0
}

// Buffers is the device memory of one sorter: the info record, the
// histogram/partition region and the ping-pong key and payload buffers.
//
// Buffers are sized once for a capacity and reused by every sort whose
// padded size fits.
type Buffers struct {
	Config Config
	Info   GeneralInfo

	Histograms []atomic.Uint32
	Keys       [2][]uint32
	Payloads   [2][]uint32

	capacity uint32
}

// NewBuffers allocates buffers able to sort up to capacity keys.
func NewBuffers(cfg Config, capacity uint32) *Buffers {
	padded := cfg.PaddedSize(capacity)
	b := &Buffers{
		Config:     cfg,
		Histograms: make([]atomic.Uint32, cfg.HistogramWords(capacity)),
		capacity:   capacity,
	}
	for i := range b.Keys {
		b.Keys[i] = make([]uint32, padded)
		b.Payloads[i] = make([]uint32, padded)
	}
	return b
}

// Capacity returns the largest key count the buffers can hold.
func (b *Buffers) Capacity() uint32 {
	return b.capacity
}

// Load copies keys and payloads into buffer A and writes num_keys and
// padded_size into the info record. A nil payloads slice loads the identity
// permutation. Slots past len(keys) are left as they are; the histogram
// stage overwrites stale keys with SentinelKey.
func (b *Buffers) Load(keys, payloads []uint32) error {
	n := len(keys)
	if uint64(n) > uint64(b.capacity) {
		return fmt.Errorf("load %d keys into buffers of capacity %d", n, b.capacity)
	}
	if payloads != nil && len(payloads) != n {
		return fmt.Errorf("load %d payloads for %d keys", len(payloads), n)
	}

	copy(b.Keys[BufferA], keys)
	if payloads != nil {
		copy(b.Payloads[BufferA], payloads)
	} else {
		for i := range n {
			b.Payloads[BufferA][i] = uint32(i)
		}
	}

	b.Info.NumKeys.Store(uint32(n))
	b.Info.PaddedSize.Store(b.Config.PaddedSize(uint32(n)))
	return nil
}

// Result returns the buffer holding the sorted keys and payloads after all
// passes: B after an odd number of passes, A otherwise.
func (b *Buffers) Result() int {
	if b.Config.Passes%2 == 1 {
		return BufferB
	}
	return BufferA
}

// HistogramRow returns the global histogram (or, after the prefix stage, the
// exclusive prefix sums) of one pass.
func (b *Buffers) HistogramRow(pass uint32) [RadixSize]uint32 {
	var row [RadixSize]uint32
	base := pass * RadixSize
	for d := range row {
		row[d] = b.Histograms[base+uint32(d)].Load()
	}
	return row
}

// partition returns the status slot of (workgroup, digit).
func (b *Buffers) partition(wg, digit uint32) *atomic.Uint32 {
	return &b.Histograms[b.Config.PartitionBase()+wg*RadixSize+digit]
}
