// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import "sync"

// workgroupMemory is the private and shared memory of one scatter
// workgroup: the tile held in registers plus the ranking arrays.
type workgroupMemory struct {
	keys     []uint32
	payloads []uint32
	ranks    []uint32 // 1-based rank of each tile element within its digit

	// Per-lane arrays of the row being ranked.
	digits    []uint32
	counts    []uint32
	laneRanks []uint32
}

// memoryShape identifies a tile geometry. Pools are kept per shape so that
// sorters with different configurations never share buffers of the wrong
// size.
type memoryShape struct {
	lanes, rows uint32
}

// memoryPools maps memoryShape to *sync.Pool of *workgroupMemory.
var memoryPools sync.Map

func poolFor(shape memoryShape) *sync.Pool {
	if p, ok := memoryPools.Load(shape); ok {
		return p.(*sync.Pool)
	}
	p := &sync.Pool{
		New: func() any {
			n := shape.lanes * shape.rows
			return &workgroupMemory{
				keys:      make([]uint32, n),
				payloads:  make([]uint32, n),
				ranks:     make([]uint32, n),
				digits:    make([]uint32, shape.lanes),
				counts:    make([]uint32, shape.lanes),
				laneRanks: make([]uint32, shape.lanes),
			}
		},
	}
	actual, _ := memoryPools.LoadOrStore(shape, p)
	return actual.(*sync.Pool)
}

// acquireMemory returns workgroup memory for the scatter tile of cfg. The
// contents are stale; every kernel overwrites what it reads.
func acquireMemory(cfg Config) *workgroupMemory {
	return poolFor(scatterShape(cfg)).Get().(*workgroupMemory)
}

// releaseMemory returns m to the pool of cfg's tile shape.
func releaseMemory(cfg Config, m *workgroupMemory) {
	poolFor(scatterShape(cfg)).Put(m)
}

func scatterShape(cfg Config) memoryShape {
	return memoryShape{lanes: cfg.ScatterWorkgroupSize, rows: cfg.ScatterBlockRows}
}
