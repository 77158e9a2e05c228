// Package radixsort sorts 32-bit keys with companion 32-bit payloads using
// the device-wide radix sort designed for GPU compute: per-pass digit
// histograms, an exclusive prefix scan, and a scatter that resolves global
// offsets through decoupled look-back.
//
// # Quick Start
//
//	import "github.com/gogpu/radixsort"
//
//	s, err := radixsort.NewSorter()
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	res, err := s.Sort(ctx, keys, payloads)
//	if errors.Is(err, radixsort.ErrSortFailed) {
//	    // retry or fall back
//	}
//
// # Backends
//
// Sorter runs the compute kernels of package kernel on CPU workers, one
// goroutine per workgroup in flight. Package gpu runs the same pipeline as
// WGSL compute shaders through gogpu/wgpu. Both implement Engine.
//
// # Guarantees
//
// Sorting is ascending on the unsigned key, stable, and payloads follow their
// keys. Sorting is 8 bits per pass: four passes for 32-bit keys, two for
// 16-bit keys (WithKeyBits). The key 0xFFFFFFFF is used internally to pad
// buffers; it may still be used as a user key and sorts last.
//
// # Failure
//
// Workgroups of a scatter pass wait on their predecessors for a bounded
// number of polls (WithSpinBudget). When the budget is exhausted the sort is
// flagged as failed instead of hanging, and Sort returns ErrSortFailed.
package radixsort
