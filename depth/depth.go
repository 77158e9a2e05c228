// Package depth orders points by view depth with a radixsort.Engine.
//
// Depths are float32 distances along the camera's forward axis. Key maps
// them to uint32 keys whose unsigned order matches the float order, so a
// radix sort of the keys yields the depth order of the points. The
// permutation returned by Sorter.Sort holds the original index of every
// point, ready to be bound as an index buffer for drawing.
package depth

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/radixsort"
	"github.com/gogpu/radixsort/kernel"
)

const signBit = 1 << 31

// Key encodes depth as a key that sorts front to back. Negative depths
// (behind the camera) sort first, NaN maps to the sentinel key and sorts
// last.
func Key(depth float32) uint32 {
	if depth != depth {
		return kernel.SentinelKey
	}
	bits := math.Float32bits(depth)
	if bits&signBit != 0 {
		return ^bits
	}
	return bits | signBit
}

// BackToFrontKey encodes depth as a key that sorts far to near, the order
// used for alpha blending. NaN still maps to the sentinel.
func BackToFrontKey(depth float32) uint32 {
	if depth != depth {
		return kernel.SentinelKey
	}
	return ^Key(depth)
}

// Key16 is the high half of key, for engines configured with
// radixsort.WithKeyBits(16). Precision drops to the top 16 bits of the
// float encoding.
func Key16(key uint32) uint32 {
	return key >> 16
}

// resortThreshold is the cosine between consecutive camera forward
// vectors above which the previous order is kept.
const resortThreshold = 0.9999

// Option configures a Sorter.
type Option func(*Sorter)

// WithBackToFront sorts far points first.
func WithBackToFront() Option {
	return func(s *Sorter) {
		s.backToFront = true
	}
}

// WithKeyBits must match the radixsort.WithKeyBits of the engine. With 16,
// keys are reduced by Key16.
func WithKeyBits(bits uint32) Option {
	return func(s *Sorter) {
		s.keyBits = bits
	}
}

// Sorter orders points by depth once per frame, skipping frames where
// the camera direction did not change.
type Sorter struct {
	mu     sync.Mutex
	engine radixsort.Engine

	backToFront bool
	keyBits     uint32

	count       uint32
	lastForward [3]float32
	hasForward  bool

	keys []uint32
}

// NewSorter creates a depth sorter on engine. The engine stays owned by
// the caller.
func NewSorter(engine radixsort.Engine, opts ...Option) (*Sorter, error) {
	if engine == nil {
		return nil, fmt.Errorf("depth: engine must not be nil")
	}
	s := &Sorter{engine: engine, keyBits: 32}
	for _, opt := range opts {
		opt(s)
	}
	if s.keyBits != 16 && s.keyBits != 32 {
		return nil, fmt.Errorf("%w: key bits must be 16 or 32, got %d", radixsort.ErrInvalidConfig, s.keyBits)
	}
	return s, nil
}

// NeedsSort reports whether the camera turned enough since the last
// sorted frame for the order to change, and records forward when it did.
// The first call always returns true.
func (s *Sorter) NeedsSort(forward [3]float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasForward {
		last := s.lastForward
		dot := last[0]*forward[0] + last[1]*forward[1] + last[2]*forward[2]
		if dot > resortThreshold {
			return false
		}
	}
	s.lastForward = forward
	s.hasForward = true
	return true
}

// ForceSort makes the next NeedsSort return true, for example after new
// points were loaded.
func (s *Sorter) ForceSort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasForward = false
}

// Count returns the number of points of the last Prepare or Sort.
func (s *Sorter) Count() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Prepare sizes the engine for count points when it supports preallocation.
func (s *Sorter) Prepare(count uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.engine.(interface{ Prepare(uint32) error }); ok {
		if err := p.Prepare(count); err != nil {
			return fmt.Errorf("depth: prepare %d points: %w", count, err)
		}
	}
	s.count = count
	return nil
}

// Sort returns the indices of depths in depth order. Points with equal
// keys keep their input order.
func (s *Sorter) Sort(ctx context.Context, depths []float32) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys = s.keys[:0]
	for _, d := range depths {
		s.keys = append(s.keys, s.encode(d))
	}
	res, err := s.engine.Sort(ctx, s.keys, nil)
	if err != nil {
		return nil, fmt.Errorf("depth: sort %d points: %w", len(depths), err)
	}
	s.count = uint32(len(depths))
	return res.Payloads, nil
}

func (s *Sorter) encode(d float32) uint32 {
	k := Key(d)
	if s.backToFront {
		k = BackToFrontKey(d)
	}
	if s.keyBits == 16 {
		k = Key16(k)
	}
	return k
}
