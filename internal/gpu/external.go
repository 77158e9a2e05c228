//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/radixsort"
	"github.com/gogpu/radixsort/kernel"
)

// Binding is a bind group over caller-owned key and payload buffers, for
// sorts that stay on the device. The sorter owns the info, histogram and
// auxiliary buffers of a Binding; the caller keeps ownership of the keys
// and payloads.
//
// With an even number of passes the sorted keys and payloads end up back
// in the caller's buffers.
type Binding struct {
	sorter *Sorter
	n      uint32

	info       hal.Buffer
	histograms hal.Buffer
	keysAux    hal.Buffer
	payAux     hal.Buffer
	bindGroup  hal.BindGroup
}

// BufferSize returns the minimum size in bytes of the key and payload
// buffers passed to BindExternal for n keys. The histogram stage writes
// sentinel keys into the tail past n.
func (s *Sorter) BufferSize(n uint32) uint64 {
	return uint64(s.cfg.PaddedSize(n)) * 4
}

// BindExternal prepares a sort of the first n words of keys, carrying the
// words of payloads along. Both buffers need storage usage and at least
// BufferSize(n) bytes. The key count is written once here, so encoding the
// sort later issues no queue writes.
func (s *Sorter) BindExternal(keys, payloads hal.Buffer, n uint32) (*Binding, error) {
	if keys == nil || payloads == nil {
		return nil, fmt.Errorf("gpu: keys and payloads buffers must not be nil")
	}
	if uint64(n) > kernel.CountMask || s.cfg.PaddedSize(n) > kernel.CountMask {
		return nil, fmt.Errorf("%w: %d keys, at most %d", radixsort.ErrCapacity, n, kernel.CountMask)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, radixsort.ErrClosed
	}
	if err := s.initLocked(); err != nil {
		return nil, err
	}

	b := &Binding{sorter: s, n: n}
	storage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	padded := s.BufferSize(n)
	specs := []struct {
		target *hal.Buffer
		label  string
		size   uint64
	}{
		{&b.info, "radix_sort_external_info", kernel.InfoWords * 4},
		{&b.histograms, "radix_sort_external_histograms", uint64(s.cfg.HistogramWords(n)) * 4},
		{&b.keysAux, "radix_sort_external_keys_aux", padded},
		{&b.payAux, "radix_sort_external_payloads_aux", padded},
	}
	for _, spec := range specs {
		buf, err := s.createBuffer(spec.label, spec.size, storage)
		if err != nil {
			b.destroyLocked()
			return nil, fmt.Errorf("gpu: create buffer %s: %w", spec.label, err)
		}
		*spec.target = buf
	}

	bg, err := s.createBindGroup("radix_sort_external_bg", b.info, b.histograms,
		[2]hal.Buffer{keys, b.keysAux}, [2]hal.Buffer{payloads, b.payAux})
	if err != nil {
		b.destroyLocked()
		return nil, err
	}
	b.bindGroup = bg

	var info [kernel.InfoWords]uint32
	info[kernel.InfoNumKeys] = n
	info[kernel.InfoPaddedSize] = s.cfg.PaddedSize(n)
	s.queue.WriteBuffer(b.info, 0, wordsToBytes(info[:]))

	if s.bindings == nil {
		s.bindings = make(map[*Binding]struct{})
	}
	s.bindings[b] = struct{}{}

	slogger().Info("gpu: external buffers bound",
		"keys", n,
		"padded", s.cfg.PaddedSize(n))
	return b, nil
}

// NumKeys returns the number of keys the binding sorts.
func (b *Binding) NumKeys() uint32 { return b.n }

// Encode records the full sort of b into encoder, which must be between
// BeginEncoding and EndEncoding. Nothing is submitted; the caller orders
// the sort with its own passes and submits the command buffer. The
// returned stages list the recorded dispatches.
func (s *Sorter) Encode(encoder hal.CommandEncoder, b *Binding) ([]radixsort.StageStats, error) {
	if encoder == nil {
		return nil, fmt.Errorf("gpu: encoder must not be nil")
	}
	if b == nil || b.sorter != s {
		return nil, fmt.Errorf("gpu: binding does not belong to this sorter")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, radixsort.ErrClosed
	}
	if b.bindGroup == nil {
		return nil, fmt.Errorf("gpu: binding released")
	}
	return s.record(encoder, b.bindGroup, b.n), nil
}

// Release destroys the sorter-owned buffers of the binding. The caller's
// buffers are left alone. Release is safe to call multiple times.
func (b *Binding) Release() {
	s := b.sorter
	s.mu.Lock()
	defer s.mu.Unlock()
	b.destroyLocked()
}

func (b *Binding) destroyLocked() {
	s := b.sorter
	if s.device == nil {
		return
	}
	if b.bindGroup != nil {
		s.device.DestroyBindGroup(b.bindGroup)
		b.bindGroup = nil
	}
	for _, buf := range []*hal.Buffer{&b.info, &b.histograms, &b.keysAux, &b.payAux} {
		if *buf != nil {
			s.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
	delete(s.bindings, b)
}
