package radixsort

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/radixsort/internal/parallel"
	"github.com/gogpu/radixsort/kernel"
)

// Engine sorts key/payload pairs. It is implemented by the CPU Sorter in this
// package and by the GPU sorter in package gpu.
type Engine interface {
	// Sort returns the keys in ascending order, each payload following its
	// key, equal keys keeping their input order. A nil payloads slice sorts
	// the identity permutation.
	Sort(ctx context.Context, keys, payloads []uint32) (*Result, error)

	// Close releases the engine's resources.
	Close()
}

// Sorter runs the radix sort pipeline on CPU workers. Each stage is one
// dispatch of a kernel from package kernel, with workgroups executed
// concurrently and a global barrier between dispatches.
//
// A Sorter owns its buffers and serializes sorts. It is safe for concurrent
// use.
type Sorter struct {
	mu         sync.Mutex
	cfg        kernel.Config
	dispatcher *parallel.Dispatcher
	bufs       *kernel.Buffers
	closed     bool

	// lastPadded is the padded size of the last sort if it succeeded, else 0.
	lastPadded uint32
}

var _ Engine = (*Sorter)(nil)

// NewSorter creates a sorter. Buffers are allocated on first use or by
// Prepare.
func NewSorter(opts ...Option) (*Sorter, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	var dopts []parallel.DispatcherOption
	if o.order != nil {
		dopts = append(dopts, parallel.WithLaunchOrder(o.order))
	}
	return &Sorter{
		cfg:        o.cfg,
		dispatcher: parallel.NewDispatcher(o.workers, dopts...),
	}, nil
}

// Config returns the launch configuration of the sorter.
func (s *Sorter) Config() kernel.Config {
	return s.cfg
}

// Prepare allocates buffers for sorts of up to capacity keys. Buffers are
// kept while later sorts fit and grown on demand.
func (s *Sorter) Prepare(capacity uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.prepareLocked(capacity)
}

func (s *Sorter) prepareLocked(n uint32) error {
	if s.bufs != nil && n <= s.bufs.Capacity() {
		return nil
	}
	if err := checkCapacity(s.cfg, uint64(n)); err != nil {
		return err
	}

	s.bufs = kernel.NewBuffers(s.cfg, n)
	Logger().Info("radixsort: buffers allocated",
		"capacity", n,
		"padded", s.cfg.PaddedSize(n),
		"histogram_words", s.cfg.HistogramWords(n))
	return nil
}

// checkCapacity reports whether n keys fit into the 30-bit partition counts.
func checkCapacity(cfg kernel.Config, n uint64) error {
	if n > kernel.CountMask || cfg.PaddedSize(uint32(n)) > kernel.CountMask {
		return fmt.Errorf("%w: %d keys, at most %d", ErrCapacity, n, kernel.CountMask)
	}
	return nil
}

// Sort sorts keys ascending and carries payloads along. payloads must be nil
// or have the length of keys; nil sorts the identity permutation, so
// Result.Payloads holds the original index of every key.
//
// ctx is checked between dispatches; a dispatch in flight always completes.
// When a workgroup exhausts its spin budget, Sort returns the Result with
// Failed set together with an error wrapping ErrSortFailed.
func (s *Sorter) Sort(ctx context.Context, keys, payloads []uint32) (*Result, error) {
	if payloads != nil && len(payloads) != len(keys) {
		return nil, fmt.Errorf("%w: %d keys, %d payloads", ErrLength, len(keys), len(payloads))
	}
	if err := checkCapacity(s.cfg, uint64(len(keys))); err != nil {
		return nil, err
	}
	n := uint32(len(keys))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.prepareLocked(n); err != nil {
		return nil, err
	}
	if err := s.bufs.Load(keys, payloads); err != nil {
		return nil, fmt.Errorf("radixsort: %w", err)
	}

	begin := time.Now()
	res := &Result{
		NumKeys:    n,
		PaddedSize: s.cfg.PaddedSize(n),
	}
	s.lastPadded = 0
	for _, d := range s.plan(n) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("radixsort: %s: %w", d.stage, err)
		}

		start := time.Now()
		failed := s.dispatcher.Dispatch(d.groups, d.kernel)
		st := StageStats{
			Stage:      d.stage,
			Pass:       d.pass,
			Workgroups: d.groups,
			Failed:     failed,
			Duration:   time.Since(start),
		}
		res.Stages = append(res.Stages, st)
		res.FailedWorkgroups += failed
		Logger().Debug("radixsort: dispatch",
			"stage", st.Stage.String(),
			"pass", st.Pass,
			"workgroups", st.Workgroups,
			"failed", st.Failed,
			"duration", st.Duration)
	}

	out := s.bufs.Result()
	res.Keys = slices.Clone(s.bufs.Keys[out][:n])
	res.Payloads = slices.Clone(s.bufs.Payloads[out][:n])
	res.Elapsed = time.Since(begin)

	if s.bufs.Info.Failed() {
		res.Failed = true
		Logger().Warn("radixsort: sort failed",
			"keys", n,
			"failed_workgroups", res.FailedWorkgroups)
		return res, fmt.Errorf("%w (%d keys, %d workgroups failed)",
			ErrSortFailed, n, res.FailedWorkgroups)
	}
	s.lastPadded = res.PaddedSize
	return res, nil
}

// SortIndices sorts keys and returns, in Result.Payloads, the original index
// of every sorted key.
func (s *Sorter) SortIndices(ctx context.Context, keys []uint32) (*Result, error) {
	return s.Sort(ctx, keys, nil)
}

// Histograms returns the per-pass digit counts of the last successful sort,
// padding keys included (they all count toward digit 255). It returns nil
// when the most recent sort failed or was canceled, and before the first
// sort.
func (s *Sorter) Histograms() [][kernel.RadixSize]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bufs == nil || s.lastPadded == 0 {
		return nil
	}

	rows := make([][kernel.RadixSize]uint32, s.cfg.Passes)
	for pass := range s.cfg.Passes {
		// The rows hold exclusive prefix sums once the prefix stage ran.
		prefix := s.bufs.HistogramRow(pass)
		for d := range kernel.RadixSize - 1 {
			rows[pass][d] = prefix[d+1] - prefix[d]
		}
		rows[pass][kernel.RadixSize-1] = s.lastPadded - prefix[kernel.RadixSize-1]
	}
	return rows
}

// Close stops the workers and releases the buffers.
// Close is safe to call multiple times.
func (s *Sorter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.dispatcher.Close()
	s.bufs = nil
}

// dispatch is one planned kernel launch.
type dispatch struct {
	stage  Stage
	pass   uint32
	groups uint32
	kernel parallel.Kernel
}

// plan returns the dispatch sequence for n keys:
// zero, histogram, prefix, then one scatter per digit pass.
func (s *Sorter) plan(n uint32) []dispatch {
	b := s.bufs
	cfg := s.cfg
	infallible := func(k func(*kernel.Buffers, uint32)) parallel.Kernel {
		return func(wg uint32) bool {
			k(b, wg)
			return true
		}
	}

	ds := []dispatch{
		{stage: StageZero, groups: cfg.ZeroWorkgroups(n), kernel: infallible(kernel.Zero)},
		{stage: StageHistogram, groups: cfg.HistogramBlocks(n), kernel: infallible(kernel.Histogram)},
		{stage: StagePrefix, groups: cfg.Passes, kernel: infallible(kernel.Prefix)},
	}
	for pass := range cfg.Passes {
		d := dispatch{
			stage:  StageScatterEven,
			pass:   pass,
			groups: cfg.ScatterBlocks(n),
			kernel: func(wg uint32) bool { return kernel.ScatterEven(b, wg) },
		}
		if pass%2 == 1 {
			d.stage = StageScatterOdd
			d.kernel = func(wg uint32) bool { return kernel.ScatterOdd(b, wg) }
		}
		ds = append(ds, d)
	}
	return ds
}
