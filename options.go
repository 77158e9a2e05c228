package radixsort

import (
	"fmt"

	"github.com/gogpu/radixsort/kernel"
)

// Option configures a Sorter during creation.
// Use functional options to customize the launch configuration.
//
// Example:
//
//	// Default: 32-bit keys, GOMAXPROCS workers
//	s, err := radixsort.NewSorter()
//
//	// 16-bit keys on four workers
//	s, err := radixsort.NewSorter(radixsort.WithKeyBits(16), radixsort.WithWorkers(4))
type Option func(*options)

// options holds optional configuration for Sorter creation.
type options struct {
	cfg     kernel.Config
	keyBits uint32
	workers int
	order   func(groups uint32) []uint32
}

// defaultOptions returns the default sorter options.
func defaultOptions() options {
	return options{
		cfg:     kernel.DefaultConfig(),
		keyBits: 32,
		workers: 0, // GOMAXPROCS
	}
}

// WithWorkers sets the number of goroutines that execute workgroups.
// Zero or a negative value means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithSpinBudget sets the maximum number of polls a scatter workgroup spends
// waiting on one unpublished predecessor before the sort is flagged as failed.
func WithSpinBudget(polls uint32) Option {
	return func(o *options) {
		o.cfg.SpinBudget = polls
	}
}

// WithKeyBits selects how many low key bits are ordered: 32 (four passes,
// the default) or 16 (two passes). With 16, the high half of each key is
// carried along but ignored by the ordering.
func WithKeyBits(bits uint32) Option {
	return func(o *options) {
		o.keyBits = bits
	}
}

// WithHistogramTiling sets the histogram workgroup size and the number of
// keys each lane holds.
func WithHistogramTiling(workgroupSize, rows uint32) Option {
	return func(o *options) {
		o.cfg.HistogramWorkgroupSize = workgroupSize
		o.cfg.HistogramBlockRows = rows
	}
}

// WithScatterTiling sets the scatter workgroup size and the number of keys
// each lane holds.
func WithScatterTiling(workgroupSize, rows uint32) Option {
	return func(o *options) {
		o.cfg.ScatterWorkgroupSize = workgroupSize
		o.cfg.ScatterBlockRows = rows
	}
}

// WithSubgroupSize sets the lane span used for local ranking. It must divide
// the scatter workgroup size.
func WithSubgroupSize(n uint32) Option {
	return func(o *options) {
		o.cfg.SubgroupSize = n
	}
}

// WithLaunchOrder permutes the order in which workgroups of a dispatch are
// started. Only the ascending default guarantees forward progress of the
// look-back; other orders exist for testing the failure path.
func WithLaunchOrder(order func(groups uint32) []uint32) Option {
	return func(o *options) {
		o.order = order
	}
}

// NewConfig resolves options into the launch configuration shared by the
// CPU and GPU backends.
func NewConfig(opts ...Option) (kernel.Config, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return kernel.Config{}, err
	}
	return o.cfg, nil
}

func resolveOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch o.keyBits {
	case 16, 32:
		o.cfg.Passes = o.keyBits / kernel.RadixLog2
	default:
		return o, fmt.Errorf("%w: key bits must be 16 or 32, got %d", ErrInvalidConfig, o.keyBits)
	}
	if err := o.cfg.Validate(); err != nil {
		return o, err
	}
	return o, nil
}
