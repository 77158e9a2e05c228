// Package parallel executes compute grids on CPU worker goroutines.
//
// It stands in for the GPU command processor: a dispatch launches a grid of
// workgroups, workers execute them concurrently, and Dispatch returning is
// the barrier between pipeline stages.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Kernel is the body of one workgroup. It returns false when the workgroup
// failed.
type Kernel func(wg uint32) bool

// Dispatcher runs compute dispatches on a fixed set of worker goroutines.
//
// A dispatch is a grid of workgroups; Dispatch returns only after every
// workgroup of the grid has finished, which is the global barrier between
// stages. Within a dispatch, workers take workgroup ids from a shared launch
// ticket in ascending order, so any running workgroup's predecessors have all
// been started. Workgroups that wait on a predecessor rely on that.
//
// Thread safety: Dispatcher is safe for concurrent use.
type Dispatcher struct {
	// workers is the number of worker goroutines.
	workers int

	// queues holds per-worker dispatch queues. Every worker taking part in
	// a dispatch receives the same grid.
	queues []chan *grid

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the dispatcher is accepting work.
	running atomic.Bool

	// mu keeps Close from racing with grids being queued.
	mu sync.RWMutex

	// order maps launch tickets to workgroup ids. Nil means ascending.
	order func(groups uint32) []uint32
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLaunchOrder permutes the order in which workgroups are launched.
// order must return a permutation of [0, groups). Launch orders other than
// ascending can starve workgroups waiting on their predecessors; this exists
// to exercise the failure path.
func WithLaunchOrder(order func(groups uint32) []uint32) DispatcherOption {
	return func(d *Dispatcher) {
		d.order = order
	}
}

// Reversed is a launch order that starts the highest workgroup id first.
func Reversed(groups uint32) []uint32 {
	ids := make([]uint32, groups)
	for i := range ids {
		ids[i] = groups - 1 - uint32(i)
	}
	return ids
}

// grid is one dispatch in flight.
type grid struct {
	groups uint32
	ids    []uint32
	kernel Kernel
	ticket atomic.Uint32
	failed atomic.Uint32
	done   sync.WaitGroup
}

// run takes tickets until the grid is exhausted.
func (g *grid) run() {
	defer g.done.Done()
	for {
		t := g.ticket.Add(1) - 1
		if t >= g.groups {
			return
		}
		wg := t
		if g.ids != nil {
			wg = g.ids[t]
		}
		if !g.kernel(wg) {
			g.failed.Add(1)
		}
	}
}

// NewDispatcher creates a dispatcher with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewDispatcher(workers int, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	d := &Dispatcher{
		workers: workers,
		queues:  make([]chan *grid, workers),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range workers {
		d.queues[i] = make(chan *grid, 4)
	}

	d.running.Store(true)

	d.wg.Add(workers)
	for i := range workers {
		go d.worker(i)
	}

	return d
}

// worker is the main loop for each worker goroutine.
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	queue := d.queues[id]
	for {
		select {
		case <-d.done:
			// Finish grids that were handed out before Close.
			for {
				select {
				case g := <-queue:
					g.run()
				default:
					return
				}
			}
		case g := <-queue:
			g.run()
		}
	}
}

// Dispatch runs kernel for workgroups [0, groups) and waits for all of them.
// It returns the number of workgroups that reported failure.
//
// On a closed dispatcher the grid runs on the calling goroutine.
func (d *Dispatcher) Dispatch(groups uint32, kernel Kernel) uint32 {
	if groups == 0 || kernel == nil {
		return 0
	}

	g := &grid{groups: groups, kernel: kernel}
	if d.order != nil {
		g.ids = d.order(groups)
	}

	d.mu.RLock()
	if !d.running.Load() {
		d.mu.RUnlock()
		g.done.Add(1)
		g.run()
		return g.failed.Load()
	}

	active := d.workers
	if groups < uint32(active) {
		active = int(groups)
	}
	g.done.Add(active)
	for i := range active {
		d.queues[i] <- g
	}
	d.mu.RUnlock()

	g.done.Wait()
	return g.failed.Load()
}

// Close stops the workers after the grids already queued have run.
// Close is safe to call multiple times.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.running.CompareAndSwap(true, false) {
		d.mu.Unlock()
		return
	}
	close(d.done)
	d.mu.Unlock()
	d.wg.Wait()
}

// Workers returns the number of workers.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// IsRunning returns true if the dispatcher is still accepting work.
func (d *Dispatcher) IsRunning() bool {
	return d.running.Load()
}
