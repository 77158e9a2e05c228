package radixsort

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// BackendCPU is the name of the built-in CPU backend.
const BackendCPU = "cpu"

// EngineFactory opens an Engine configured by opts.
type EngineFactory func(opts ...Option) (Engine, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]EngineFactory{
		BackendCPU: func(opts ...Option) (Engine, error) {
			s, err := NewSorter(opts...)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
)

// ErrUnknownBackend is returned by OpenEngine for a name no package has
// registered.
var ErrUnknownBackend = errors.New("radixsort: unknown backend")

// RegisterBackend makes an engine available under name. Registering an
// existing name replaces it.
//
// Backend packages register themselves on import:
//
//	import _ "github.com/gogpu/radixsort/gpu" // registers "gpu"
func RegisterBackend(name string, f EngineFactory) error {
	if name == "" || f == nil {
		return errors.New("radixsort: backend name and factory must be set")
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
	return nil
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// OpenEngine opens the backend registered under name.
func OpenEngine(name string, opts ...Option) (Engine, error) {
	backendsMu.RLock()
	f, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownBackend, name, Backends())
	}
	e, err := f(opts...)
	if err != nil {
		return nil, fmt.Errorf("radixsort: open %s backend: %w", name, err)
	}
	Logger().Info("radixsort: backend opened", "backend", name)
	return e, nil
}
