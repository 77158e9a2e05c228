//go:build !nogpu

// Package gpu sorts on the GPU with WGSL compute shaders.
//
// Importing this package registers the "gpu" backend with radixsort, so
// radixsort.OpenEngine("gpu") opens the default Vulkan device:
//
//	import _ "github.com/gogpu/radixsort/gpu" // enable the GPU backend
//
// To share a device with a host application (for example gogpu), use
// NewSorterFromProvider. Data that already lives on the device is sorted in
// place with Sorter.BindExternal and Sorter.Encode.
package gpu

import (
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/radixsort"
	gpuimpl "github.com/gogpu/radixsort/internal/gpu"
	"github.com/gogpu/radixsort/kernel"
)

// BackendName is the name the GPU backend registers under.
const BackendName = "gpu"

func init() {
	err := radixsort.RegisterBackend(BackendName, func(opts ...radixsort.Option) (radixsort.Engine, error) {
		s, err := gpuimpl.OpenDefault(opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		radixsort.Logger().Warn("GPU backend not registered", "err", err)
	}
}

// Sorter runs the radix sort pipeline on a HAL device. It implements
// radixsort.Engine.
type Sorter = gpuimpl.Sorter

// Binding binds caller-owned key and payload buffers for sorts recorded
// with Sorter.Encode into the caller's command encoder.
type Binding = gpuimpl.Binding

// NewSorter creates a sorter on an existing device and queue. The device
// stays owned by the caller.
func NewSorter(device hal.Device, queue hal.Queue, opts ...radixsort.Option) (*Sorter, error) {
	return gpuimpl.NewSorter(device, queue, opts...)
}

// NewSorterFromProvider creates a sorter on a device shared by a host
// application. The provider must also implement HalDevice() any and
// HalQueue() any.
func NewSorterFromProvider(provider gpucontext.DeviceProvider, opts ...radixsort.Option) (*Sorter, error) {
	return gpuimpl.NewSorterFromProvider(provider, opts...)
}

// OpenDefault opens a Vulkan device and returns a sorter that owns it.
func OpenDefault(opts ...radixsort.Option) (*Sorter, error) {
	return gpuimpl.OpenDefault(opts...)
}

// ShaderSource returns the WGSL source the sorter compiles for cfg.
func ShaderSource(cfg kernel.Config) string {
	return gpuimpl.ShaderSource(cfg)
}

// CompileSPIRV compiles the shader for cfg to SPIR-V with naga.
func CompileSPIRV(cfg kernel.Config) ([]uint32, error) {
	return gpuimpl.CompileSPIRV(cfg)
}

// SetLogger sets the logger of the GPU backend. Pass nil to disable
// logging.
func SetLogger(l *slog.Logger) {
	gpuimpl.SetLogger(l)
}
