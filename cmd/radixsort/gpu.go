//go:build !nogpu

package main

import (
	"log/slog"

	"github.com/gogpu/radixsort/gpu"
	"github.com/gogpu/radixsort/kernel"
)

func shaderSource(cfg kernel.Config) (string, error) {
	return gpu.ShaderSource(cfg), nil
}

func compileSPIRV(cfg kernel.Config) ([]uint32, error) {
	return gpu.CompileSPIRV(cfg)
}

func setGPULogger(l *slog.Logger) {
	gpu.SetLogger(l)
}
