//go:build nogpu

package main

import (
	"errors"
	"log/slog"

	"github.com/gogpu/radixsort/kernel"
)

var errNoGPU = errors.New("built with nogpu: shader tooling unavailable")

func shaderSource(kernel.Config) (string, error) { return "", errNoGPU }

func compileSPIRV(kernel.Config) ([]uint32, error) { return nil, errNoGPU }

func setGPULogger(*slog.Logger) {}
