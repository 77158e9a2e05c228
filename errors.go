package radixsort

import (
	"errors"

	"github.com/gogpu/radixsort/kernel"
)

// ErrInvalidConfig is returned when options describe a launch configuration
// the kernels cannot run.
var ErrInvalidConfig = kernel.ErrInvalidConfig

// ErrSortFailed indicates that a scatter workgroup exhausted its look-back
// spin budget. The output of such a sort is not meaningful; the caller may
// retry or fall back to another sort.
var ErrSortFailed = errors.New("radixsort: look-back spin budget exhausted")

// ErrCapacity indicates that a key count exceeds what the 30-bit partition
// counts can address.
var ErrCapacity = errors.New("radixsort: key count exceeds capacity")

// ErrLength indicates that the payload slice does not match the key slice.
var ErrLength = errors.New("radixsort: payload length does not match key length")

// ErrClosed is returned by operations on a closed sorter.
var ErrClosed = errors.New("radixsort: sorter is closed")

// ErrNotSorted is returned by CheckSorted when the output is not the stable
// sort of the input.
var ErrNotSorted = errors.New("radixsort: output is not a stable sort of the input")
