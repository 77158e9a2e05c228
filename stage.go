package radixsort

import (
	"fmt"
	"time"
)

// Stage identifies one dispatch of the sort pipeline.
type Stage uint8

const (
	// StageZero clears histogram and partition memory.
	StageZero Stage = iota

	// StageHistogram counts digits for every pass.
	StageHistogram

	// StagePrefix converts the histograms to exclusive prefix sums.
	StagePrefix

	// StageScatterEven moves keys from buffer A to buffer B.
	StageScatterEven

	// StageScatterOdd moves keys from buffer B back to buffer A.
	StageScatterOdd
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageZero:
		return "zero"
	case StageHistogram:
		return "histogram"
	case StagePrefix:
		return "prefix"
	case StageScatterEven:
		return "scatter_even"
	case StageScatterOdd:
		return "scatter_odd"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

// StageStats describes one completed dispatch.
type StageStats struct {
	Stage Stage

	// Pass is the digit pass of a scatter stage, zero otherwise.
	Pass uint32

	// Workgroups is the dispatch size.
	Workgroups uint32

	// Failed is the number of workgroups that reported failure. Backends
	// that cannot observe individual workgroups leave it zero.
	Failed uint32

	// Duration is the wall time of the dispatch, zero when the backend
	// submits all stages at once.
	Duration time.Duration
}

// Result is the outcome of one sort.
type Result struct {
	// Keys and Payloads are copies of the first NumKeys entries of the final
	// buffer, in sorted order.
	Keys     []uint32
	Payloads []uint32

	NumKeys    uint32
	PaddedSize uint32

	// Failed is set when some workgroup exhausted its spin budget. Keys and
	// Payloads are then unspecified.
	Failed           bool
	FailedWorkgroups uint32

	Stages []StageStats

	// Elapsed is the wall time from upload to readback.
	Elapsed time.Duration
}
