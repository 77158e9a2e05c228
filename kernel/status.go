// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

// Digit returns the 8-bit digit of key used by the given pass.
func Digit(key, pass uint32) uint32 {
	return (key >> (pass * RadixLog2)) & RadixMask
}

// PartitionStatus is the state of one (workgroup, digit) partition slot
// during a scatter pass.
type PartitionStatus uint32

const (
	// StatusInvalid means the owning workgroup has not published yet.
	StatusInvalid PartitionStatus = iota

	// StatusAggregate means the count is the workgroup's local tile count.
	StatusAggregate

	// StatusPrefix means the count is the absolute destination base of the
	// next workgroup's keys with this digit.
	StatusPrefix
)

// String returns the status name.
func (s PartitionStatus) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusAggregate:
		return "aggregate"
	case StatusPrefix:
		return "prefix"
	default:
		return "unknown"
	}
}

// Status word layout: tag in the top two bits, count in the low 30.
//
// Odd passes XOR the tag with oddRotation. The prefix tag of a finished pass
// therefore decodes as invalid in the following pass, and zeroed memory
// decodes as invalid in pass 0, so partition memory never has to be cleared
// between scatter dispatches.
const (
	statusShift = 30
	oddRotation = 0b10

	// CountMask is the largest count a status word can carry.
	CountMask = 1<<statusShift - 1
)

// PackStatus encodes a partition status word for the given pass.
func PackStatus(s PartitionStatus, count, pass uint32) uint32 {
	tag := uint32(s)
	if pass&1 == 1 {
		tag ^= oddRotation
	}
	return tag<<statusShift | count&CountMask
}

// UnpackStatus decodes a partition status word written during the given
// pass. Tags that do not belong to the pass decode as StatusInvalid.
func UnpackStatus(word, pass uint32) (PartitionStatus, uint32) {
	tag := word >> statusShift
	if pass&1 == 1 {
		tag ^= oddRotation
	}
	s := PartitionStatus(tag)
	if s > StatusPrefix {
		s = StatusInvalid
	}
	return s, word & CountMask
}
