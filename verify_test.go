package radixsort

import (
	"errors"
	"testing"
)

func TestCheckSorted(t *testing.T) {
	tests := []struct {
		name        string
		inKeys      []uint32
		inPayloads  []uint32
		outKeys     []uint32
		outPayloads []uint32
		wantErr     error
	}{
		{
			name:        "stable sort",
			inKeys:      []uint32{5, 5, 5, 1},
			inPayloads:  []uint32{0, 1, 2, 3},
			outKeys:     []uint32{1, 5, 5, 5},
			outPayloads: []uint32{3, 0, 1, 2},
		},
		{
			name:        "identity payloads",
			inKeys:      []uint32{3, 1, 2},
			outKeys:     []uint32{1, 2, 3},
			outPayloads: []uint32{1, 2, 0},
		},
		{
			name:        "empty",
			inKeys:      []uint32{},
			outKeys:     []uint32{},
			outPayloads: []uint32{},
		},
		{
			name:        "unstable",
			inKeys:      []uint32{5, 5, 1},
			inPayloads:  []uint32{0, 1, 2},
			outKeys:     []uint32{1, 5, 5},
			outPayloads: []uint32{2, 1, 0},
			wantErr:     ErrNotSorted,
		},
		{
			name:        "out of order",
			inKeys:      []uint32{2, 1},
			outKeys:     []uint32{2, 1},
			outPayloads: []uint32{0, 1},
			wantErr:     ErrNotSorted,
		},
		{
			name:        "not a permutation",
			inKeys:      []uint32{2, 1},
			outKeys:     []uint32{1, 1},
			outPayloads: []uint32{1, 1},
			wantErr:     ErrNotSorted,
		},
		{
			name:        "payload lost",
			inKeys:      []uint32{2, 1},
			outKeys:     []uint32{1, 2},
			outPayloads: []uint32{1, 7},
			wantErr:     ErrNotSorted,
		},
		{
			name:        "short output",
			inKeys:      []uint32{2, 1},
			outKeys:     []uint32{1},
			outPayloads: []uint32{1},
			wantErr:     ErrNotSorted,
		},
		{
			name:        "payload length",
			inKeys:      []uint32{2, 1},
			inPayloads:  []uint32{0},
			outKeys:     []uint32{1, 2},
			outPayloads: []uint32{1, 0},
			wantErr:     ErrLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSorted(tt.inKeys, tt.inPayloads, tt.outKeys, tt.outPayloads)
			if tt.wantErr == nil && err != nil {
				t.Errorf("CheckSorted() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckSorted() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckSortedBits(t *testing.T) {
	// Ordered on the low 16 bits only; the high half is carried along.
	in := []uint32{0x0001_0002, 0x0005_0001}
	out := []uint32{0x0005_0001, 0x0001_0002}
	if err := CheckSortedBits(16, in, nil, out, []uint32{1, 0}); err != nil {
		t.Errorf("CheckSortedBits(16) = %v", err)
	}
	if err := CheckSorted(in, nil, out, []uint32{1, 0}); !errors.Is(err, ErrNotSorted) {
		t.Errorf("CheckSorted() = %v, want ErrNotSorted", err)
	}
}
