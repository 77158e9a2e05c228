package radixsort

import (
	"cmp"
	"fmt"
	"slices"
)

// CheckSorted verifies that outKeys/outPayloads is the stable ascending sort
// of inKeys/inPayloads on all 32 key bits: a permutation of the input pairs,
// ordered by key, with equal keys in input order. A nil inPayloads stands for
// the identity permutation.
//
// The returned error wraps ErrNotSorted and names the first bad position.
func CheckSorted(inKeys, inPayloads, outKeys, outPayloads []uint32) error {
	return CheckSortedBits(32, inKeys, inPayloads, outKeys, outPayloads)
}

// CheckSortedBits is CheckSorted for sorts that order only the low keyBits
// bits of each key.
func CheckSortedBits(keyBits uint32, inKeys, inPayloads, outKeys, outPayloads []uint32) error {
	n := len(inKeys)
	if inPayloads != nil && len(inPayloads) != n {
		return fmt.Errorf("%w: %d keys, %d payloads", ErrLength, n, len(inPayloads))
	}
	if len(outKeys) != n || len(outPayloads) != n {
		return fmt.Errorf("%w: input has %d pairs, output %d keys and %d payloads",
			ErrNotSorted, n, len(outKeys), len(outPayloads))
	}

	mask := ^uint32(0)
	if keyBits < 32 {
		mask = 1<<keyBits - 1
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(inKeys[a]&mask, inKeys[b]&mask)
	})

	for i, j := range order {
		wantP := uint32(j)
		if inPayloads != nil {
			wantP = inPayloads[j]
		}
		if outKeys[i] != inKeys[j] || outPayloads[i] != wantP {
			return fmt.Errorf("%w: position %d holds (%#x, %d), want (%#x, %d)",
				ErrNotSorted, i, outKeys[i], outPayloads[i], inKeys[j], wantP)
		}
	}
	return nil
}
