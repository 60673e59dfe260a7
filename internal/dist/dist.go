package dist

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// Counts maps a fixed-width bitstring outcome to the number of shots that produced it.
// Qubit 0 is the right-most character.
type Counts map[string]int

// ErrNotPowerOfTwo is returned when a state-space size is not a positive power of two.
var ErrNotPowerOfTwo = errors.New("size is not a positive power of two")

// Qubits returns log2(size) for a positive power-of-two size.
func Qubits(size int) (int, error) {
	if size <= 0 || size&(size-1) != 0 {
		return 0, fmt.Errorf("%w: %d", ErrNotPowerOfTwo, size)
	}
	return bits.TrailingZeros(uint(size)), nil
}

// Label formats i as a zero-padded binary string of width qubits.
func Label(i, qubits int) string {
	if qubits <= 0 {
		return ""
	}
	s := strconv.FormatInt(int64(i), 2)
	for len(s) < qubits {
		s = "0" + s
	}
	return s
}

// Labels returns every outcome label of the given width in ascending order.
func Labels(qubits int) []string {
	labels := make([]string, 1<<qubits)
	for i := range labels {
		labels[i] = Label(i, qubits)
	}
	return labels
}

// SortedKeys returns the outcome keys in ascending order.
func SortedKeys(counts Counts) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Total returns the sum of all counts.
func Total(counts Counts) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

// Reconcile returns a copy of counts in which every outcome of the given width
// is present. Unobserved outcomes get a zero count.
func Reconcile(counts Counts, qubits int) Counts {
	size := 1 << qubits
	full := make(Counts, size)
	for k, v := range counts {
		full[k] = v
	}
	if len(counts) == size {
		return full
	}
	for j := 0; j < size; j++ {
		label := Label(j, qubits)
		if _, ok := full[label]; !ok {
			full[label] = 0
		}
	}
	return full
}

// Normalize converts counts into frequencies ordered by ascending outcome key.
//
// When exactly one outcome is present a second entry equal to 1 - frequency is
// appended. This keeps single-qubit histograms that omit the zero-count outcome
// at length two; it does not check which outcome is missing, so callers with
// more than one qubit should Reconcile first.
func Normalize(counts Counts, shots int) []float64 {
	if shots <= 0 {
		return nil
	}

	keys := SortedKeys(counts)
	out := make([]float64, len(keys), len(keys)+1)
	for i, k := range keys {
		out[i] = float64(counts[k]) / float64(shots)
	}

	if len(out) == 1 {
		out = append(out, 1-out[0])
	}
	return out
}

// L1 returns the Manhattan distance between two equal-length vectors.
func L1(p, q []float64) float64 {
	return floats.Distance(p, q, 1)
}
