package dist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSingleOutcomeComplement(t *testing.T) {
	got := Normalize(Counts{"0": 700}, 1000)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.7, got[0], 1e-12)
	assert.InDelta(t, 0.3, got[1], 1e-12)
}

func TestNormalizeTwoOutcomes(t *testing.T) {
	got := Normalize(Counts{"01": 500, "00": 500}, 1000)
	assert.Equal(t, []float64{0.5, 0.5}, got)
}

func TestNormalizeOrdersByKey(t *testing.T) {
	got := Normalize(Counts{"11": 1, "00": 2, "10": 3, "01": 4}, 10)
	assert.Equal(t, []float64{0.2, 0.4, 0.3, 0.1}, got)
}

func TestNormalizeNoShots(t *testing.T) {
	assert.Nil(t, Normalize(Counts{"0": 1}, 0))
}

func TestReconcileFillsMissingOutcomes(t *testing.T) {
	counts := Counts{"010": 7}
	full := Reconcile(counts, 3)

	require.Len(t, full, 8)
	assert.Equal(t, 7, full["010"])
	assert.Equal(t, 0, full["000"])
	assert.Equal(t, 0, full["111"])

	// input untouched
	assert.Len(t, counts, 1)
}

func TestReconcileEmpty(t *testing.T) {
	full := Reconcile(Counts{}, 2)
	assert.Equal(t, Counts{"00": 0, "01": 0, "10": 0, "11": 0}, full)
}

func TestReconcileThenNormalizeSumsToOne(t *testing.T) {
	tests := []struct {
		name   string
		qubits int
		counts Counts
		shots  int
	}{
		{name: "single qubit one outcome", qubits: 1, counts: Counts{"1": 1024}, shots: 1024},
		{name: "two qubits sparse", qubits: 2, counts: Counts{"11": 300, "00": 724}, shots: 1024},
		{name: "three qubits one outcome", qubits: 3, counts: Counts{"101": 50}, shots: 50},
		{name: "four qubits full", qubits: 4, counts: fullCounts(4, 10), shots: 160},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Normalize(Reconcile(tt.counts, tt.qubits), tt.shots)
			require.Len(t, p, 1<<tt.qubits)

			sum := 0.0
			for _, v := range p {
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func fullCounts(qubits, each int) Counts {
	c := Counts{}
	for _, l := range Labels(qubits) {
		c[l] = each
	}
	return c
}

func TestLabels(t *testing.T) {
	assert.Equal(t, []string{"000", "001", "010", "011", "100", "101", "110", "111"}, Labels(3))
	assert.Equal(t, "0101", Label(5, 4))
	assert.Equal(t, []string{""}, Labels(0))
}

func TestQubits(t *testing.T) {
	n, err := Qubits(8)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = Qubits(1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for _, size := range []int{0, -4, 3, 6, 12} {
		_, err := Qubits(size)
		assert.ErrorIs(t, err, ErrNotPowerOfTwo, "size %d", size)
	}
}

func TestL1(t *testing.T) {
	assert.Equal(t, 0.0, L1([]float64{0.5, 0.5}, []float64{0.5, 0.5}))
	assert.InDelta(t, 0.4, L1([]float64{0.7, 0.3}, []float64{0.5, 0.5}), 1e-12)
}

func TestTotal(t *testing.T) {
	assert.Equal(t, 30, Total(Counts{"0": 10, "1": 20}))
}
