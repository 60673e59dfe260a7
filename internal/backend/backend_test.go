package backend

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/vqafit/internal/circuit"
	"github.com/cwbudde/vqafit/internal/dist"
)

func TestSimulatorGroundState(t *testing.T) {
	c := circuit.New(2)
	c.MeasureAll()

	counts, err := NewSimulator(1).Execute(context.Background(), c, 100)
	require.NoError(t, err)
	assert.Equal(t, dist.Counts{"00": 100}, counts)
}

func TestSimulatorBitOrder(t *testing.T) {
	// flipping qubit 0 sets the right-most character
	c := circuit.New(3)
	c.RY(0, math.Pi)
	c.MeasureAll()

	probs, err := Probabilities(c)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, probs[1], 1e-12)

	counts, err := NewSimulator(7).Execute(context.Background(), c, 64)
	require.NoError(t, err)
	assert.Equal(t, dist.Counts{"001": 64}, counts)
}

func TestSimulatorBellState(t *testing.T) {
	c := circuit.New(2)
	c.RY(0, math.Pi/2)
	c.CX(0, 1)
	c.MeasureAll()

	probs, err := Probabilities(c)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, probs[0], 1e-12)
	assert.InDelta(t, 0.0, probs[1], 1e-12)
	assert.InDelta(t, 0.0, probs[2], 1e-12)
	assert.InDelta(t, 0.5, probs[3], 1e-12)

	counts, err := NewSimulator(3).Execute(context.Background(), c, 4000)
	require.NoError(t, err)
	assert.Equal(t, 4000, dist.Total(counts))
	assert.NotContains(t, counts, "01")
	assert.NotContains(t, counts, "10")
	assert.InDelta(t, 2000, counts["00"], 200)
}

func TestSimulatorU3Probability(t *testing.T) {
	theta := 1.2
	c := circuit.New(1)
	c.U3(0, theta, 0.4, -0.9)
	c.MeasureAll()

	probs, err := Probabilities(c)
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(math.Sin(theta/2), 2), probs[1], 1e-12)
	assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-12)
}

func TestSimulatorRZKeepsPopulations(t *testing.T) {
	c := circuit.New(1)
	c.RY(0, 0.8)
	c.RZ(0, 2.1)
	c.MeasureAll()

	probs, err := Probabilities(c)
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(math.Cos(0.4), 2), probs[0], 1e-12)
}

func TestSimulatorDeterministicSeed(t *testing.T) {
	c := circuit.New(2)
	c.U3(0, 1.1, 0.2, 0.3)
	c.U3(1, 0.7, 0.1, 0.9)
	c.CX(0, 1)
	c.MeasureAll()

	a, err := NewSimulator(42).Execute(context.Background(), c, 512)
	require.NoError(t, err)
	b, err := NewSimulator(42).Execute(context.Background(), c, 512)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSimulatorErrors(t *testing.T) {
	sim := NewSimulator(1)

	c := circuit.New(1)
	c.Ops = append(c.Ops, circuit.Op{Kind: "h", Qubits: []int{0}})
	_, err := sim.Execute(context.Background(), c, 10)
	assert.ErrorIs(t, err, ErrUnsupportedOp)

	_, err = sim.Execute(context.Background(), circuit.New(1), 0)
	assert.ErrorIs(t, err, ErrInvalidShots)

	bad := circuit.New(1)
	bad.CX(0, 1)
	_, err = sim.Execute(context.Background(), bad, 10)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Execute(ctx, circuit.New(1), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoteExecute(t *testing.T) {
	var got executeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(executeResponse{Counts: dist.Counts{"0": 600, "1": 424}})
	}))
	defer srv.Close()

	b, err := New("remote", Options{URL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)

	c := circuit.New(1)
	c.U3(0, 0.3, 0, 0)
	c.MeasureAll()

	counts, err := b.Execute(context.Background(), c, 1024)
	require.NoError(t, err)
	assert.Equal(t, dist.Counts{"0": 600, "1": 424}, counts)
	assert.Equal(t, 1024, got.Shots)
	assert.Equal(t, 1, got.Qubits)
	assert.Contains(t, got.QASM, "u3(")
}

func TestRemoteExecuteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "transpile failed", http.StatusBadGateway)
	}))
	defer srv.Close()

	b, err := NewRemote(Options{URL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = b.Execute(context.Background(), circuit.New(1), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transpile failed")
}

func TestRemoteExecuteReportedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(executeResponse{Error: "device offline"})
	}))
	defer srv.Close()

	b, err := NewRemote(Options{URL: srv.URL, HTTPClient: srv.Client(), RateLimit: 100})
	require.NoError(t, err)

	_, err = b.Execute(context.Background(), circuit.New(1), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device offline")
}

func TestNewBackend(t *testing.T) {
	b, err := New("Aer", Options{Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, "simulator", b.Name())

	_, err = New("remote", Options{})
	assert.Error(t, err)

	_, err = New("ibm_osaka", Options{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
