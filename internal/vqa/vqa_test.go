package vqa

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cwbudde/vqafit/internal/ansatz"
	"github.com/cwbudde/vqafit/internal/backend"
	"github.com/cwbudde/vqafit/internal/circuit"
	"github.com/cwbudde/vqafit/internal/dist"
	"github.com/cwbudde/vqafit/internal/opt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// exactBackend returns the rounded ideal counts of the circuit's state.
type exactBackend struct {
	calls int
}

func (b *exactBackend) Name() string { return "exact" }

func (b *exactBackend) Execute(_ context.Context, c *circuit.Circuit, shots int) (dist.Counts, error) {
	b.calls++
	probs, err := backend.Probabilities(c)
	if err != nil {
		return nil, err
	}
	counts := dist.Counts{}
	for i, p := range probs {
		if n := int(math.Round(p * float64(shots))); n > 0 {
			counts[dist.Label(i, c.NumQubits)] = n
		}
	}
	return counts, nil
}

// fixedBackend always returns the same counts.
type fixedBackend struct {
	counts dist.Counts
	err    error
}

func (b fixedBackend) Name() string { return "fixed" }

func (b fixedBackend) Execute(ctx context.Context, _ *circuit.Circuit, _ int) (dist.Counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	out := make(dist.Counts, len(b.counts))
	for k, v := range b.counts {
		out[k] = v
	}
	return out, nil
}

// onceOptimizer evaluates the initial point and returns it unchanged.
type onceOptimizer struct{}

func (onceOptimizer) Minimize(_ context.Context, cost opt.CostFunc, initial []float64) (opt.Result, error) {
	f, err := cost(initial)
	if err != nil && !errors.Is(err, opt.ErrStop) {
		return opt.Result{}, err
	}
	return opt.Result{X: initial, F: f, Iterations: 1}, nil
}

func testConfig(target []float64) Config {
	cfg := DefaultConfig()
	cfg.Target = target
	return cfg
}

func TestNewTrainerValidation(t *testing.T) {
	sim := backend.NewSimulator(1)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"empty target", func(c *Config) { c.Target = nil }, ErrInvalidTarget},
		{"non power of two", func(c *Config) { c.Target = []float64{0.2, 0.3, 0.5} }, ErrInvalidTarget},
		{"unknown gate", func(c *Config) { c.Gate = "CRX" }, ansatz.ErrUnknownGateFamily},
		{"unknown topology", func(c *Config) { c.Entanglement = "Ring" }, ansatz.ErrUnknownEntanglement},
		{"zero layers", func(c *Config) { c.Layers = 0 }, ansatz.ErrInvalidLayers},
		{"zero shots", func(c *Config) { c.Shots = 0 }, ErrInvalidShots},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig([]float64{0.5, 0.5})
			tt.mutate(&cfg)
			_, err := NewTrainer(cfg, onceOptimizer{}, sim)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := NewTrainer(testConfig([]float64{0.5, 0.5}), nil, sim)
	assert.Error(t, err)
	_, err = NewTrainer(testConfig([]float64{0.5, 0.5}), onceOptimizer{}, nil)
	assert.Error(t, err)
}

func TestInitialParams(t *testing.T) {
	cfg := testConfig([]float64{0.25, 0.25, 0.25, 0.25})
	cfg.Layers = 3

	a, err := NewTrainer(cfg, onceOptimizer{}, backend.NewSimulator(1))
	require.NoError(t, err)
	b, err := NewTrainer(cfg, onceOptimizer{}, backend.NewSimulator(1))
	require.NoError(t, err)

	params := a.InitialParams()
	require.Len(t, params, 3*2*3)
	for _, p := range params {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.Less(t, p, 1.0)
	}
	assert.Equal(t, params, b.InitialParams())

	custom := make([]float64, 18)
	custom[0] = 2.5
	c, err := NewTrainer(cfg, onceOptimizer{}, backend.NewSimulator(1), WithInitialParams(custom))
	require.NoError(t, err)
	assert.Equal(t, custom, c.InitialParams())

	_, err = NewTrainer(cfg, onceOptimizer{}, backend.NewSimulator(1), WithInitialParams([]float64{1, 2}))
	assert.Error(t, err)
}

func TestTrainerEndToEndSingleIteration(t *testing.T) {
	be := &exactBackend{}
	tr, err := NewTrainer(testConfig([]float64{0.5, 0.5}), onceOptimizer{}, be)
	require.NoError(t, err)

	res, err := tr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, tr.InitialParams(), res.Params)
	assert.Equal(t, res.InitialParams, res.Params)
	assert.Len(t, res.Output, 2)
	assert.InDelta(t, 1.0, res.Output[0]+res.Output[1], 0.01)
	assert.Len(t, res.Counts, 2)
	assert.InDelta(t, res.Cost, res.FinalCost, 0.01)
	assert.Equal(t, 1, res.Qubits)
	assert.Equal(t, 1024, res.Shots)
	// one evaluation plus the final re-run
	assert.Equal(t, 2, be.calls)
}

func TestEvaluatorCost(t *testing.T) {
	ac := ansatz.Config{Qubits: 2, Layers: 1, Gate: ansatz.U3, Entanglement: ansatz.Linear}
	uniform := []float64{0.25, 0.25, 0.25, 0.25}
	params := make([]float64, ac.ParamCount())

	t.Run("zero when equal", func(t *testing.T) {
		be := fixedBackend{counts: dist.Counts{"00": 256, "01": 256, "10": 256, "11": 256}}
		e, err := NewEvaluator(uniform, ac, be, 1024)
		require.NoError(t, err)

		cost, err := e.Cost(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, 0.0, cost)
	})

	t.Run("twice total variation distance", func(t *testing.T) {
		be := fixedBackend{counts: dist.Counts{"10": 1024}}
		e, err := NewEvaluator(uniform, ac, be, 1024)
		require.NoError(t, err)

		counts, probs, err := e.Sample(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 1, 0}, probs)
		assert.Len(t, counts, 4)

		cost, err := e.Cost(context.Background(), params)
		require.NoError(t, err)

		tvd := 0.0
		for i := range probs {
			tvd += math.Abs(probs[i]-uniform[i]) / 2
		}
		assert.InDelta(t, 2*tvd, cost, 1e-12)
		assert.InDelta(t, 1.5, cost, 1e-12)
	})

	t.Run("foreign outcomes", func(t *testing.T) {
		be := fixedBackend{counts: dist.Counts{"000": 512, "01": 512}}
		e, err := NewEvaluator(uniform, ac, be, 1024)
		require.NoError(t, err)

		_, err = e.Cost(context.Background(), params)
		assert.Error(t, err)
	})
}

func TestEvaluatorProbabilityVectorIsComplete(t *testing.T) {
	ac := ansatz.Config{Qubits: 3, Layers: 2, Gate: ansatz.RYRZ, Entanglement: ansatz.Full}
	target := make([]float64, 8)
	target[0] = 1
	params := make([]float64, ac.ParamCount())

	for _, counts := range []dist.Counts{
		{"000": 100},
		{"111": 100},
		{"010": 30, "101": 70},
		{"000": 10, "001": 10, "010": 10, "011": 10, "100": 10, "101": 10, "110": 10, "111": 30},
		{},
	} {
		e, err := NewEvaluator(target, ac, fixedBackend{counts: counts}, 100)
		require.NoError(t, err)

		_, probs, err := e.Sample(context.Background(), params)
		require.NoError(t, err)
		require.Len(t, probs, 8)
		if len(counts) == 0 {
			// nothing observed: every outcome is present with frequency zero
			for _, p := range probs {
				assert.Zero(t, p)
			}
			continue
		}

		sum := 0.0
		for _, p := range probs {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "counts %v", counts)
	}
}

func TestTrainerSingleOutcomeTarget(t *testing.T) {
	for name, o := range map[string]opt.Optimizer{
		"neldermead": opt.NewNelderMead(50, 1e-6, 0.5),
		"mayfly":     opt.NewMayfly(10, 20, 1, 0, 1),
	} {
		t.Run(name, func(t *testing.T) {
			tr, err := NewTrainer(testConfig([]float64{1}), o, backend.NewSimulator(1))
			require.NoError(t, err)
			require.Empty(t, tr.InitialParams())

			res, err := tr.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 0, res.Qubits)
			assert.Equal(t, 1, res.Iterations)
			assert.Empty(t, res.Params)
			assert.Equal(t, []float64{1}, res.Output)
			assert.InDelta(t, 0.0, res.Cost, 1e-12)
			assert.InDelta(t, 0.0, res.FinalCost, 1e-12)
		})
	}
}

func TestTrainerBackendErrorAborts(t *testing.T) {
	boom := errors.New("transpile failed")
	tr, err := NewTrainer(testConfig([]float64{0.5, 0.5}), opt.NewNelderMead(100, 1e-6, 0.5), fixedBackend{err: boom})
	require.NoError(t, err)

	_, err = tr.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestTrainerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr, err := NewTrainer(testConfig([]float64{0.5, 0.5}), opt.NewNelderMead(100, 1e-6, 0.5),
		fixedBackend{counts: dist.Counts{"0": 512, "1": 512}})
	require.NoError(t, err)

	_, err = tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainerObserverAndConvergence(t *testing.T) {
	cfg := testConfig([]float64{0.5, 0.5})
	cfg.Layers = 1

	var seen []Evaluation
	tr, err := NewTrainer(cfg,
		opt.NewNelderMead(1000, 1e-12, 0.5),
		fixedBackend{counts: dist.Counts{"0": 1024}},
		WithObserver(func(e Evaluation) { seen = append(seen, e) }),
		WithConvergence(ConvergenceConfig{Enabled: true, Patience: 5, Threshold: 0.01}),
	)
	require.NoError(t, err)

	res, err := tr.Run(context.Background())
	require.NoError(t, err)

	// constant cost: the first evaluation sets the baseline, five stale ones stop the run
	assert.Equal(t, 6, res.Iterations)
	require.Len(t, seen, 6)
	for i, e := range seen {
		assert.Equal(t, i+1, e.Index)
		assert.InDelta(t, 1.0, e.Cost, 1e-12)
		assert.InDelta(t, 1.0, e.BestCost, 1e-12)
	}
	assert.InDelta(t, 1.0, res.Cost, 1e-12)

	_, err = NewTrainer(cfg, onceOptimizer{}, fixedBackend{}, WithConvergence(ConvergenceConfig{Enabled: true}))
	assert.Error(t, err)
}

func TestTrainerLearnsBalancedQubit(t *testing.T) {
	cfg := testConfig([]float64{0.5, 0.5})
	cfg.Layers = 1
	cfg.Shots = 4096
	cfg.Seed = 3

	tr, err := NewTrainer(cfg, opt.NewNelderMead(400, 1e-6, 0.5), backend.NewSimulator(11))
	require.NoError(t, err)

	res, err := tr.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, res.Cost, 0.15)
	assert.Greater(t, res.Iterations, 1)
	assert.LessOrEqual(t, res.Iterations, 400)
	assert.Len(t, res.Params, 3)
}

func TestResultSeriesAndReport(t *testing.T) {
	res := &TrainingResult{
		Target:        []float64{0.5, 0, 0, 0.5},
		Output:        []float64{0.25, 0, 0.25, 0.5},
		Counts:        dist.Counts{"00": 256, "01": 0, "10": 256, "11": 512},
		Cost:          0.5,
		FinalCost:     0.5,
		Params:        []float64{1, 2},
		InitialParams: []float64{0.1, 0.2},
		Iterations:    42,
		Qubits:        2,
		Shots:         1024,
	}

	assert.Equal(t, []string{"00", "01", "10", "11"}, res.Labels())
	assert.Equal(t, map[string]float64{"00": 512, "01": 0, "10": 0, "11": 512}, res.TargetCounts())

	series := res.Series()
	require.Len(t, series, 2)
	assert.Equal(t, SeriesTarget, series[0].Name)
	assert.Equal(t, SeriesOutput, series[1].Name)
	assert.Equal(t, 256.0, series[1].Values["10"])

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, res))
	out := buf.String()
	assert.Contains(t, out, "Target Distribution: [0.5 0 0 0.5]")
	assert.Contains(t, out, "Repetitions: 42")
	assert.Contains(t, out, "Initial Parameters: [0.1 0.2]")
	assert.Contains(t, out, "OUTPUT DIST")
	assert.Contains(t, out, "11")
}
