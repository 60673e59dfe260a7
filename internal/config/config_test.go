package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/vqafit/internal/ansatz"
	"github.com/cwbudde/vqafit/internal/backend"
	"github.com/cwbudde/vqafit/internal/opt"
	"github.com/cwbudde/vqafit/internal/vqa"
)

func validRun() Run {
	r := Defaults()
	r.Target = []float64{0.5, 0, 0, 0.5}
	return r
}

func TestDefaults(t *testing.T) {
	r := Defaults()
	assert.Equal(t, "U3", r.Gate)
	assert.Equal(t, 4, r.Layers)
	assert.Equal(t, "Linear", r.Entanglement)
	assert.Equal(t, 1024, r.Shots)
	assert.Equal(t, "neldermead", r.Optimizer)
	assert.Equal(t, "simulator", r.Backend)

	var empty Run
	empty.ApplyDefaults()
	want := Defaults()
	want.Seed = 0
	assert.Equal(t, want, empty)
}

func TestApplyDefaultsCanonicalizesNames(t *testing.T) {
	r := validRun()
	r.Gate = " ryrz"
	r.Entanglement = "FULL"
	r.ApplyDefaults()
	assert.Equal(t, "RYRZ", r.Gate)
	assert.Equal(t, "Full", r.Entanglement)

	r.Gate = "u"
	r.Entanglement = "linear"
	r.ApplyDefaults()
	assert.Equal(t, "U3", r.Gate)
	assert.Equal(t, "Linear", r.Entanglement)

	// unknown names are left for Validate to report
	r.Gate = "crx"
	r.ApplyDefaults()
	assert.Equal(t, "crx", r.Gate)
	assert.ErrorIs(t, r.Validate(), ansatz.ErrUnknownGateFamily)
}

func TestSeedZeroIsKept(t *testing.T) {
	r, err := Parse([]byte("target: [0.5, 0.5]\nseed: 0\n"))
	require.NoError(t, err)
	r.ApplyDefaults()
	assert.Equal(t, int64(0), r.Seed)

	r, err = Parse([]byte("target: [0.5, 0.5]\n"))
	require.NoError(t, err)
	r.ApplyDefaults()
	assert.Equal(t, int64(42), r.Seed)

	tc, err := r.TrainerConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(42), tc.Seed)
}

func TestParseYAML(t *testing.T) {
	doc := `
target: [0.25, 0.25, 0.25, 0.25]
gate: ryrz
layers: 2
entanglement: full
shots: 2048
optimizer: mayfly
popSize: 30
convergence:
  patience: 50
  threshold: 0.01
`
	r, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, r.Validate())

	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, r.Target)
	assert.Equal(t, 2, r.Layers)
	assert.Equal(t, 2048, r.Shots)
	assert.Equal(t, 30, r.PopSize)
	// untouched keys keep their defaults
	assert.Equal(t, "simulator", r.Backend)
	assert.Equal(t, int64(42), r.Seed)

	tc, err := r.TrainerConfig()
	require.NoError(t, err)
	assert.Equal(t, ansatz.RYRZ, tc.Gate)
	assert.Equal(t, ansatz.Full, tc.Entanglement)

	cc := r.ConvergenceConfig()
	assert.True(t, cc.Enabled)
	assert.Equal(t, 50, cc.Patience)

	n, err := r.ParamCount()
	require.NoError(t, err)
	assert.Equal(t, 3*2*2, n)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("target: [1]\ncircles: 3\n"))
	assert.Error(t, err)
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"target": [0.5, 0.5], "shots": 100, "legacyCursor": true}`), 0644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, r.Shots)
	assert.True(t, r.LegacyCursor)
	assert.NoError(t, r.Validate())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Run)
		target error
	}{
		{"empty target", func(r *Run) { r.Target = nil }, vqa.ErrInvalidTarget},
		{"odd target", func(r *Run) { r.Target = []float64{0.3, 0.3, 0.4} }, vqa.ErrInvalidTarget},
		{"negative probability", func(r *Run) { r.Target = []float64{-0.5, 1.5} }, ErrInvalid},
		{"gate", func(r *Run) { r.Gate = "CZ" }, ansatz.ErrUnknownGateFamily},
		{"entanglement", func(r *Run) { r.Entanglement = "circular" }, ansatz.ErrUnknownEntanglement},
		{"layers", func(r *Run) { r.Layers = -1 }, ErrInvalid},
		{"shots", func(r *Run) { r.Shots = 0 }, ErrInvalid},
		{"optimizer", func(r *Run) { r.Optimizer = "cobyla" }, opt.ErrUnknownOptimizer},
		{"mayfly population", func(r *Run) { r.Optimizer = "mayfly"; r.PopSize = 5 }, ErrInvalid},
		{"backend", func(r *Run) { r.Backend = "ibmq" }, backend.ErrUnknownBackend},
		{"remote without url", func(r *Run) { r.Backend = "remote" }, ErrInvalid},
		{"rate limit", func(r *Run) { r.RateLimit = -1 }, ErrInvalid},
		{"convergence", func(r *Run) { r.Convergence.Patience = -3 }, ErrInvalid},
	}

	require.NoError(t, validRun().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRun()
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestFactories(t *testing.T) {
	r := validRun()

	o, err := r.NewOptimizer()
	require.NoError(t, err)
	assert.IsType(t, &opt.NelderMead{}, o)

	b, err := r.NewBackend()
	require.NoError(t, err)
	assert.Equal(t, "simulator", b.Name())

	tr, err := r.NewTrainer(nil)
	require.NoError(t, err)
	assert.Len(t, tr.InitialParams(), 3*2*4)

	r.Backend = "remote"
	r.BackendURL = "http://localhost:9000"
	b, err = r.NewBackend()
	require.NoError(t, err)
	assert.Equal(t, "remote", b.Name())
}

func TestMarshalRoundTrip(t *testing.T) {
	r := validRun()
	r.Convergence = Convergence{Patience: 10, Threshold: 0.05}

	data, err := r.Marshal()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}
