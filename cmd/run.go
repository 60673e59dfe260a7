package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/vqafit/internal/ansatz"
	"github.com/cwbudde/vqafit/internal/config"
	"github.com/cwbudde/vqafit/internal/store"
	"github.com/cwbudde/vqafit/internal/vqa"
)

// runFlags are shared by run and resume. Only flags the user changed
// override the configuration file or checkpoint.
type runFlags struct {
	configPath   string
	target       []float64
	gate         string
	layers       int
	entanglement string
	shots        int
	legacyCursor bool
	seed         int64
	optimizer    string
	maxEvals     int
	tolerance    float64
	popSize      int
	maxIters     int
	backend      string
	backendURL   string
	rateLimit    float64
	patience     int
	threshold    float64

	jsonOutput   bool
	save         bool
	dataDir      string
	printCircuit bool
	traceParams  bool
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Train a circuit towards a target distribution",
	Long: `Trains the ansatz against the target distribution and prints the
obtained distribution, the final cost and the parameters found.

The run is described by --config (YAML) and the flags below; flags given on
the command line take precedence over the file.`,
	Example: `  vqafit run --target 0.5,0,0,0.5 --layers 2
  vqafit run --config run.yaml --optimizer mayfly --json
  vqafit run --target 0.25,0.25,0.25,0.25 --save --data-dir ./data`,
	RunE: runTraining,
}

func init() {
	addRunFlags(runCmd, &runOpts)
	runCmd.Flags().StringVar(&runOpts.configPath, "config", "", "YAML run configuration")
	runCmd.Flags().Float64SliceVar(&runOpts.target, "target", nil, "Target distribution, comma separated (length must be a power of two)")
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	d := config.Defaults()

	cmd.Flags().StringVar(&f.gate, "gate", d.Gate, "Gate family: u3, ryrz")
	cmd.Flags().IntVar(&f.layers, "layers", d.Layers, "Number of ansatz layers")
	cmd.Flags().StringVar(&f.entanglement, "entanglement", d.Entanglement, "Entanglement topology: linear, full")
	cmd.Flags().IntVar(&f.shots, "shots", d.Shots, "Shots per circuit execution")
	cmd.Flags().BoolVar(&f.legacyCursor, "legacy-cursor", false, "Reproduce the historical U3 parameter layout")
	cmd.Flags().Int64Var(&f.seed, "seed", d.Seed, "Random seed for initial parameters, sampling and mayfly")
	cmd.Flags().StringVar(&f.optimizer, "optimizer", d.Optimizer, "Optimizer: neldermead, mayfly")
	cmd.Flags().IntVar(&f.maxEvals, "max-evals", d.MaxEvals, "Cost evaluation budget (neldermead)")
	cmd.Flags().Float64Var(&f.tolerance, "tolerance", d.Tolerance, "Absolute cost change treated as converged (neldermead)")
	cmd.Flags().IntVar(&f.popSize, "pop", d.PopSize, "Population size (mayfly)")
	cmd.Flags().IntVar(&f.maxIters, "iters", d.MaxIters, "Max iterations (mayfly)")
	cmd.Flags().StringVar(&f.backend, "backend", d.Backend, "Backend: simulator, remote")
	cmd.Flags().StringVar(&f.backendURL, "backend-url", "", "Base URL of the remote execution service")
	cmd.Flags().Float64Var(&f.rateLimit, "rate-limit", 0, "Max remote requests per second (0 = unlimited)")
	cmd.Flags().IntVar(&f.patience, "patience", 0, "Stop after this many evaluations without improvement (0 = disabled)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0.01, "Relative improvement counted as progress")

	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&f.save, "save", false, "Save checkpoint, result and trace under --data-dir")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "./data", "Base directory for checkpoint storage")
	cmd.Flags().BoolVar(&f.printCircuit, "print-circuit", false, "Print the trained circuit as OpenQASM")
	cmd.Flags().BoolVar(&f.traceParams, "trace-params", false, "Include parameter vectors in the trace")
}

// apply copies every changed flag into cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Run) {
	changed := cmd.Flags().Changed

	if changed("target") {
		cfg.Target = append([]float64(nil), f.target...)
	}
	if changed("gate") {
		cfg.Gate = f.gate
	}
	if changed("layers") {
		cfg.Layers = f.layers
	}
	if changed("entanglement") {
		cfg.Entanglement = f.entanglement
	}
	if changed("shots") {
		cfg.Shots = f.shots
	}
	if changed("legacy-cursor") {
		cfg.LegacyCursor = f.legacyCursor
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("optimizer") {
		cfg.Optimizer = f.optimizer
	}
	if changed("max-evals") {
		cfg.MaxEvals = f.maxEvals
	}
	if changed("tolerance") {
		cfg.Tolerance = f.tolerance
	}
	if changed("pop") {
		cfg.PopSize = f.popSize
	}
	if changed("iters") {
		cfg.MaxIters = f.maxIters
	}
	if changed("backend") {
		cfg.Backend = f.backend
	}
	if changed("backend-url") {
		cfg.BackendURL = f.backendURL
	}
	if changed("rate-limit") {
		cfg.RateLimit = f.rateLimit
	}
	if changed("patience") {
		cfg.Convergence.Patience = f.patience
		if cfg.Convergence.Threshold == 0 {
			cfg.Convergence.Threshold = f.threshold
		}
	}
	if changed("threshold") {
		cfg.Convergence.Threshold = f.threshold
	}
}

// loadRun builds the run configuration from --config and the changed flags.
func loadRun(cmd *cobra.Command, f *runFlags) (config.Run, error) {
	cfg := config.Defaults()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Run{}, err
		}
		cfg = loaded
	}

	f.apply(cmd, &cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Run{}, err
	}
	return cfg, nil
}

func runTraining(cmd *cobra.Command, args []string) error {
	cfg, err := loadRun(cmd, &runOpts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return train(ctx, cmd.OutOrStdout(), &runOpts, session{
		jobID: uuid.New().String(),
		cfg:   cfg,
	})
}

// session describes one training invocation of run or resume.
type session struct {
	jobID string
	cfg   config.Run

	// set when resuming
	initialParams []float64
	priorEvals    int
	initialCost   float64
}

// progress tracks the best point seen so an interrupted run can still be
// checkpointed.
type progress struct {
	evals       int
	initialCost float64
	bestCost    float64
	bestParams  []float64
}

func (p *progress) observe(e vqa.Evaluation) {
	p.evals = e.Index
	if e.Index == 1 {
		p.initialCost = e.Cost
	}
	if e.Cost <= e.BestCost {
		p.bestParams = append(p.bestParams[:0], e.Params...)
	}
	p.bestCost = e.BestCost

	if e.Index%100 == 0 {
		slog.Debug("Training progress", "evaluations", e.Index, "cost", e.Cost, "best_cost", e.BestCost)
	}
}

func train(ctx context.Context, out io.Writer, f *runFlags, s session) error {
	var (
		checkpointStore *store.FSStore
		trace           *store.TraceWriter
		err             error
	)
	if f.save {
		checkpointStore, err = store.NewFSStore(f.dataDir)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		trace, err = checkpointStore.OpenTrace(s.jobID, len(s.initialParams) > 0)
		if err != nil {
			return err
		}
		defer trace.Close()
	}

	var p progress
	var traceObserver vqa.Observer
	if trace != nil {
		traceObserver = trace.Observer(f.traceParams, func(err error) {
			slog.Warn("Failed to write trace entry", "job_id", s.jobID, "error", err)
		})
	}
	observer := func(e vqa.Evaluation) {
		p.observe(e)
		if traceObserver != nil {
			traceObserver(e)
		}
	}

	opts := []vqa.Option{vqa.WithObserver(observer)}
	if len(s.initialParams) > 0 {
		opts = append(opts, vqa.WithInitialParams(s.initialParams))
	}
	trainer, err := s.cfg.NewTrainer(nil, opts...)
	if err != nil {
		return err
	}

	qubits, _ := s.cfg.Qubits()
	slog.Info("Starting training",
		"job_id", s.jobID,
		"qubits", qubits,
		"layers", s.cfg.Layers,
		"gate", s.cfg.Gate,
		"entanglement", s.cfg.Entanglement,
		"optimizer", s.cfg.Optimizer,
		"backend", s.cfg.Backend,
	)

	start := time.Now()
	result, err := trainer.Run(ctx)
	if err != nil {
		if checkpointStore != nil && errors.Is(err, context.Canceled) && p.evals > 0 {
			cp := s.checkpoint(p.bestParams, p.bestCost, p.initialCost, p.evals, trainer.InitialParams())
			if serr := checkpointStore.SaveCheckpoint(s.jobID, cp); serr != nil {
				slog.Error("Failed to save checkpoint", "job_id", s.jobID, "error", serr)
			} else {
				slog.Info("Interrupted run checkpointed", "job_id", s.jobID, "best_cost", p.bestCost)
			}
		}
		return fmt.Errorf("training failed: %w", err)
	}

	slog.Info("Training complete",
		"job_id", s.jobID,
		"elapsed", time.Since(start),
		"cost", result.Cost,
		"final_cost", result.FinalCost,
		"iterations", result.Iterations,
	)

	if checkpointStore != nil {
		cp := s.checkpoint(result.Params, result.Cost, p.initialCost, result.Iterations, result.InitialParams)
		if err := checkpointStore.SaveCheckpoint(s.jobID, cp); err != nil {
			return err
		}
		if err := checkpointStore.SaveResult(s.jobID, result); err != nil {
			return err
		}
		slog.Info("Saved run", "job_id", s.jobID, "dir", checkpointStore.BaseDir())
	}

	if f.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			JobID string `json:"jobId,omitempty"`
			*vqa.TrainingResult
		}{savedID(f, s.jobID), result}); err != nil {
			return err
		}
	} else {
		if err := vqa.WriteReport(out, result); err != nil {
			return err
		}
		if f.save {
			fmt.Fprintf(out, "\nJob ID: %s\n", s.jobID)
		}
	}

	if f.printCircuit {
		c, err := ansatz.Build(result.Params, trainer.Ansatz())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s", c.QASM())
	}
	return nil
}

func savedID(f *runFlags, jobID string) string {
	if f.save {
		return jobID
	}
	return ""
}

// checkpoint builds the checkpoint of this session. Evaluations and the
// initial cost accumulate across resumes.
func (s session) checkpoint(best []float64, bestCost, initialCost float64, evals int, initial []float64) *store.Checkpoint {
	if s.priorEvals > 0 {
		initialCost = s.initialCost
	}
	cp := store.NewCheckpoint(s.jobID, best, bestCost, initialCost, s.priorEvals+evals, s.cfg)
	cp.InitialParams = append([]float64(nil), initial...)
	return cp
}
