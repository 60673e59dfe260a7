package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cwbudde/vqafit/internal/store"
)

var resumeOpts runFlags

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume training from a checkpoint",
	Long: `Continues a saved run from its best parameters. The target and the
ansatz shape (gate, layers, entanglement) must stay the same; optimizer,
budget, shots and backend may be changed with flags.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	addRunFlags(resumeCmd, &resumeOpts)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	checkpointStore, err := store.NewFSStore(resumeOpts.dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	checkpoint, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		return err
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("invalid checkpoint: %w", err)
	}

	cfg := checkpoint.Config
	resumeOpts.apply(cmd, &cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := checkpoint.IsCompatible(cfg); err != nil {
		return err
	}

	slog.Info("Resuming from checkpoint",
		"job_id", jobID,
		"best_cost", checkpoint.BestCost,
		"evaluations", checkpoint.Evaluations,
	)

	// resumed runs always persist back into the same job
	resumeOpts.save = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return train(ctx, cmd.OutOrStdout(), &resumeOpts, session{
		jobID:         jobID,
		cfg:           cfg,
		initialParams: checkpoint.BestParams,
		priorEvals:    checkpoint.Evaluations,
		initialCost:   checkpoint.InitialCost,
	})
}
