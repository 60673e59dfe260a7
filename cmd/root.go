package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logLevel string
	logFile  string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vqafit",
	Short: "Variational quantum circuit trainer",
	Long: `vqafit trains a layered parameterized quantum circuit so that its
measured outcome distribution matches a target distribution. Circuits run on a
built-in state-vector simulator or a remote execution service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// stdout is reserved for reports and --json output
		var out io.Writer = os.Stderr
		if logFile != "" {
			out = &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    50, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(out, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotating file instead of stderr")
}
