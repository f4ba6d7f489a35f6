package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vehicleops-load/internal/logging"
)

var (
	logFormat string
	logLevel  string
	logFile   string
	envFile   string

	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "vehicleops-load",
	Short: "Vehicle telemetry load generator",
	Long:  "vehicleops-load drives synthetic vehicle position and emergency events against an event-notification endpoint.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		return setupLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of STDERR")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default .env when present)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadEnvFile loads path, or ./.env when path is empty and the file exists.
// Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func setupLogging() error {
	var out io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
		logCloser = f
	}
	l, err := logging.NewWithOptions(out, logFormat, logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(l)
	return nil
}

// silenceLogs drops log output unless it already goes to a file. Used while
// the TUI owns the terminal.
func silenceLogs() {
	if logFile != "" {
		return
	}
	l, _ := logging.NewWithOptions(io.Discard, logFormat, logLevel)
	slog.SetDefault(l)
}
