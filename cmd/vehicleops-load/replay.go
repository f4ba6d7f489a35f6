package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vehicleops-load/internal/config"
	"vehicleops-load/internal/load"
	"vehicleops-load/internal/logging"
)

var (
	replayInput       string
	replayTarget      string
	replaySpeed       float64
	replayTimeout     time.Duration
	replayOutput      string
	replayResultsFile string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a results log against a target",
	Long:  "replay re-sends the records captured in a results file, keeping their recorded spacing scaled by --speed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		target := replayTarget
		if target == "" {
			target = os.Getenv("TARGET_URL")
		}
		if target == "" {
			return fmt.Errorf("target URL required (--target or TARGET_URL)")
		}

		cfg := config.Default()
		cfg.TargetURL = target
		sinks, err := newResultWriter(cfg, replayOutput, replayResultsFile)
		if err != nil {
			return err
		}
		defer sinks.Close()
		if sinks.tui != nil {
			silenceLogs()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		runID := "replay-" + uuid.NewString()
		ctx = logging.NewContext(ctx, slog.Default().With("run_id", runID))

		checks := load.NewChecks()
		inv := load.NewInvoker(load.InvokerConfig{
			RunID: runID,
			URL:   target,
		}, load.NewHTTPTransport(load.TransportOptions{Timeout: replayTimeout}), checks, sinks.writer)

		n, err := load.ReplayLogFile(ctx, replayInput, inv, replaySpeed)
		if sinks.tui != nil {
			sinks.tui.Finish()
			sinks.tui.Wait()
		}
		slog.Info("replay finished", "rows", n)
		for _, c := range checks.Snapshot() {
			slog.Info("check summary", "check", c.Name, "passes", c.Passes, "fails", c.Fails)
		}
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to results log file")
	replayCmd.Flags().StringVar(&replayTarget, "target", "", "Target URL (defaults to TARGET_URL)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 sends back to back)")
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", config.DefaultTimeout, "HTTP request timeout")
	replayCmd.Flags().StringVar(&replayOutput, "output", outputJSON, "Result output: json, tui or none")
	replayCmd.Flags().StringVar(&replayResultsFile, "results-file", "", "Path to export replay result rows (JSONL)")
	replayCmd.MarkFlagRequired("input")
}
