package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vehicleops-load/internal/admin"
	"vehicleops-load/internal/config"
	"vehicleops-load/internal/load"
	"vehicleops-load/internal/logging"
)

var (
	runConfigPath  string
	runSchemaPath  string
	runTarget      string
	runVUs         int
	runIterations  int
	runDuration    time.Duration
	runOutput      string
	runResultsFile string
	runAdminAddr   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test against the event-notification endpoint",
	Long:  "run starts the configured virtual users, posts one synthetic vehicle event per iteration and checks for HTTP 200.",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		cfg, err := config.Load(runConfigPath, runSchemaPath, func(c *config.LoadTestConfig) {
			if flags.Changed("target") {
				c.TargetURL = runTarget
			}
			if flags.Changed("vus") {
				c.VirtualUsers = runVUs
			}
			if flags.Changed("iterations") {
				c.Iterations = runIterations
			}
			if flags.Changed("duration") {
				c.Duration = runDuration
			}
		})
		if err != nil {
			return err
		}

		sinks, err := newResultWriter(cfg, runOutput, runResultsFile)
		if err != nil {
			return err
		}
		defer sinks.Close()
		if sinks.tui != nil {
			silenceLogs()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, slog.Default())

		transport := load.NewHTTPTransport(load.TransportOptions{
			Timeout:            cfg.Timeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
		runner := load.NewRunner(cfg, transport, sinks.writer)

		if runAdminAddr != "" {
			srv := admin.NewServer(runner)
			go func() {
				slog.Info("admin UI listening", "addr", runAdminAddr)
				if err := srv.Start(ctx, runAdminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("admin server failed", "err", err)
				}
			}()
		}

		if err := runner.Run(ctx); err != nil {
			return err
		}
		if sinks.tui != nil {
			sinks.tui.Finish()
			sinks.tui.Wait()
		}

		st := runner.Status()
		for _, c := range st.Checks {
			slog.Info("check summary", "check", c.Name, "passes", c.Passes, "fails", c.Fails)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/run.yaml", "Path to run configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/run.cue", "Path to CUE schema file (empty to skip)")
	runCmd.Flags().StringVar(&runTarget, "target", "", "Override the target URL")
	runCmd.Flags().IntVar(&runVUs, "vus", 0, "Override the virtual user count")
	runCmd.Flags().IntVar(&runIterations, "iterations", 0, "Override the total iteration count")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Override the run duration ceiling (e.g. 30s)")
	runCmd.Flags().StringVar(&runOutput, "output", outputJSON, "Result output: json, tui or none")
	runCmd.Flags().StringVar(&runResultsFile, "results-file", "", "Path to export result rows (JSONL, replayable)")
	runCmd.Flags().StringVar(&runAdminAddr, "admin-addr", ":8080", "Admin UI listen address (empty to disable)")
}
