package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vehicleops-load/internal/target"
)

var (
	targetAddr        string
	targetPath        string
	targetFailureRate float64
	targetSeed        int64
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Serve a local event-notification endpoint",
	Long:  "target runs a stand-in for the hosted intake so load runs can be rehearsed locally.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := target.NewServer(target.Options{
			Path:        targetPath,
			FailureRate: targetFailureRate,
			Seed:        targetSeed,
		})
		if err := srv.Start(ctx, targetAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	targetCmd.Flags().StringVar(&targetAddr, "addr", ":9090", "Listen address")
	targetCmd.Flags().StringVar(&targetPath, "path", target.DefaultPath, "Endpoint path")
	targetCmd.Flags().Float64Var(&targetFailureRate, "failure-rate", 0, "Fraction of accepted events answered with HTTP 500")
	targetCmd.Flags().Int64Var(&targetSeed, "seed", 0, "Seed for failure injection (0 = time based)")
}
