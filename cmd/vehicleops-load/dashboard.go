package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"vehicleops-load/internal/dashboard"
	"vehicleops-load/internal/load"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB results table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dashboard.Render(dashboardOut, dashboard.Params{Table: load.ResultsTableName}); err != nil {
			return err
		}
		slog.Info("dashboards rendered", "dir", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
