package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/user/agentmetrics/internal/metrics"
	"github.com/user/agentmetrics/internal/types"
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(queryMetricsCmd, queryHooksCmd, queryHookFailuresCmd, querySessionsCmd, queryDashboardCmd)

	queryCmd.PersistentFlags().String("period", "", "day, week or month (defaults to metrics.default_period)")

	queryMetricsCmd.Flags().String("type", "", "only tasks of this type")
	queryMetricsCmd.Flags().String("outcome", "", "only tasks with this outcome")

	querySessionsCmd.Flags().Int("limit", 0, "maximum sessions to list (defaults to metrics.session_limit)")
	queryDashboardCmd.Flags().Int("limit", 0, "maximum sessions to list (defaults to metrics.session_limit)")
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Aggregate recorded telemetry",
}

var queryMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Task success, calibration and frustration statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskType, _ := cmd.Flags().GetString("type")
		outcome, _ := cmd.Flags().GetString("outcome")

		e, cfg, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.QueryMetrics(cmd.Context(), metrics.MetricsQuery{
			Period:   periodFlag(cmd, cfg),
			TaskType: taskType,
			Outcome:  types.Outcome(outcome),
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		return renderMetrics(os.Stdout, res)
	},
}

var queryHooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Hook execution totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cfg, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.AllHookStats(cmd.Context(), periodFlag(cmd, cfg))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		return renderHookSummary(os.Stdout, res)
	},
}

var queryHookFailuresCmd = &cobra.Command{
	Use:   "hook-failures",
	Short: "Hooks failing more than 20% of the time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cfg, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.HookFailureStats(cmd.Context(), periodFlag(cmd, cfg))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		return renderHookFailures(os.Stdout, res)
	},
}

var querySessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Recent sessions and trends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cfg, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.QuerySessionMetrics(cmd.Context(), periodFlag(cmd, cfg), sessionLimit(cmd, cfg.Metrics.SessionLimit))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		return renderSessions(os.Stdout, res)
	},
}

var queryDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Metrics, hooks and sessions in one report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cfg, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		d, err := e.Dashboard(cmd.Context(), periodFlag(cmd, cfg), sessionLimit(cmd, cfg.Metrics.SessionLimit))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(d)
		}
		return renderDashboard(os.Stdout, d)
	},
}

func sessionLimit(cmd *cobra.Command, fallback int) int {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fallback
	}
	return limit
}
