package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/user/agentmetrics/internal/engine"
	"github.com/user/agentmetrics/internal/metrics"
	"github.com/user/agentmetrics/internal/types"
)

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderMetrics(out io.Writer, r *metrics.MetricsResult) error {
	fmt.Fprintf(out, "Period: %s\n", r.Period)
	if r.TotalTasks == 0 {
		fmt.Fprintln(out, "No tasks recorded.")
	} else {
		fmt.Fprintf(out, "Tasks:       %d (%d completed)\n", r.TotalTasks, r.CompletedTasks)
		fmt.Fprintf(out, "Success:     %s\n", percent(r.SuccessRate))
		fmt.Fprintf(out, "Confidence:  %.2f\n", r.AverageConfidence)
		fmt.Fprintf(out, "Calibration: %.2f\n", r.CalibrationScore)
		fmt.Fprintf(out, "Avg time:    %.0fs\n", r.AverageDurationSeconds)

		if len(r.TasksByType) > 0 {
			parts := make([]string, 0, len(r.TasksByType))
			for _, k := range sortedKeys(r.TasksByType) {
				parts = append(parts, fmt.Sprintf("%s=%d", k, r.TasksByType[k]))
			}
			fmt.Fprintf(out, "By type:     %s\n", strings.Join(parts, " "))
		}
		if len(r.TasksByOutcome) > 0 {
			parts := make([]string, 0, len(r.TasksByOutcome))
			for _, k := range sortedKeys(r.TasksByOutcome) {
				parts = append(parts, fmt.Sprintf("%s=%d", k, r.TasksByOutcome[k]))
			}
			fmt.Fprintf(out, "By outcome:  %s\n", strings.Join(parts, " "))
		}
	}

	if r.TotalFrustrations > 0 {
		fmt.Fprintf(out, "Frustration: %d events, rate %.2f, weighted %.0f (low=%d moderate=%d high=%d)\n",
			r.TotalFrustrations, r.FrustrationRate, r.WeightedFrustrationScore,
			r.FrustrationByLevel[types.FrustrationLow],
			r.FrustrationByLevel[types.FrustrationModerate],
			r.FrustrationByLevel[types.FrustrationHigh])
	}

	if len(r.Tasks) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tOUTCOME\tCONFIDENCE\tDESCRIPTION")
	for _, t := range r.Tasks {
		confidence := "-"
		if t.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *t.Confidence)
		}
		outcome := string(t.Outcome)
		if outcome == "" {
			outcome = "-"
		}
		desc := t.Description
		if len(desc) > 50 {
			desc = desc[:47] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.TaskID, t.TaskType, t.Status, outcome, confidence, desc)
	}
	return w.Flush()
}

func renderHookSummary(out io.Writer, s *metrics.HookSummary) error {
	if s.TotalExecutions == 0 {
		fmt.Fprintln(out, "No hook executions recorded.")
		return nil
	}
	fmt.Fprintf(out, "Executions: %d (%d passed, %d failed, %s pass rate)\n",
		s.TotalExecutions, s.Passed, s.Failed, percent(s.PassRate))
	fmt.Fprintf(out, "Unique hooks: %d, total time %dms\n\n", s.UniqueHooks, s.TotalDurationMs)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOOK TYPE\tTOTAL\tPASSED")
	for _, k := range sortedKeys(s.ByType) {
		fmt.Fprintf(w, "%s\t%d\t%d\n", k, s.ByType[k].Total, s.ByType[k].Passed)
	}
	return w.Flush()
}

func renderHookFailures(out io.Writer, failures []metrics.HookFailure) error {
	if len(failures) == 0 {
		fmt.Fprintln(out, "No failing hooks.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOOK\tSOURCE\tRUNS\tFAILURES\tRATE")
	for _, f := range failures {
		source := f.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f%%\n", f.Name, source, f.Total, f.Failures, f.FailureRate)
	}
	return w.Flush()
}

func renderSessions(out io.Writer, m *metrics.SessionMetrics) error {
	if len(m.Sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tMINUTES\tTASKS\tOK\tFAILED\tHOOKS")
	for _, s := range m.Sessions {
		minutes := fmt.Sprintf("%d", s.DurationMinutes)
		if s.Active() {
			minutes = "active"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d/%d\n",
			s.SessionID, s.StartedAt.Format("2006-01-02 15:04"), minutes,
			s.TaskCount, s.SuccessCount, s.FailureCount,
			s.HooksPassed, s.HooksPassed+s.HooksFailed)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSuccess rate trend: %s\n", m.Trends.SuccessRate)
	fmt.Fprintf(out, "Calibration trend:  %s\n", m.Trends.Calibration)
	return nil
}

func renderDashboard(out io.Writer, d *engine.Dashboard) error {
	fmt.Fprintln(out, "== Tasks ==")
	if err := renderMetrics(out, d.Metrics); err != nil {
		return err
	}
	fmt.Fprintln(out, "\n== Hooks ==")
	if err := renderHookSummary(out, d.Hooks); err != nil {
		return err
	}
	if len(d.HookFailures) > 0 {
		fmt.Fprintln(out)
		if err := renderHookFailures(out, d.HookFailures); err != nil {
			return err
		}
	}
	fmt.Fprintln(out, "\n== Sessions ==")
	return renderSessions(out, d.Sessions)
}
