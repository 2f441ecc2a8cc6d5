package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/agentmetrics/internal/engine"
	"github.com/user/agentmetrics/internal/types"
)

func init() {
	rootCmd.AddCommand(hookCmd, frustrationCmd)
	hookCmd.AddCommand(hookRecordCmd)
	frustrationCmd.AddCommand(frustrationRecordCmd)

	hookRecordCmd.Flags().String("type", "", "hook event type, e.g. Stop or PreToolUse (required)")
	hookRecordCmd.Flags().String("name", "", "hook name (required)")
	hookRecordCmd.Flags().String("source", "", "plugin or settings file that defined the hook")
	hookRecordCmd.Flags().String("session", "", "session id (defaults to the most recent open session)")
	hookRecordCmd.Flags().String("task", "", "task id")
	hookRecordCmd.Flags().Int64("duration-ms", 0, "run time in milliseconds")
	hookRecordCmd.Flags().Int("exit-code", 0, "process exit code")
	hookRecordCmd.Flags().Bool("passed", false, "whether the hook passed (defaults to exit code 0)")
	hookRecordCmd.Flags().String("output", "", "captured output")
	hookRecordCmd.Flags().String("error", "", "captured error")

	frustrationRecordCmd.Flags().String("message", "", "the user message (required)")
	frustrationRecordCmd.Flags().String("level", "", "low, moderate or high (detected from the message when empty)")
	frustrationRecordCmd.Flags().Float64("score", 0, "frustration score")
	frustrationRecordCmd.Flags().StringSlice("signals", nil, "detected signals")
	frustrationRecordCmd.Flags().String("task", "", "task id")
	frustrationRecordCmd.Flags().String("context", "", "what was happening")
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Record hook executions",
}

var hookRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one hook run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		hookType, _ := f.GetString("type")
		name, _ := f.GetString("name")
		source, _ := f.GetString("source")
		session, _ := f.GetString("session")
		task, _ := f.GetString("task")
		durationMs, _ := f.GetInt64("duration-ms")
		exitCode, _ := f.GetInt("exit-code")
		output, _ := f.GetString("output")
		errText, _ := f.GetString("error")

		passed := exitCode == 0
		if f.Changed("passed") {
			passed, _ = f.GetBool("passed")
		}

		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		if session == "" {
			id, ok, err := e.CurrentSession(cmd.Context())
			if err != nil {
				return err
			}
			if ok {
				session = string(id)
			}
		}

		err = e.RecordHookExecution(cmd.Context(), engine.HookExecutionParams{
			SessionID:  types.SessionID(session),
			TaskID:     types.TaskID(task),
			HookType:   hookType,
			HookName:   name,
			HookSource: source,
			DurationMs: durationMs,
			ExitCode:   exitCode,
			Passed:     passed,
			Output:     output,
			Error:      errText,
		})
		if err != nil {
			return err
		}
		status := "passed"
		if !passed {
			status = "failed"
		}
		fmt.Fprintf(os.Stdout, "Recorded %s hook %s (%s).\n", hookType, name, status)
		return nil
	},
}

var frustrationCmd = &cobra.Command{
	Use:   "frustration",
	Short: "Record user frustration",
}

var frustrationRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a frustration signal, detecting the level when not given",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		message, _ := f.GetString("message")
		level, _ := f.GetString("level")
		score, _ := f.GetFloat64("score")
		signals, _ := f.GetStringSlice("signals")
		task, _ := f.GetString("task")
		note, _ := f.GetString("context")

		if message == "" {
			return fmt.Errorf("%w: --message is required", types.ErrInvalidArgument)
		}

		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.RecordFrustration(cmd.Context(), engine.FrustrationParams{
			TaskID:      types.TaskID(task),
			Level:       types.FrustrationLevel(strings.ToLower(level)),
			Score:       score,
			UserMessage: message,
			Signals:     signals,
			Context:     note,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		if !res.Recorded {
			fmt.Fprintf(os.Stdout, "No frustration detected (score %.1f).\n", res.Score)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Recorded %s frustration (score %.1f).\n", res.Level, res.Score)
		if len(res.Signals) > 0 {
			fmt.Fprintf(os.Stdout, "Signals: %s\n", strings.Join(res.Signals, "; "))
		}
		return nil
	},
}
