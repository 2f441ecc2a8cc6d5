package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/agentmetrics/internal/tracker"
	"github.com/user/agentmetrics/internal/types"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskStartCmd, taskUpdateCmd, taskCompleteCmd, taskFailCmd)

	taskStartCmd.Flags().String("description", "", "what the task is (required)")
	taskStartCmd.Flags().String("type", "", "task type: implementation, fix, refactor, research (required)")
	taskStartCmd.Flags().String("complexity", "", "simple, moderate or complex")
	taskStartCmd.Flags().String("session", "", "session id (defaults to the active session)")

	taskUpdateCmd.Flags().String("status", "", "new status")
	taskUpdateCmd.Flags().String("notes", "", "progress notes")

	taskCompleteCmd.Flags().String("outcome", "", "success, partial or failure (required)")
	taskCompleteCmd.Flags().Float64("confidence", 0, "self-assessed confidence between 0 and 1 (required)")
	taskCompleteCmd.Flags().StringSlice("files", nil, "files modified")
	taskCompleteCmd.Flags().Int("tests", 0, "number of tests added")
	taskCompleteCmd.Flags().String("notes", "", "completion notes")

	taskFailCmd.Flags().String("reason", "", "why the task failed (required)")
	taskFailCmd.Flags().Float64("confidence", 0, "confidence in the failure diagnosis")
	taskFailCmd.Flags().StringSlice("attempted", nil, "solutions that were tried")
	taskFailCmd.Flags().String("notes", "", "failure notes")
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Track tasks",
}

var taskStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		taskType, _ := cmd.Flags().GetString("type")
		complexity, _ := cmd.Flags().GetString("complexity")
		session, _ := cmd.Flags().GetString("session")

		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		id, err := e.StartTask(cmd.Context(), tracker.StartTaskParams{
			Description: description,
			TaskType:    taskType,
			Complexity:  complexity,
			SessionID:   types.SessionID(session),
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]types.TaskID{"task_id": id})
		}
		fmt.Fprintln(os.Stdout, id)
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Record task progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		notes, _ := cmd.Flags().GetString("notes")

		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		err = e.UpdateTask(cmd.Context(), tracker.UpdateTaskParams{
			TaskID: types.TaskID(args[0]),
			Status: status,
			Notes:  notes,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Updated task %s.\n", args[0])
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, _ := cmd.Flags().GetString("outcome")
		confidence, _ := cmd.Flags().GetFloat64("confidence")
		files, _ := cmd.Flags().GetStringSlice("files")
		notes, _ := cmd.Flags().GetString("notes")

		if !cmd.Flags().Changed("confidence") {
			return fmt.Errorf("%w: --confidence is required", types.ErrInvalidArgument)
		}

		p := tracker.CompleteTaskParams{
			TaskID:        types.TaskID(args[0]),
			Outcome:       types.Outcome(outcome),
			Confidence:    confidence,
			FilesModified: files,
			Notes:         notes,
		}
		if cmd.Flags().Changed("tests") {
			tests, _ := cmd.Flags().GetInt("tests")
			p.TestsAdded = &tests
		}

		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.CompleteTask(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Completed task %s (%s).\n", args[0], outcome)
		return nil
	},
}

var taskFailCmd = &cobra.Command{
	Use:   "fail <id>",
	Short: "Mark a task failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		attempted, _ := cmd.Flags().GetStringSlice("attempted")
		notes, _ := cmd.Flags().GetString("notes")

		p := tracker.FailTaskParams{
			TaskID:             types.TaskID(args[0]),
			Reason:             reason,
			AttemptedSolutions: attempted,
			Notes:              notes,
		}
		if cmd.Flags().Changed("confidence") {
			confidence, _ := cmd.Flags().GetFloat64("confidence")
			p.Confidence = &confidence
		}

		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.FailTask(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Failed task %s: %s\n", args[0], reason)
		return nil
	},
}
