package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/agentmetrics/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd, sessionCurrentCmd)

	sessionStartCmd.Flags().String("id", "", "session id to start or resume (generated when empty)")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Track sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session, or resume one seen in the last week",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")

		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.StartSession(cmd.Context(), types.SessionID(id))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		if res.Resumed {
			fmt.Fprintf(os.Stdout, "Resumed session %s.\n", res.SessionID)
		} else {
			fmt.Fprintf(os.Stdout, "Started session %s.\n", res.SessionID)
		}
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "End a session and record its task counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.EndSession(cmd.Context(), types.SessionID(args[0]))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Fprintf(os.Stdout, "Ended session %s after %d min: %d tasks, %d succeeded, %d failed.\n",
			res.SessionID, res.DurationMinutes, res.TaskCount, res.SuccessCount, res.FailureCount)
		return nil
	},
}

var sessionCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the most recent session that has not ended",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		id, ok, err := e.CurrentSession(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			if !ok {
				return printJSON(nil)
			}
			return printJSON(map[string]types.SessionID{"session_id": id})
		}
		if !ok {
			fmt.Println("No active session.")
			return nil
		}
		fmt.Fprintln(os.Stdout, id)
		return nil
	},
}
