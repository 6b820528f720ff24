package main

import (
	"errors"
	"fmt"

	"github.com/amonks/tasksync/engine"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send queued writes and refresh cached views",
	Long: `Send queued writes and refresh cached views.

Writes made while the server was unreachable are sent in the order they were
made. Writes the server rejects are rolled back locally.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	before := len(s.engine.Pending())
	syncErr := s.engine.Sync(cmd.Context())
	remaining := len(s.engine.Pending())

	out := cmd.OutOrStdout()
	if syncErr != nil {
		if errors.Is(syncErr, engine.ErrOffline) && remaining > 0 {
			printNotice(cmd.ErrOrStderr(), "%d %s still queued", remaining, pluralize(remaining, "write", "writes"))
		}
		return syncErr
	}

	sent := before - remaining
	switch {
	case before == 0:
		fmt.Fprintln(out, "Up to date.")
	case remaining == 0:
		fmt.Fprintf(out, "Synced %d %s.\n", sent, pluralize(sent, "write", "writes"))
	default:
		fmt.Fprintf(out, "Synced %d %s; %d still pending.\n", sent, pluralize(sent, "write", "writes"), remaining)
	}
	return nil
}
