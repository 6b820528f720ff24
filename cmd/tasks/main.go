// Package main implements the tasks CLI, an offline-capable client for a
// todo server.
package main

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "tasks",
	Short:        "Tasks - todo lists that keep working offline",
	SilenceUsage: true,
}

var (
	rootOffline bool
	rootWait    time.Duration
	rootVerbose bool
)

const defaultWriteWait = 10 * time.Second

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootOffline, "offline", false, "Do not contact the server; queue writes locally")
	rootCmd.PersistentFlags().DurationVar(&rootWait, "wait", defaultWriteWait, "How long writes wait for the server before being queued")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Log sync activity to stderr")
}
