package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Run one indexing task and exit",
	Long: `Runs a single indexing task outside the worker schedule.

Commands:
  reindex-users        Build a new users index and make it current
  update-users         Apply user and invitation changes since the last run
  reindex-devices      Build a new devices index and make it current
  update-audit-cache   Fold new audit entries into the login statistics cache
  tidy-indexes         Delete index generations that are no longer current
  migrate              Apply the audit schema migrations (development only)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	for _, t := range taskCommands {
		rootCmd.AddCommand(newTaskCommand(t))
	}
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
