package main

import (
	"os"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:     "runs [entity]",
	Short:   "List scheduled backfill runs, newest first",
	GroupID: "backfill",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var entity string
		if len(args) == 1 {
			entity = args[0]
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		runs, err := a.store.ListRuns(cmd.Context(), entity, runsLimit)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(os.Stdout, runs)
			return nil
		}
		printRunsTable(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "maximum number of runs to show")
}
