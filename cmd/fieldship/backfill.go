package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/fieldship/internal/backfill"
)

var (
	backfillBatchSize int
	backfillInline    bool
)

var backfillCmd = &cobra.Command{
	Use:     "backfill <entity>",
	Short:   "Re-export every current record of an entity",
	GroupID: "backfill",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity := args[0]
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.check(ctx); err != nil {
			return err
		}
		if err := a.wire(ctx, backfillInline); err != nil {
			return err
		}

		batchSize := backfillBatchSize
		if batchSize <= 0 {
			batchSize = cfg.BatchSize
		}
		o := backfill.NewOrchestrator(a.registry, a.store, a.batchQueue(), logger, backfill.WithRecorder(a.store))
		run, err := o.Run(ctx, entity, batchSize)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(os.Stdout, run)
			return nil
		}
		printRunSummary(os.Stdout, run, backfillInline)
		return nil
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 0, "records per page (default $FIELDSHIP_BATCH_SIZE)")
	backfillCmd.Flags().BoolVar(&backfillInline, "inline", false, "process pages in this process instead of enqueuing them")
}
