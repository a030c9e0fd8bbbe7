package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/product-extractor/internal/app"
)

func newRunQueueCmd() *cobra.Command {
	var opts app.RunOptions
	cmd := &cobra.Command{
		Use:   "run-queue",
		Short: "Processes pending URLs from the task table",
		Long: `Claims batches of pending URLs from the task table, runs each through the
extraction pipeline and writes the outcome back. Stops when no pending work
remains, when --max-batches is reached or on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := appInstance.RunQueue(cmd.Context(), opts)
			logSummary(sum)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "items claimed per batch (default queue.batch_size)")
	cmd.Flags().IntVar(&opts.MaxBatches, "max-batches", 0, "stop after this many batches (default queue.max_batches, 0 = until empty)")
	return cmd
}
