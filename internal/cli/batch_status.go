package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// newBatchStatusCmd creates the "batch status" subcommand.
func newBatchStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Poll in-flight batches and apply finished results",
		Long: `Run one reconciliation pass over every recorded batch: query the remote
API for each job's state, write finished results back into their source
files, and quarantine permanently failed jobs. Jobs still pending or
unreachable are left for the next run. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, lc, err := newLifecycle(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return executeBatchStatus(ctx, lc, cmd.OutOrStdout())
		},
	}
	return cmd
}

// executeBatchStatus runs one poll pass and renders its summary.
func executeBatchStatus(ctx context.Context, lc *lifecycle, out io.Writer) error {
	poller, err := lc.newPoller()
	if err != nil {
		return err
	}
	summary, err := poller.Run(ctx)
	if err != nil {
		return err
	}
	renderSummary(out, summary)
	return nil
}
