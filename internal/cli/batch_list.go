package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// newBatchListCmd creates the "batch list" subcommand.
func newBatchListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recorded batches without contacting the remote API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, lc, err := newLifecycle(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return executeBatchList(lc, cmd.OutOrStdout())
		},
	}
	return cmd
}

// executeBatchList renders the active registry contents. Purely local: no
// remote calls, no state changes.
func executeBatchList(lc *lifecycle, out io.Writer) error {
	jobs, err := lc.registry.ListActive()
	if err != nil {
		return err
	}
	renderJobTable(out, jobs, lc.cfg.Batch.StaleAfter.Std())
	return nil
}
