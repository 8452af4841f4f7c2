package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// newBatchFailedCmd creates the "batch failed" subcommand.
func newBatchFailedCmd() *cobra.Command {
	var payloadID string

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "Inspect quarantined batches",
		Long: `List permanently failed batches held in quarantine. Pass --payload with a
batch ID to dump the exact submission that was sent to the remote API,
for post-mortem inspection.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, lc, err := newLifecycle(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return executeBatchFailed(lc, payloadID, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&payloadID, "payload", "", "print the raw submission payload for the given batch ID")
	return cmd
}

// executeBatchFailed lists quarantined jobs, or dumps one job's payload.
func executeBatchFailed(lc *lifecycle, payloadID string, out io.Writer) error {
	if payloadID != "" {
		payload, err := lc.registry.Payload(payloadID)
		if err != nil {
			return err
		}
		_, err = out.Write(payload)
		if err == nil {
			fmt.Fprintln(out)
		}
		return err
	}

	jobs, err := lc.registry.ListQuarantined()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "Quarantine is empty.")
		return nil
	}
	renderJobTable(out, jobs, 0)
	return nil
}
