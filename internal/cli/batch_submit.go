package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scrivener-tools/scrivener/internal/batch"
	"github.com/scrivener-tools/scrivener/internal/source"
)

// maxPromptSourceBytes caps how much of a file is embedded in its prompt.
const maxPromptSourceBytes = 48 << 10

// newBatchSubmitCmd creates the "batch submit" subcommand.
func newBatchSubmitCmd() *cobra.Command {
	var packagePath string
	var limit int

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit pending files as one or more remote batches",
		Long: `Scan the source root for files to document and submit them to the remote
batch API. Each batch is recorded locally before the command reports
success, so a later 'batch status' run can pick it up even after a
restart. If submission fails nothing is recorded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, lc, err := newLifecycle(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return executeBatchSubmit(ctx, lc, packagePath, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&packagePath, "package", "", "logical package the batches belong to (defaults to source root)")
	cmd.Flags().IntVar(&limit, "limit", 0, "submit at most this many files (0 = all pending)")
	return cmd
}

// executeBatchSubmit scans for pending files, chunks them by the configured
// batch size, and submits each chunk as its own job.
func executeBatchSubmit(ctx context.Context, lc *lifecycle, packagePath string, limit int, out io.Writer) error {
	if packagePath == "" {
		packagePath = lc.cfg.Source.Root
	}

	client, err := lc.remoteClient()
	if err != nil {
		return err
	}

	files, err := lc.provider.Pending(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No pending files to document.")
		return nil
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	commitHash, err := lc.provider.Head(ctx)
	if err != nil {
		return err
	}

	pending := make([]batch.PendingFile, 0, len(files))
	for _, f := range files {
		content, readErr := lc.provider.Read(f.Path)
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", f.Path, readErr)
		}
		pending = append(pending, batch.PendingFile{
			Path:         f.Path,
			PathID:       f.PathID,
			IsEntryPoint: f.IsEntryPoint,
			Prompt:       buildPrompt(f, content),
		})
	}

	submitter := batch.NewSubmitter(
		client,
		lc.registry,
		lc.cfg.Remote.Model,
		lc.cfg.Remote.MaxTokens,
		lc.cfg.Batch.Size,
		lc.logger,
	)

	submitted := 0
	for _, chunk := range batch.Chunk(pending, lc.cfg.Batch.Size) {
		job, submitErr := submitter.Submit(ctx, packagePath, chunk, commitHash)
		if submitErr != nil {
			// Earlier chunks are already durably recorded; report what made
			// it before surfacing the failure.
			fmt.Fprintf(out, "Submitted %d batch(es) before failure.\n", submitted)
			return submitErr
		}
		submitted++
		fmt.Fprintf(out, "Submitted batch %s (%d files) for %s\n", job.BatchID, len(job.Items), job.PackagePath)
	}

	fmt.Fprintf(out, "%d batch(es) submitted, %d file(s) total. Run 'scrivener batch status' to poll.\n",
		submitted, len(pending))
	return nil
}

// buildPrompt renders the generation request for one file. Entry points are
// framed as the package's public surface; other files as internal modules.
func buildPrompt(f source.File, content []byte) string {
	if len(content) > maxPromptSourceBytes {
		content = content[:maxPromptSourceBytes]
	}

	role := "an internal module"
	if f.IsEntryPoint {
		role = "the package's public entry point"
	}

	return fmt.Sprintf(
		"Write a concise documentation comment for the following source file (%s). "+
			"Describe its purpose and public surface. Reply with the comment text only, no markup.\n\n"+
			"File: %s\n\n%s",
		role, f.Path, content)
}
