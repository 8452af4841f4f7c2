// Package cli wires the scrivener command tree. Each subcommand delegates to
// an execute* helper that takes explicit dependencies, keeping the cobra
// layer thin and testable.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scrivener-tools/scrivener/internal/config"
	"github.com/scrivener-tools/scrivener/internal/logging"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRootCmd creates the root cobra command for the scrivener CLI.
func NewRootCmd(ver string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrivener",
		Short: "Generate documentation comments with an LLM batch API",
		Long: `Scrivener submits per-file documentation requests as asynchronous batches,
persists them locally, and reconciles results back to the source files later.`,
		Version: ver,
		Example: rootCmdExample,
	}

	cmd.PersistentFlags().String("config", "", "path to config file (default ~/.scrivener/config.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "override the durable state directory")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	cmd.AddCommand(newBatchCmd())
	return cmd
}

const rootCmdExample = `  # Submit pending files in the current repository as one or more batches
  scrivener batch submit --package mypkg

  # Poll all in-flight batches, applying any finished results
  scrivener batch status

  # Show in-flight batches without contacting the remote API
  scrivener batch list`

// loadConfig builds the invocation's configuration value object from the
// config file and persistent flags. It is constructed once per command
// execution and passed by reference into the lifecycle components.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger constructs the invocation logger from config.
func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
}
