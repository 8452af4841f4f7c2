package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scrivener-tools/scrivener/internal/batch"
	"github.com/scrivener-tools/scrivener/internal/config"
	"github.com/scrivener-tools/scrivener/internal/logging"
	"github.com/scrivener-tools/scrivener/internal/remote"
	"github.com/scrivener-tools/scrivener/internal/source"
	"github.com/scrivener-tools/scrivener/internal/writer"
)

// newBatchCmd groups the batch lifecycle subcommands.
func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage asynchronous documentation batches",
		Long: `Submit, poll, and inspect asynchronous documentation batches.

A batch survives process restarts: submit records it under the data
directory, and any later 'batch status' run picks it up from there.`,
	}

	cmd.AddCommand(newBatchSubmitCmd(), newBatchStatusCmd(), newBatchListCmd(), newBatchFailedCmd())
	return cmd
}

// lifecycle bundles the wired batch components for one invocation.
type lifecycle struct {
	cfg      *config.Config
	registry *batch.Registry
	client   remote.Client
	provider *source.DirProvider
	logger   zerolog.Logger
}

// newLifecycle builds the registry and source provider from config. The
// remote client is constructed lazily (see remoteClient) so purely local
// commands never need an API key. The context carries the invocation trace ID
// and logger.
func newLifecycle(ctx context.Context, cfg *config.Config) (context.Context, *lifecycle, error) {
	logger := newLogger(cfg)
	traceID := logging.GetOrGenerateTraceID(ctx)
	ctx = logging.ContextWithTraceID(ctx, traceID)
	ctx = logger.WithContext(ctx)

	registry, err := batch.NewRegistry(cfg.BatchDir(), logger)
	if err != nil {
		return ctx, nil, err
	}

	return ctx, &lifecycle{
		cfg:      cfg,
		registry: registry,
		provider: source.NewDirProvider(cfg.Source.Root, cfg.Source.Extensions),
		logger:   logger,
	}, nil
}

// remoteClient returns the batch API client, constructing it on first use.
// Only the commands that actually talk to the remote (submit, status) call
// this; list and failed stay usable with no API key configured.
func (l *lifecycle) remoteClient() (remote.Client, error) {
	if l.client != nil {
		return l.client, nil
	}
	client, err := remote.NewHTTPClient(
		l.cfg.Remote.BaseURL,
		l.cfg.Remote.APIKey,
		remote.WithRequestTimeout(l.cfg.Remote.RequestTimeout.Std()),
	)
	if err != nil {
		return nil, err
	}
	l.client = client
	return client, nil
}

// newPoller wires a poller (and its reconciler) over the lifecycle's
// registry, remote client, and documentation writer.
func (l *lifecycle) newPoller() (*batch.Poller, error) {
	client, err := l.remoteClient()
	if err != nil {
		return nil, err
	}
	docWriter := writer.NewFileWriter(l.provider.Root(), l.provider.Head)
	reconciler := batch.NewReconciler(client, l.registry, docWriter, l.logger)
	return batch.NewPoller(
		l.registry,
		client,
		reconciler,
		l.cfg.Batch.StaleAfter.Std(),
		l.cfg.Batch.PollWorkers,
		l.logger,
	), nil
}
