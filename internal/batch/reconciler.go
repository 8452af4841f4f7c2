package batch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/scrivener-tools/scrivener/internal/logging"
	"github.com/scrivener-tools/scrivener/internal/remote"
)

// DocWriter applies a generated documentation comment to a source file.
// expectedCommit is the commit identity recorded at submission time; an
// implementation detecting that the file has since changed returns an error,
// which the reconciler records as a per-item failure.
type DocWriter interface {
	Apply(ctx context.Context, path, text, expectedCommit string) error
}

// Report summarizes the reconciliation of one completed job. Every submitted
// item lands in exactly one terminal disposition: counted in Applied, or
// listed in Failures.
type Report struct {
	BatchID     string
	PackagePath string
	Applied     int
	Failures    []ItemFailure
}

// Reconciler maps a completed job's remote results back to the originating
// files and applies successful generations via the documentation writer.
type Reconciler struct {
	client   remote.Client
	registry *Registry
	writer   DocWriter
	logger   zerolog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(client remote.Client, registry *Registry, writer DocWriter, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		client:   client,
		registry: registry,
		writer:   writer,
		logger:   logging.ComponentLogger(logger, "reconciler"),
	}
}

// Reconcile fetches results for a completed job, dispositions every item, and
// removes the job record. The record is only removed once all items are
// dispositioned, so an interrupted pass leaves the job intact for a retry.
//
// A failure to fetch results is returned as a TransientRemoteError and the
// job is left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, job *Job) (*Report, error) {
	report := &Report{BatchID: job.BatchID, PackagePath: job.PackagePath}

	// A completed job with zero items has nothing to apply.
	if len(job.Items) == 0 {
		if err := r.registry.Remove(job.BatchID); err != nil {
			return nil, err
		}
		return report, nil
	}

	results, err := r.client.Results(ctx, job.BatchID)
	if err != nil {
		return nil, &TransientRemoteError{BatchID: job.BatchID, Err: err}
	}

	dispositioned := make(map[int]bool, len(job.Items)) // keyed by RequestID

	for _, result := range results {
		item := r.match(job, result)
		if item == nil {
			r.logger.Warn().
				Str("batch_id", job.BatchID).
				Str("custom_id", result.CustomID).
				Int("index", result.Index).
				Msg("result matches no submitted item")
			continue
		}
		if dispositioned[item.RequestID] {
			r.logger.Warn().
				Str("batch_id", job.BatchID).
				Str("file", item.FilePath).
				Msg("duplicate result for item, keeping first disposition")
			continue
		}
		dispositioned[item.RequestID] = true

		if result.Failed() {
			report.Failures = append(report.Failures, ItemFailure{
				FilePath: item.FilePath,
				Reason:   fmt.Sprintf("%s: %s", result.Err.Type, result.Err.Message),
			})
			continue
		}

		if err := r.writer.Apply(ctx, item.FilePath, result.Text, item.CommitHash); err != nil {
			report.Failures = append(report.Failures, ItemFailure{
				FilePath: item.FilePath,
				Reason:   err.Error(),
			})
			continue
		}
		report.Applied++
	}

	// Items the remote never answered for still need a terminal disposition.
	for _, item := range job.Items {
		if !dispositioned[item.RequestID] {
			report.Failures = append(report.Failures, ItemFailure{
				FilePath: item.FilePath,
				Reason:   "no result returned by batch API",
			})
		}
	}

	if err := r.registry.Remove(job.BatchID); err != nil {
		return nil, fmt.Errorf("removing reconciled job %s: %w", job.BatchID, err)
	}

	r.logger.Info().
		Str("batch_id", job.BatchID).
		Str("package", job.PackagePath).
		Int("applied", report.Applied).
		Int("failed", len(report.Failures)).
		Msg("batch reconciled")
	return report, nil
}

// match restores the submitted item a result belongs to, trying join keys in
// priority order:
//
//  1. the result's identifier parsed as a request ID,
//  2. the identifier as a file-path ID (for servers that replace custom IDs
//     with payload line identifiers),
//  3. the result's stream position against the recorded file-path index,
//     assuming the remote preserved submission order.
//
// Returns nil when no key resolves to a submitted item.
func (r *Reconciler) match(job *Job, result remote.Result) *Item {
	if result.CustomID != "" {
		if requestID, err := strconv.Atoi(result.CustomID); err == nil {
			for i := range job.Items {
				if job.Items[i].RequestID == requestID {
					return &job.Items[i]
				}
			}
			// A numeric identifier matching no request ID may still be a
			// file-path ID that happens to be all digits.
		}

		for i := range job.Items {
			if job.Items[i].FilePathID != "" && job.Items[i].FilePathID == result.CustomID {
				return &job.Items[i]
			}
		}
		return nil
	}

	for i := range job.Items {
		if job.Items[i].FilePathIndex != NoIndex && job.Items[i].FilePathIndex == result.Index {
			return &job.Items[i]
		}
	}

	// Oldest records carry no index at all; fall back to submission order.
	if result.Index >= 0 && result.Index < len(job.Items) && job.Items[result.Index].FilePathIndex == NoIndex {
		return &job.Items[result.Index]
	}
	return nil
}
