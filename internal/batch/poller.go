package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/scrivener-tools/scrivener/internal/logging"
	"github.com/scrivener-tools/scrivener/internal/remote"
)

// JobStatus is the per-job outcome of one poll pass, consumed by the
// presentation layer.
type JobStatus struct {
	BatchID     string
	PackagePath string
	Items       int
	Age         time.Duration
	State       remote.JobState

	// Stale flags a job older than the configured threshold. Informational
	// only; staleness never changes a job's state.
	Stale bool

	// Counts is the remote's per-item progress, when the API was reachable.
	Counts remote.RequestCounts

	// Applied is the number of results written to files (completed jobs).
	Applied int

	// Failures lists per-item failures from reconciliation, or carries the
	// job-level failure detail for failed jobs.
	Failures []ItemFailure

	// Quarantined is set when a permanent failure moved the job out of the
	// active set during this pass.
	Quarantined bool

	// Detail carries job-level context: the failure classification for
	// failed jobs, or the transport error for unreachable ones.
	Detail string
}

// Summary aggregates one poll pass over all active jobs.
type Summary struct {
	Jobs []JobStatus
}

// CountByState returns how many jobs finished the pass in the given state.
func (s *Summary) CountByState(state remote.JobState) int {
	n := 0
	for _, j := range s.Jobs {
		if j.State == state {
			n++
		}
	}
	return n
}

// Poller drives one reconciliation pass over every active job in the
// registry: pending and processing jobs are reported as-is, completed jobs
// are handed to the reconciler, and failed jobs to the failure classifier.
//
// A pass is safe to interrupt and to repeat: each job is handled
// all-or-nothing, and jobs the API could not be consulted about are left
// untouched for the next pass.
type Poller struct {
	registry   *Registry
	client     remote.Client
	reconciler *Reconciler
	staleAfter time.Duration
	workers    int
	logger     zerolog.Logger
}

// NewPoller creates a Poller. workers bounds how many jobs are inspected
// concurrently; each job is owned by exactly one goroutine within a pass.
// staleAfter of zero disables stale flagging.
func NewPoller(
	registry *Registry,
	client remote.Client,
	reconciler *Reconciler,
	staleAfter time.Duration,
	workers int,
	logger zerolog.Logger,
) *Poller {
	if workers < 1 {
		workers = 1
	}
	return &Poller{
		registry:   registry,
		client:     client,
		reconciler: reconciler,
		staleAfter: staleAfter,
		workers:    workers,
		logger:     logging.ComponentLogger(logger, "poller"),
	}
}

// Run executes one pass and returns its summary. Only a registry storage
// failure aborts the pass; per-job errors are contained in the job's status.
func (p *Poller) Run(ctx context.Context) (*Summary, error) {
	jobs, err := p.registry.ListActive()
	if err != nil {
		return nil, fmt.Errorf("listing active batches: %w", err)
	}

	summary := &Summary{Jobs: make([]JobStatus, 0, len(jobs))}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			status := p.pollJob(ctx, job)
			mu.Lock()
			summary.Jobs = append(summary.Jobs, status)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// ListActive order is unspecified; sort for stable presentation.
	sort.Slice(summary.Jobs, func(i, j int) bool {
		return summary.Jobs[i].Age > summary.Jobs[j].Age
	})
	return summary, nil
}

// pollJob handles one job end-to-end within a pass.
func (p *Poller) pollJob(ctx context.Context, job *Job) JobStatus {
	status := JobStatus{
		BatchID:     job.BatchID,
		PackagePath: job.PackagePath,
		Items:       len(job.Items),
		Age:         job.Age(),
		Stale:       p.staleAfter > 0 && job.Age() > p.staleAfter,
	}

	info, err := p.client.Status(ctx, job.BatchID)
	if err != nil {
		// Transport failure: unknown state, never treated as job failure.
		transient := &TransientRemoteError{BatchID: job.BatchID, Err: err}
		p.logger.Warn().Str("batch_id", job.BatchID).Err(err).Msg("batch status unavailable, will retry")
		status.State = remote.JobStateUnknown
		status.Detail = transient.Error()
		return status
	}

	status.State = info.State
	status.Counts = info.Counts

	switch info.State {
	case remote.JobStatePending, remote.JobStateProcessing:
		if status.Stale {
			p.logger.Warn().
				Str("batch_id", job.BatchID).
				Dur("age", status.Age).
				Msg("batch exceeds stale threshold, still waiting on remote")
		}

	case remote.JobStateCompleted:
		report, reconcileErr := p.reconciler.Reconcile(ctx, job)
		if reconcileErr != nil {
			p.logger.Warn().Str("batch_id", job.BatchID).Err(reconcileErr).Msg("reconciliation deferred")
			status.State = remote.JobStateUnknown
			status.Detail = reconcileErr.Error()
			return status
		}
		status.Applied = report.Applied
		status.Failures = report.Failures

	case remote.JobStateFailed:
		p.handleFailed(job, info, &status)

	case remote.JobStateUnknown:
		// Status never returns JobStateUnknown with a nil error.
	}
	return status
}

// handleFailed classifies a failed job and quarantines permanent failures.
func (p *Poller) handleFailed(job *Job, info remote.StatusInfo, status *JobStatus) {
	class := Classify(info.Err)

	detail := "job failed without detail"
	if info.Err != nil {
		jobErr := &PermanentJobError{BatchID: job.BatchID, Type: info.Err.Type, Message: info.Err.Message}
		detail = jobErr.Error()
		status.Failures = append(status.Failures, ItemFailure{
			FilePath: job.PackagePath,
			Reason:   fmt.Sprintf("%s: %s", info.Err.Type, info.Err.Message),
		})
	}
	status.Detail = fmt.Sprintf("%s (%s)", detail, class)

	if class != ClassPermanent {
		p.logger.Warn().
			Str("batch_id", job.BatchID).
			Str("detail", detail).
			Msg("batch failed transiently, leaving active for re-evaluation")
		return
	}

	if err := p.registry.Quarantine(job.BatchID); err != nil {
		p.logger.Error().Str("batch_id", job.BatchID).Err(err).Msg("quarantine failed")
		status.Detail = fmt.Sprintf("%s; quarantine failed: %v", status.Detail, err)
		return
	}
	status.Quarantined = true
	p.logger.Info().
		Str("batch_id", job.BatchID).
		Str("package", job.PackagePath).
		Msg("batch quarantined after permanent failure")
}
