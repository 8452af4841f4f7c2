package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrivener-tools/scrivener/internal/remote"
)

func newTestPoller(t *testing.T, client *fakeClient, staleAfter time.Duration) (*Poller, *Registry, *fakeWriter) {
	t.Helper()
	reg := newTestRegistry(t)
	w := newFakeWriter()
	rec := NewReconciler(client, reg, w, zerolog.Nop())
	return NewPoller(reg, client, rec, staleAfter, 2, zerolog.Nop()), reg, w
}

func TestPoller_EmptyRegistry(t *testing.T) {
	poller, _, _ := newTestPoller(t, newFakeClient(), 0)

	summary, err := poller.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Jobs)
}

func TestPoller_PendingAndProcessingAreLeftAlone(t *testing.T) {
	client := newFakeClient()
	poller, reg, _ := newTestPoller(t, client, 0)

	require.NoError(t, reg.Persist(testJob("batch_p1", 2), []byte("{}")))
	require.NoError(t, reg.Persist(testJob("batch_p2", 3), []byte("{}")))
	client.statusByID["batch_p1"] = remote.StatusInfo{State: remote.JobStatePending}
	client.statusByID["batch_p2"] = remote.StatusInfo{
		State:  remote.JobStateProcessing,
		Counts: remote.RequestCounts{Processing: 2, Succeeded: 1},
	}

	summary, err := poller.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CountByState(remote.JobStatePending))
	assert.Equal(t, 1, summary.CountByState(remote.JobStateProcessing))

	// Polling in-flight jobs is side-effect-free on the registry.
	jobs, err := reg.ListActive()
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestPoller_CompletedJobIsReconciledAndRemoved(t *testing.T) {
	client := newFakeClient()
	poller, reg, w := newTestPoller(t, client, 0)

	job := testJob("batch_done", 2)
	require.NoError(t, reg.Persist(job, []byte("{}")))
	client.statusByID["batch_done"] = remote.StatusInfo{State: remote.JobStateCompleted}
	client.resultsByID["batch_done"] = []remote.Result{
		{CustomID: "1", Index: 0, Text: "alpha"},
		{CustomID: "2", Index: 1, Text: "beta"},
	}

	summary, err := poller.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Jobs, 1)
	assert.Equal(t, 2, summary.Jobs[0].Applied)
	assert.Len(t, w.applied, 2)

	jobs, err := reg.ListActive()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestPoller_PermanentFailureQuarantinesJobAndPayload(t *testing.T) {
	// The job transitions PENDING -> PROCESSING -> FAILED over three passes;
	// after the final pass the record and payload sit in quarantine and the
	// active list is empty.
	client := newFakeClient()
	poller, reg, _ := newTestPoller(t, client, 0)

	payload := []byte(`{"requests":["original submission"]}`)
	require.NoError(t, reg.Persist(testJob("batch_doomed", 2), payload))

	states := []remote.StatusInfo{
		{State: remote.JobStatePending},
		{State: remote.JobStateProcessing},
		{State: remote.JobStateFailed, Err: &remote.JobError{Type: "invalid_request_error", Message: "bad prompt"}},
	}

	for i, info := range states {
		client.mu.Lock()
		client.statusByID["batch_doomed"] = info
		client.mu.Unlock()

		summary, err := poller.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.Jobs, 1, "pass %d", i)

		if info.State != remote.JobStateFailed {
			active, listErr := reg.ListActive()
			require.NoError(t, listErr)
			assert.Len(t, active, 1, "job must stay active while in flight")
			continue
		}

		assert.True(t, summary.Jobs[0].Quarantined)
		assert.Contains(t, summary.Jobs[0].Detail, "invalid_request_error")
	}

	active, err := reg.ListActive()
	require.NoError(t, err)
	assert.Empty(t, active)

	quarantined, err := reg.ListQuarantined()
	require.NoError(t, err)
	require.Len(t, quarantined, 1)
	assert.Equal(t, "batch_doomed", quarantined[0].BatchID)

	got, err := reg.Payload("batch_doomed")
	require.NoError(t, err)
	assert.Equal(t, payload, got, "original payload must survive for post-mortem")
}

func TestPoller_TransientJobFailureStaysActive(t *testing.T) {
	client := newFakeClient()
	poller, reg, _ := newTestPoller(t, client, 0)

	require.NoError(t, reg.Persist(testJob("batch_hiccup", 1), []byte("{}")))
	client.statusByID["batch_hiccup"] = remote.StatusInfo{
		State: remote.JobStateFailed,
		Err:   &remote.JobError{Type: "overloaded_error", Message: "server busy"},
	}

	summary, err := poller.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Jobs, 1)
	assert.False(t, summary.Jobs[0].Quarantined)

	jobs, err := reg.ListActive()
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "transient failure is re-evaluated on a later pass")
}

func TestPoller_TransportErrorIsNotJobFailure(t *testing.T) {
	client := newFakeClient()
	client.statusErr = errors.New("dial tcp: connection refused")
	poller, reg, _ := newTestPoller(t, client, 0)

	require.NoError(t, reg.Persist(testJob("batch_offline", 1), []byte("{}")))

	summary, err := poller.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Jobs, 1)
	assert.Equal(t, remote.JobStateUnknown, summary.Jobs[0].State)
	assert.False(t, summary.Jobs[0].Quarantined)

	jobs, err := reg.ListActive()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	quarantined, err := reg.ListQuarantined()
	require.NoError(t, err)
	assert.Empty(t, quarantined)
}

func TestPoller_StaleJobsAreFlaggedNotExpired(t *testing.T) {
	client := newFakeClient()
	poller, reg, _ := newTestPoller(t, client, time.Hour)

	job := testJob("batch_old", 1)
	job.CreatedAt = time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, reg.Persist(job, []byte("{}")))
	client.statusByID["batch_old"] = remote.StatusInfo{State: remote.JobStatePending}

	summary, err := poller.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Jobs, 1)
	assert.True(t, summary.Jobs[0].Stale)
	assert.Equal(t, remote.JobStatePending, summary.Jobs[0].State)

	// Staleness is operator information only; the job remains active.
	jobs, err := reg.ListActive()
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestPoller_CorruptRecordDoesNotBlockOthers(t *testing.T) {
	client := newFakeClient()
	poller, reg, _ := newTestPoller(t, client, 0)

	require.NoError(t, reg.Persist(testJob("batch_valid", 1), []byte("{}")))
	require.NoError(t, writeCorruptRecord(reg))
	client.statusByID["batch_valid"] = remote.StatusInfo{State: remote.JobStatePending}

	summary, err := poller.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Jobs, 1)
	assert.Equal(t, "batch_valid", summary.Jobs[0].BatchID)
}
