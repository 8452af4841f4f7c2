// Package remote implements the client for the asynchronous batch API that
// performs documentation generation.
//
// The wire format is a small REST surface: a batch is created with one POST,
// its state is polled with GETs, and once completed its per-item results are
// downloaded as JSON lines. The rest of the system only depends on the Client
// interface, so tests substitute an in-memory fake.
package remote

import "context"

// JobState is the remote job state as reported by the batch API.
type JobState string

// Remote job states. JobStateUnknown is a local-only value used when the API
// could not be reached; it is never conflated with JobStateFailed.
const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateUnknown    JobState = "unknown"
)

// Terminal reports whether the state is one the remote side will never leave.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Request is a single documentation generation request within a batch
// submission. CustomID is echoed back verbatim in the matching Result.
type Request struct {
	CustomID  string `json:"custom_id"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Prompt    string `json:"prompt"`
}

// RequestCounts summarizes per-item progress of a remote job.
type RequestCounts struct {
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Errored    int `json:"errored"`
}

// JobError is the API's description of why a whole job failed.
type JobError struct {
	// Type is the machine-readable failure class, e.g. "invalid_request_error".
	Type string `json:"type"`
	// Message is the human-readable detail.
	Message string `json:"message"`
}

// StatusInfo is the result of one status poll.
type StatusInfo struct {
	State  JobState
	Counts RequestCounts
	// Err is set only when State is JobStateFailed.
	Err *JobError
}

// Result is the per-item outcome of a completed job. Exactly one of Text or
// Err is meaningful.
type Result struct {
	// CustomID is the identifier echoed from the Request, when the API
	// preserved it. May be empty for older server versions.
	CustomID string
	// Index is the 0-based position of this result in the results stream.
	Index int
	// Text is the generated documentation comment on success.
	Text string
	// Err describes a per-item failure.
	Err *JobError
}

// Failed reports whether this item errored remotely.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Client is the remote batch API contract consumed by the batch lifecycle
// manager.
type Client interface {
	// Submit creates a batch job from the given requests and returns the
	// API-assigned batch ID. On error nothing was durably created locally.
	Submit(ctx context.Context, reqs []Request) (string, error)

	// Status reports the job's current state. A non-nil error means the API
	// could not be consulted (transport failure) and says nothing about the
	// job itself.
	Status(ctx context.Context, batchID string) (StatusInfo, error)

	// Results downloads per-item results. Only valid once Status has
	// reported JobStateCompleted. Order of the returned slice matches the
	// server's results stream.
	Results(ctx context.Context, batchID string) ([]Result, error)
}
