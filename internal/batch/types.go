// Package batch implements the batch job lifecycle manager: submitting groups
// of documentation requests to the remote batch API, persisting them so the
// process can restart while a job is in flight, polling for completion,
// reconciling results back to the originating files, and quarantining
// permanently failed jobs.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is written into every persisted job record. Records whose
// major version differs are treated as corrupt rather than misread.
const SchemaVersion = "1.0.0"

// NoIndex marks an Item without a recorded file-path index.
const NoIndex = -1

// ErrDuplicateRequestID is returned when a job's items do not have unique
// request IDs.
var ErrDuplicateRequestID = errors.New("duplicate request id within batch")

// Item is a single documentation request within a job. RequestID is the
// primary join key against the remote result; FilePathID and FilePathIndex
// are fallbacks used when the remote side does not echo request IDs back.
type Item struct {
	// RequestID is unique within the job and stable for its lifetime.
	RequestID int `json:"request_id"`

	// FilePath is the path relative to the repository root at submission time.
	FilePath string `json:"file_path"`

	// FilePathID is a content-independent stable identifier for the file
	// (hash of the repo-relative path). Empty when unavailable.
	FilePathID string `json:"file_path_id,omitempty"`

	// FilePathIndex is the position in the deterministic file ordering at
	// submission time, or NoIndex when not recorded.
	FilePathIndex int `json:"file_path_index"`

	// IsEntryPoint marks a package's public entry point. It affects prompt
	// construction only, never reconciliation.
	IsEntryPoint bool `json:"is_entry_point"`

	// CommitHash is the source commit identity at submission time. Used to
	// detect that a file changed before a result could be applied.
	CommitHash string `json:"commit_hash,omitempty"`
}

// UnmarshalJSON decodes an item, mapping an absent file_path_index to NoIndex
// so records written before positional indices existed stay distinguishable
// from items recorded at position zero.
func (it *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	aux := struct {
		FilePathIndex *int `json:"file_path_index"`
		*plain
	}{plain: (*plain)(it)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.FilePathIndex == nil {
		it.FilePathIndex = NoIndex
	} else {
		it.FilePathIndex = *aux.FilePathIndex
	}
	return nil
}

// Job is the persisted unit of work: one remote batch and the items it
// covers. Records are read-only after Persist except for the terminal move
// into quarantine or deletion after full reconciliation.
type Job struct {
	// Schema is the record schema version, SchemaVersion at write time.
	Schema string `json:"schema_version"`

	// BatchID is the identifier assigned by the remote batch API.
	BatchID string `json:"batch_id"`

	// PackagePath is the logical unit this batch documents.
	PackagePath string `json:"package_path"`

	// CreatedAt is the submission time.
	CreatedAt time.Time `json:"created_at"`

	// Items are ordered as submitted.
	Items []Item `json:"items"`
}

// Age returns the time elapsed since the job was submitted.
func (j *Job) Age() time.Duration {
	return time.Since(j.CreatedAt)
}

// Validate checks the invariants a record must satisfy before it is
// persisted: a batch ID, and request IDs unique within the job.
func (j *Job) Validate() error {
	if j.BatchID == "" {
		return errors.New("job has no batch id")
	}

	seen := make(map[int]struct{}, len(j.Items))
	for _, item := range j.Items {
		if _, dup := seen[item.RequestID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateRequestID, item.RequestID)
		}
		seen[item.RequestID] = struct{}{}
	}
	return nil
}

// PendingFile is a file awaiting documentation, as produced by the source
// provider. Prompt is the fully rendered request text; the lifecycle manager
// never constructs prompts itself.
type PendingFile struct {
	// Path is the repo-relative file path.
	Path string

	// PathID is the stable content-independent identifier for Path.
	PathID string

	// IsEntryPoint marks the package's primary public surface.
	IsEntryPoint bool

	// Prompt is the request text sent to the model for this file.
	Prompt string
}
