package batch

import "fmt"

// CorruptRecordError reports a persisted job record that could not be parsed
// or carries an incompatible schema version. Listing skips such records with
// a warning; they are never fatal to enumeration.
type CorruptRecordError struct {
	Path string
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt batch record %s: %v", e.Path, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// TransientRemoteError reports a failure to reach the remote batch API. The
// affected job stays active and is retried on a later pass. This is never
// conflated with the API reporting that the job itself failed.
type TransientRemoteError struct {
	BatchID string
	Err     error
}

func (e *TransientRemoteError) Error() string {
	return fmt.Sprintf("remote batch API unreachable for %s: %v", e.BatchID, e.Err)
}

func (e *TransientRemoteError) Unwrap() error { return e.Err }

// PermanentJobError reports that the remote API marked a whole job failed for
// a reason attributable to the submission. The job is quarantined.
type PermanentJobError struct {
	BatchID string
	Type    string
	Message string
}

func (e *PermanentJobError) Error() string {
	return fmt.Sprintf("batch %s permanently failed (%s): %s", e.BatchID, e.Type, e.Message)
}

// ItemFailure records the terminal failure of a single item within an
// otherwise reconciled job. It is reporting data, not an error value; item
// failures never abort the rest of the job.
type ItemFailure struct {
	FilePath string `json:"file_path"`
	Reason   string `json:"reason"`
}
