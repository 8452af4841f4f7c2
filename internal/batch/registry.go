package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
)

// Registry file layout constants.
const (
	recordExtension  = ".json"
	payloadExtension = ".payload.json"
	quarantineDir    = "failed"
	dirPerm          = 0750
	filePerm         = 0600
)

// ErrJobNotFound is returned when a batch ID has no record in the registry.
var ErrJobNotFound = errors.New("batch job record not found")

// Registry is the durable on-disk store of submitted batch jobs. Each job is
// one JSON record plus the raw submission payload; permanently failed jobs
// move into a quarantine subdirectory for post-mortem inspection.
//
// The registry tolerates concurrent reads alongside writes to other jobs'
// records. Concurrent writers to the same batch ID are not supported; the
// system assumes one process owns a given batch end-to-end.
type Registry struct {
	root   string
	logger zerolog.Logger

	// mu serializes directory-level mutations (persist, quarantine, remove).
	mu sync.RWMutex
}

// NewRegistry opens (creating if needed) a registry rooted at dir. An
// unwritable root is the one storage failure that is fatal to the whole
// lifecycle manager.
func NewRegistry(dir string, logger zerolog.Logger) (*Registry, error) {
	if dir == "" {
		return nil, errors.New("registry directory cannot be empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, quarantineDir), dirPerm); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	return &Registry{root: dir, logger: logger}, nil
}

// Root returns the registry's root directory.
func (r *Registry) Root() string { return r.root }

// Persist durably writes a new job record and its raw submission payload.
// Both files are written to temporary paths and atomically published with a
// rename, so a crash mid-write never leaves a partially visible record.
func (r *Registry) Persist(job *Job, payload []byte) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid job: %w", err)
	}

	job.Schema = SchemaVersion
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding job record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := atomicWrite(r.recordPath(job.BatchID), data); err != nil {
		return fmt.Errorf("persisting job record: %w", err)
	}
	if err := atomicWrite(r.payloadPath(job.BatchID), payload); err != nil {
		return fmt.Errorf("persisting job payload: %w", err)
	}
	return nil
}

// ListActive enumerates all jobs not yet quarantined or removed. Order is
// unspecified. A record that fails to parse is logged as a corrupt-record
// warning and skipped; it never aborts the listing.
func (r *Registry) ListActive() ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listDir(r.root)
}

// ListQuarantined enumerates permanently failed jobs held for diagnostics.
func (r *Registry) ListQuarantined() ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listDir(filepath.Join(r.root, quarantineDir))
}

// Payload returns the raw submission payload recorded for a batch, looking in
// the active namespace first and then quarantine.
func (r *Registry) Payload(batchID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.payloadPath(batchID))
	if os.IsNotExist(err) {
		data, err = os.ReadFile(r.quarantinePayloadPath(batchID))
	}
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading payload for %s: %w", batchID, err)
	}
	return data, nil
}

// Quarantine moves a job's record and payload into the failed namespace.
// Idempotent: quarantining an already-quarantined batch is a no-op.
func (r *Registry) Quarantine(batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recordSrc := r.recordPath(batchID)
	if _, err := os.Stat(recordSrc); os.IsNotExist(err) {
		if _, qerr := os.Stat(r.quarantineRecordPath(batchID)); qerr == nil {
			return nil // already quarantined
		}
		return fmt.Errorf("%w: %s", ErrJobNotFound, batchID)
	}

	if err := os.Rename(recordSrc, r.quarantineRecordPath(batchID)); err != nil {
		return fmt.Errorf("quarantining record for %s: %w", batchID, err)
	}

	// The payload moves with the record so post-mortems can see exactly what
	// was sent. A missing payload is tolerated for records predating it.
	payloadSrc := r.payloadPath(batchID)
	if _, err := os.Stat(payloadSrc); err == nil {
		if renameErr := os.Rename(payloadSrc, r.quarantinePayloadPath(batchID)); renameErr != nil {
			return fmt.Errorf("quarantining payload for %s: %w", batchID, renameErr)
		}
	}
	return nil
}

// Remove deletes a job's record and payload after full reconciliation.
// Idempotent: removing an absent record is a no-op.
func (r *Registry) Remove(batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.recordPath(batchID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing record for %s: %w", batchID, err)
	}
	if err := os.Remove(r.payloadPath(batchID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing payload for %s: %w", batchID, err)
	}
	return nil
}

// listDir loads every job record in dir, skipping payload files and anything
// that fails to parse.
func (r *Registry) listDir(dir string) ([]*Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading registry directory: %w", err)
	}

	var jobs []*Job
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExtension) ||
			strings.HasSuffix(name, payloadExtension) {
			continue
		}

		path := filepath.Join(dir, name)
		job, loadErr := loadRecord(path)
		if loadErr != nil {
			r.logger.Warn().
				Str("record", path).
				Err(loadErr).
				Msg("skipping corrupt batch record")
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// loadRecord parses a single job record, classifying parse and schema
// failures as CorruptRecordError.
func loadRecord(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CorruptRecordError{Path: path, Err: err}
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, &CorruptRecordError{Path: path, Err: err}
	}
	if job.BatchID == "" {
		return nil, &CorruptRecordError{Path: path, Err: errors.New("record has no batch id")}
	}

	version, err := semver.NewVersion(job.Schema)
	if err != nil {
		return nil, &CorruptRecordError{Path: path, Err: fmt.Errorf("invalid schema version %q: %w", job.Schema, err)}
	}
	current := semver.MustParse(SchemaVersion)
	if version.Major() != current.Major() {
		return nil, &CorruptRecordError{
			Path: path,
			Err:  fmt.Errorf("schema version %s incompatible with %s", job.Schema, SchemaVersion),
		}
	}
	return &job, nil
}

// atomicWrite writes data to a temporary file and renames it into place.
func atomicWrite(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

func (r *Registry) recordPath(batchID string) string {
	return filepath.Join(r.root, sanitizeID(batchID)+recordExtension)
}

func (r *Registry) payloadPath(batchID string) string {
	return filepath.Join(r.root, sanitizeID(batchID)+payloadExtension)
}

func (r *Registry) quarantineRecordPath(batchID string) string {
	return filepath.Join(r.root, quarantineDir, sanitizeID(batchID)+recordExtension)
}

func (r *Registry) quarantinePayloadPath(batchID string) string {
	return filepath.Join(r.root, quarantineDir, sanitizeID(batchID)+payloadExtension)
}

// sanitizeID makes a batch ID safe to use as a file name.
func sanitizeID(batchID string) string {
	safe := strings.ReplaceAll(batchID, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, ":", "_")
	return safe
}
