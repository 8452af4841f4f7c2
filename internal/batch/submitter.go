package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrivener-tools/scrivener/internal/logging"
	"github.com/scrivener-tools/scrivener/internal/remote"
)

// Submitter groups pending documentation requests into a single remote batch
// job and records it in the registry.
//
// The ordering invariant is submit-then-persist, or neither: a registry
// record only ever exists for a batch the remote API has acknowledged, and a
// failed submission leaves no local trace.
type Submitter struct {
	client    remote.Client
	registry  *Registry
	model     string
	maxTokens int
	batchSize int
	logger    zerolog.Logger
}

// NewSubmitter creates a Submitter. batchSize caps the number of items sent
// in one job; callers with more pending files than batchSize submit multiple
// jobs (see Chunk).
func NewSubmitter(
	client remote.Client,
	registry *Registry,
	model string,
	maxTokens, batchSize int,
	logger zerolog.Logger,
) *Submitter {
	return &Submitter{
		client:    client,
		registry:  registry,
		model:     model,
		maxTokens: maxTokens,
		batchSize: batchSize,
		logger:    logging.ComponentLogger(logger, "submitter"),
	}
}

// Chunk splits files into batchSize-d groups preserving order. The final
// chunk may be short.
func Chunk(files []PendingFile, batchSize int) [][]PendingFile {
	if batchSize < 1 || len(files) == 0 {
		return nil
	}

	total := (len(files) + batchSize - 1) / batchSize
	chunks := make([][]PendingFile, 0, total)
	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		chunks = append(chunks, files[start:end])
	}
	return chunks
}

// Submit sends one batch of files to the remote API and persists the returned
// job. files is truncated to the configured batch size; commitHash records
// the source commit identity at submission time (may be empty outside a git
// repository).
//
// On remote failure nothing is persisted and the error is returned. On
// persistence failure after a successful submission, the error names the
// orphaned remote batch so an operator can recover it.
func (s *Submitter) Submit(
	ctx context.Context,
	packagePath string,
	files []PendingFile,
	commitHash string,
) (*Job, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no pending files to submit for %s", packagePath)
	}
	if len(files) > s.batchSize {
		files = files[:s.batchSize]
	}

	items := make([]Item, len(files))
	requests := make([]remote.Request, len(files))
	for i, f := range files {
		requestID := i + 1
		items[i] = Item{
			RequestID:     requestID,
			FilePath:      f.Path,
			FilePathID:    f.PathID,
			FilePathIndex: i,
			IsEntryPoint:  f.IsEntryPoint,
			CommitHash:    commitHash,
		}
		requests[i] = remote.Request{
			CustomID:  strconv.Itoa(requestID),
			Model:     s.model,
			MaxTokens: s.maxTokens,
			Prompt:    f.Prompt,
		}
	}

	// The payload is kept verbatim for quarantine post-mortems.
	payload, err := json.MarshalIndent(requests, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding submission payload: %w", err)
	}

	batchID, err := s.client.Submit(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("submitting batch for %s: %w", packagePath, err)
	}

	job := &Job{
		BatchID:     batchID,
		PackagePath: packagePath,
		CreatedAt:   time.Now().UTC(),
		Items:       items,
	}

	if err := s.registry.Persist(job, payload); err != nil {
		// The remote job exists but has no local record. Surface the batch id
		// so the operator can track it down; nothing partial was written.
		return nil, fmt.Errorf("batch %s submitted but not recorded locally: %w", batchID, err)
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Str("package", packagePath).
		Int("items", len(items)).
		Msg("batch submitted")
	return job, nil
}
