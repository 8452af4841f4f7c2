package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/scrivener-tools/scrivener/internal/remote"
)

// writeCorruptRecord drops an unparseable record file into the registry root.
func writeCorruptRecord(reg *Registry) error {
	return os.WriteFile(filepath.Join(reg.Root(), "batch_corrupt.json"), []byte("{not json"), 0600)
}

// fakeClient is an in-memory remote.Client with scriptable behavior.
type fakeClient struct {
	mu sync.Mutex

	submitID  string
	submitErr error
	submitted [][]remote.Request

	statusByID map[string]remote.StatusInfo
	statusErr  error

	resultsByID map[string][]remote.Result
	resultsErr  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		submitID:    "batch_fake_1",
		statusByID:  make(map[string]remote.StatusInfo),
		resultsByID: make(map[string][]remote.Result),
	}
}

func (f *fakeClient) Submit(_ context.Context, reqs []remote.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, reqs)
	return f.submitID, nil
}

func (f *fakeClient) Status(_ context.Context, batchID string) (remote.StatusInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return remote.StatusInfo{State: remote.JobStateUnknown}, f.statusErr
	}
	info, ok := f.statusByID[batchID]
	if !ok {
		return remote.StatusInfo{State: remote.JobStateUnknown}, errors.New("unknown batch")
	}
	return info, nil
}

func (f *fakeClient) Results(_ context.Context, batchID string) ([]remote.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	return f.resultsByID[batchID], nil
}

// fakeWriter records applied comments and can fail selected paths.
type fakeWriter struct {
	mu      sync.Mutex
	applied map[string]string // path -> text
	failOn  map[string]error  // path -> error to return
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		applied: make(map[string]string),
		failOn:  make(map[string]error),
	}
}

func (w *fakeWriter) Apply(_ context.Context, path, text, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.failOn[path]; ok {
		return err
	}
	w.applied[path] = text
	return nil
}
