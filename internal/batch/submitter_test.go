package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrivener-tools/scrivener/internal/remote"
)

func pendingFiles(n int) []PendingFile {
	files := make([]PendingFile, n)
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("pkg/file%03d.go", i)
		files[i] = PendingFile{
			Path:   path,
			PathID: "pid-" + strconv.Itoa(i),
			Prompt: "document " + path,
		}
	}
	return files
}

func TestSubmitter_SubmitPersistsAfterRemoteAck(t *testing.T) {
	reg := newTestRegistry(t)
	client := newFakeClient()
	client.submitID = "batch_ok_7"
	sub := NewSubmitter(client, reg, "test-model", 512, 100, zerolog.Nop())

	job, err := sub.Submit(context.Background(), "pkg", pendingFiles(3), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "batch_ok_7", job.BatchID)
	require.Len(t, job.Items, 3)

	// Request IDs are 1-based and indexes follow submission order.
	for i, item := range job.Items {
		assert.Equal(t, i+1, item.RequestID)
		assert.Equal(t, i, item.FilePathIndex)
		assert.Equal(t, "deadbeef", item.CommitHash)
	}

	jobs, err := reg.ListActive()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.Items, jobs[0].Items)

	// The persisted payload is the exact submission.
	payload, err := reg.Payload("batch_ok_7")
	require.NoError(t, err)
	var reqs []remote.Request
	require.NoError(t, json.Unmarshal(payload, &reqs))
	require.Len(t, reqs, 3)
	assert.Equal(t, "1", reqs[0].CustomID)
	assert.Equal(t, "test-model", reqs[0].Model)
}

func TestSubmitter_RemoteFailureLeavesNothingPersisted(t *testing.T) {
	reg := newTestRegistry(t)
	client := newFakeClient()
	client.submitErr = errors.New("boom")
	sub := NewSubmitter(client, reg, "test-model", 512, 100, zerolog.Nop())

	_, err := sub.Submit(context.Background(), "pkg", pendingFiles(2), "")
	require.Error(t, err)

	jobs, listErr := reg.ListActive()
	require.NoError(t, listErr)
	assert.Empty(t, jobs, "failed submission must not leave a record")
}

func TestSubmitter_CapsAtBatchSize(t *testing.T) {
	reg := newTestRegistry(t)
	client := newFakeClient()
	sub := NewSubmitter(client, reg, "test-model", 512, 5, zerolog.Nop())

	job, err := sub.Submit(context.Background(), "pkg", pendingFiles(12), "")
	require.NoError(t, err)
	assert.Len(t, job.Items, 5)
	require.Len(t, client.submitted, 1)
	assert.Len(t, client.submitted[0], 5)
}

func TestSubmitter_EmptyInput(t *testing.T) {
	reg := newTestRegistry(t)
	sub := NewSubmitter(newFakeClient(), reg, "test-model", 512, 5, zerolog.Nop())

	_, err := sub.Submit(context.Background(), "pkg", nil, "")
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name      string
		files     int
		batchSize int
		want      []int // chunk lengths
	}{
		{"Empty", 0, 10, nil},
		{"SingleShort", 3, 10, []int{3}},
		{"Exact", 10, 5, []int{5, 5}},
		{"Remainder", 12, 5, []int{5, 5, 2}},
		{"SizeOne", 3, 1, []int{1, 1, 1}},
		{"InvalidSize", 3, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(pendingFiles(tt.files), tt.batchSize)
			var got []int
			for _, c := range chunks {
				got = append(got, len(c))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
