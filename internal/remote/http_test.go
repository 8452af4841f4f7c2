package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(server.URL, "test-key")
	require.NoError(t, err)
	return client, server
}

func TestNewHTTPClient_RequiresAPIKey(t *testing.T) {
	_, err := NewHTTPClient("http://localhost", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestHTTPClient_Submit(t *testing.T) {
	var gotBody submitRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/batches", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"batch_abc","status":"pending"}`))
	}))

	batchID, err := client.Submit(context.Background(), []Request{
		{CustomID: "1", Model: "test-model", MaxTokens: 256, Prompt: "document a.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch_abc", batchID)
	require.Len(t, gotBody.Requests, 1)
	assert.Equal(t, "1", gotBody.Requests[0].CustomID)
}

func TestHTTPClient_SubmitMissingID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))

	_, err := client.Submit(context.Background(), []Request{{CustomID: "1"}})
	assert.Error(t, err)
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     JobState
		wantErr  bool
		wantFail *JobError
	}{
		{"Pending", `{"id":"b","status":"pending"}`, JobStatePending, false, nil},
		{"Validating", `{"id":"b","status":"validating"}`, JobStatePending, false, nil},
		{"Processing", `{"id":"b","status":"processing"}`, JobStateProcessing, false, nil},
		{"InProgress", `{"id":"b","status":"in_progress"}`, JobStateProcessing, false, nil},
		{"Completed", `{"id":"b","status":"completed"}`, JobStateCompleted, false, nil},
		{
			"FailedWithDetail",
			`{"id":"b","status":"failed","error":{"type":"invalid_request_error","message":"bad"}}`,
			JobStateFailed, false,
			&JobError{Type: "invalid_request_error", Message: "bad"},
		},
		{
			"ExpiredWithoutDetail",
			`{"id":"b","status":"expired"}`,
			JobStateFailed, false,
			&JobError{Type: "expired", Message: "job ended without detail"},
		},
		{"Unrecognized", `{"id":"b","status":"sideways"}`, JobStateUnknown, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/batches/b", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			}))

			info, err := client.Status(context.Background(), "b")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.State)
			assert.Equal(t, tt.wantFail, info.Err)
		})
	}
}

func TestHTTPClient_Results(t *testing.T) {
	body := `{"custom_id":"1","result":{"type":"succeeded","text":"doc one"}}
{"custom_id":"2","result":{"type":"errored","error":{"type":"overloaded_error","message":"busy"}}}

{"custom_id":"3","result":{"type":"succeeded","text":"doc three"}}
`
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batches/b/results", r.URL.Path)
		_, _ = w.Write([]byte(body))
	}))

	results, err := client.Results(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "1", results[0].CustomID)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, "doc one", results[0].Text)
	assert.False(t, results[0].Failed())

	assert.True(t, results[1].Failed())
	assert.Equal(t, "overloaded_error", results[1].Err.Type)

	// Blank lines do not advance the result index.
	assert.Equal(t, 2, results[2].Index)
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"b","status":"pending"}`))
	}))

	info, err := client.Status(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, JobStatePending, info.State)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"type":"permission_error"}}`))
	}))

	_, err := client.Submit(context.Background(), []Request{{CustomID: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestJobState_Terminal(t *testing.T) {
	assert.True(t, JobStateCompleted.Terminal())
	assert.True(t, JobStateFailed.Terminal())
	assert.False(t, JobStatePending.Terminal())
	assert.False(t, JobStateProcessing.Terminal())
	assert.False(t, JobStateUnknown.Terminal())
}
