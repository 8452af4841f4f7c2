package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTP client tuning.
const (
	defaultRequestTimeout = 2 * time.Minute
	maxRetries            = 4
	initialRetryInterval  = 500 * time.Millisecond

	// maxResultLineBytes bounds a single JSONL result line. Generated
	// comments are small; anything beyond this indicates a broken stream.
	maxResultLineBytes = 4 << 20
)

// apiVersion is sent with every request so server-side behavior stays pinned.
const apiVersion = "2024-10-01"

// ErrMissingAPIKey is returned when the client is constructed without a key.
var ErrMissingAPIKey = errors.New("remote API key is not configured")

// HTTPClient talks to the batch API over REST. It retries transient failures
// (network errors, 429, 5xx) with exponential backoff; client-side errors
// (other 4xx) fail immediately.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpc = c }
}

// WithRequestTimeout sets the per-round-trip timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *HTTPClient) { h.httpc.Timeout = d }
}

// NewHTTPClient creates a batch API client for the given endpoint root.
func NewHTTPClient(baseURL, apiKey string, opts ...Option) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// submitRequest is the POST /v1/batches body.
type submitRequest struct {
	Requests []Request `json:"requests"`
}

// batchEnvelope is the server's representation of a job, returned from both
// creation and status endpoints.
type batchEnvelope struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Counts RequestCounts `json:"request_counts"`
	Error  *JobError     `json:"error,omitempty"`
}

// resultLine is one JSONL line of the results stream.
type resultLine struct {
	CustomID string `json:"custom_id"`
	Result   struct {
		Type  string    `json:"type"` // "succeeded" or "errored"
		Text  string    `json:"text,omitempty"`
		Error *JobError `json:"error,omitempty"`
	} `json:"result"`
}

// Submit implements Client.
func (c *HTTPClient) Submit(ctx context.Context, reqs []Request) (string, error) {
	body, err := json.Marshal(submitRequest{Requests: reqs})
	if err != nil {
		return "", fmt.Errorf("encoding batch submission: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/v1/batches", body)
	if err != nil {
		return "", err
	}

	var env batchEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decoding batch creation response: %w", err)
	}
	if env.ID == "" {
		return "", errors.New("batch API returned no batch id")
	}
	return env.ID, nil
}

// Status implements Client.
func (c *HTTPClient) Status(ctx context.Context, batchID string) (StatusInfo, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/batches/"+batchID, nil)
	if err != nil {
		return StatusInfo{State: JobStateUnknown}, err
	}

	var env batchEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return StatusInfo{State: JobStateUnknown}, fmt.Errorf("decoding batch status: %w", err)
	}

	info := StatusInfo{Counts: env.Counts, Err: env.Error}
	switch env.Status {
	case "pending", "validating":
		info.State = JobStatePending
	case "processing", "in_progress", "finalizing":
		info.State = JobStateProcessing
	case "completed", "ended":
		info.State = JobStateCompleted
	case "failed", "expired", "cancelled":
		info.State = JobStateFailed
		if info.Err == nil {
			info.Err = &JobError{Type: env.Status, Message: "job ended without detail"}
		}
	default:
		return StatusInfo{State: JobStateUnknown},
			fmt.Errorf("batch API reported unrecognized status %q", env.Status)
	}
	return info, nil
}

// Results implements Client.
func (c *HTTPClient) Results(ctx context.Context, batchID string) ([]Result, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/batches/"+batchID+"/results", nil)
	if err != nil {
		return nil, err
	}

	var results []Result
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResultLineBytes)
	index := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rl resultLine
		if err := json.Unmarshal(line, &rl); err != nil {
			return nil, fmt.Errorf("decoding result line %d: %w", index, err)
		}

		res := Result{CustomID: rl.CustomID, Index: index}
		if rl.Result.Type == "errored" {
			res.Err = rl.Result.Error
			if res.Err == nil {
				res.Err = &JobError{Type: "errored", Message: "item errored without detail"}
			}
		} else {
			res.Text = rl.Result.Text
		}
		results = append(results, res)
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading results stream: %w", err)
	}
	return results, nil
}

// do performs one HTTP call with retry on transient failures and returns the
// response body.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var out []byte

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Batch-Api-Version", apiVersion)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("contacting batch API: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading batch API response: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			out = data
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("batch API returned %d: %s", resp.StatusCode, truncate(data))
		default:
			return backoff.Permanent(
				fmt.Errorf("batch API rejected request with %d: %s", resp.StatusCode, truncate(data)))
		}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initialRetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return out, nil
}

// truncate keeps error bodies readable in logs.
func truncate(data []byte) string {
	const limit = 256
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
