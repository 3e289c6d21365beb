package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/synthgen-io/synthgen/internal/config"
	"github.com/synthgen-io/synthgen/pkg/models"
)

// Sentinel errors for engine client failures.
var (
	// ErrEngineUnavailable means an initiating call exhausted its retries.
	// Callers must treat this as terminal for the attempt, not retry the job.
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineTimeout     = errors.New("engine request timeout")
	ErrTaskNotFound      = errors.New("engine task not found")
	ErrEngineError       = errors.New("engine returned an error")
)

// ModelConfig is forwarded verbatim to the engine's training endpoint.
type ModelConfig struct {
	ModelType string `json:"modelType,omitempty"`
	Epochs    int    `json:"epochs,omitempty"`
	BatchSize int    `json:"batchSize,omitempty"`
}

// TrainingResult is the engine's acknowledgement of a training initiation.
type TrainingResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
}

// GenerationResult is the engine's acknowledgement of a generation initiation.
type GenerationResult struct {
	TaskID        string `json:"taskId"`
	EstimatedTime int    `json:"estimatedTime"`
}

// TaskStatus is one snapshot of a remote task. Optional fields are only set
// by the engine when meaningful for the task type and state.
type TaskStatus struct {
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	CurrentRows *int64  `json:"currentRows,omitempty"`
	StorageLink *string `json:"storageLink,omitempty"`
	ModelPath   *string `json:"modelPath,omitempty"`
	FileSize    *int64  `json:"fileSize,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// Remote status values reported by the engine. Anything else is treated as
// still running.
const (
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Client is the interface for the external compute engine. The three
// initiating calls retry internally; the status fetches do not — transient
// poll failures are the poller's concern.
type Client interface {
	AnalyzeSchema(ctx context.Context, filePath string) (*models.SchemaAnalysis, error)
	TrainModel(ctx context.Context, jobID, filePath string, cfg ModelConfig) (*TrainingResult, error)
	GenerateData(ctx context.Context, jobID, modelID string, numberOfRows int, outputFormat string) (*GenerationResult, error)
	TrainingStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	GenerationStatus(ctx context.Context, taskID string) (*TaskStatus, error)
}

// HTTPClient implements Client against the engine's JSON/HTTP API.
type HTTPClient struct {
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// NewHTTPClient creates a new engine HTTP client.
func NewHTTPClient(cfg config.EngineConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) AnalyzeSchema(ctx context.Context, filePath string) (*models.SchemaAnalysis, error) {
	var out models.SchemaAnalysis
	err := c.withRetry(ctx, "analyze_schema", func() error {
		return c.postJSON(ctx, "/api/analyze_schema", map[string]any{
			"filePath": filePath,
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) TrainModel(ctx context.Context, jobID, filePath string, cfg ModelConfig) (*TrainingResult, error) {
	var out TrainingResult
	err := c.withRetry(ctx, "train_model", func() error {
		return c.postJSON(ctx, "/api/train_model", map[string]any{
			"jobId":       jobID,
			"filePath":    filePath,
			"modelConfig": cfg,
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GenerateData(ctx context.Context, jobID, modelID string, numberOfRows int, outputFormat string) (*GenerationResult, error) {
	var out GenerationResult
	err := c.withRetry(ctx, "generate_data", func() error {
		return c.postJSON(ctx, "/api/generate_data", map[string]any{
			"jobId":        jobID,
			"modelId":      modelID,
			"numberOfRows": numberOfRows,
			"outputFormat": outputFormat,
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TrainingStatus fetches one status snapshot for a training task. Not retried.
func (c *HTTPClient) TrainingStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	return c.getStatus(ctx, "/api/job_status/"+url.PathEscape(taskID))
}

// GenerationStatus fetches one status snapshot for a generation task. Not retried.
func (c *HTTPClient) GenerationStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	return c.getStatus(ctx, "/api/generation_status/"+url.PathEscape(taskID))
}

// withRetry runs an initiating call up to maxRetries times with a linearly
// increasing delay between attempts. Exhaustion wraps the last cause in
// ErrEngineUnavailable.
func (c *HTTPClient) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		slog.Warn("engine call failed",
			"op", op, "attempt", attempt, "max_attempts", c.maxRetries, "error", lastErr)

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrEngineUnavailable, ctx.Err())
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrEngineUnavailable, op, c.maxRetries, lastErr)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d: %s", ErrEngineError, resp.StatusCode, readErrorBody(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding engine response: %w", err)
	}
	return nil
}

func (c *HTTPClient) getStatus(ctx context.Context, path string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTaskNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrEngineError, resp.StatusCode, readErrorBody(resp.Body))
	}

	var st TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return &st, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}

// readErrorBody extracts a short error string from a non-2xx response body.
func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "no response body"
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(b, &detail) == nil && detail.Detail != "" {
		return detail.Detail
	}
	return string(b)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
