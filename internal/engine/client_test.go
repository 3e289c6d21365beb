package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthgen-io/synthgen/internal/config"
	"github.com/synthgen-io/synthgen/internal/engine"
)

func newClient(baseURL string) *engine.HTTPClient {
	return engine.NewHTTPClient(config.EngineConfig{
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	})
}

// --- AnalyzeSchema ---

func TestAnalyzeSchema_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analyze_schema", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"columnTypes": {"age": "integer", "name": "string"},
			"rowCount": 1500,
			"recommendations": ["drop nulls in age"]
		}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	analysis, err := c.AnalyzeSchema(context.Background(), "/tmp/data.csv")
	require.NoError(t, err)
	assert.Equal(t, "integer", analysis.ColumnTypes["age"])
	assert.Equal(t, 1500, analysis.RowCount)
	assert.Len(t, analysis.Recommendations, 1)
}

// --- retry behavior ---

func TestTrainModel_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"detail": "engine busy"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "accepted", "message": "training started", "taskId": "task-123"}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	res, err := c.TrainModel(context.Background(), "job-1", "/tmp/data.csv", engine.ModelConfig{
		ModelType: "sdv", Epochs: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "task-123", res.TaskID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTrainModel_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail": "engine down"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	_, err := c.TrainModel(context.Background(), "job-1", "/tmp/data.csv", engine.ModelConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrEngineUnavailable)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, err.Error(), "engine down")
}

func TestTrainModel_ConnectionRefusedExhaustsRetries(t *testing.T) {
	// Port from a closed listener: connections are refused immediately.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := newClient(addr)
	_, err := c.TrainModel(context.Background(), "job-1", "/tmp/data.csv", engine.ModelConfig{})
	assert.ErrorIs(t, err, engine.ErrEngineUnavailable)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := engine.NewHTTPClient(config.EngineConfig{
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Minute,
	})
	_, err := c.TrainModel(ctx, "job-1", "/tmp/data.csv", engine.ModelConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrEngineUnavailable)
	// No minute-long waits: the cancelled context aborts between attempts.
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

// --- GenerateData ---

func TestGenerateData_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate_data", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"taskId": "gen-task-9", "estimatedTime": 120}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	res, err := c.GenerateData(context.Background(), "gen-1", "model-7", 5000, "csv")
	require.NoError(t, err)
	assert.Equal(t, "gen-task-9", res.TaskID)
	assert.Equal(t, 120, res.EstimatedTime)
}

// --- status fetches ---

func TestTrainingStatus_NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail": "boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	_, err := c.TrainingStatus(context.Background(), "task-123")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrEngineError)
	assert.Equal(t, int32(1), calls.Load(), "status fetches must not retry")
}

func TestTrainingStatus_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/job_status/task-123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "running", "progress": 42, "modelPath": "/models/m1"}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	st, err := c.TrainingStatus(context.Background(), "task-123")
	require.NoError(t, err)
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, 42, st.Progress)
	require.NotNil(t, st.ModelPath)
	assert.Equal(t, "/models/m1", *st.ModelPath)
}

func TestGenerationStatus_TaskNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	_, err := c.GenerationStatus(context.Background(), "gone")
	assert.ErrorIs(t, err, engine.ErrTaskNotFound)
}

func TestGenerationStatus_Completed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generation_status/gen-task-9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "completed", "progress": 100,
			"currentRows": 5000, "storageLink": "ipfs://bafy123", "fileSize": 204800
		}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	st, err := c.GenerationStatus(context.Background(), "gen-task-9")
	require.NoError(t, err)
	assert.Equal(t, engine.TaskStatusCompleted, st.Status)
	require.NotNil(t, st.CurrentRows)
	assert.Equal(t, int64(5000), *st.CurrentRows)
	require.NotNil(t, st.StorageLink)
	assert.Equal(t, "ipfs://bafy123", *st.StorageLink)
}

// --- error body extraction ---

func TestErrorBody_FastAPIDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "model not found"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	_, err := c.TrainingStatus(context.Background(), "task-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}
