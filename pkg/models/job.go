package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusAnalyzing = "analyzing"
	JobStatusTraining  = "training"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// SchemaAnalysis is the engine's structural description of an uploaded dataset.
// Stored as JSONB on the job once analysis succeeds; immutable afterward.
type SchemaAnalysis struct {
	ColumnTypes      map[string]string `json:"columnTypes"`
	DataDistribution map[string]any    `json:"dataDistribution"`
	RowCount         int               `json:"rowCount"`
	Recommendations  []string          `json:"recommendations"`
}

// Job tracks one dataset's path from upload to trained model. The API returns
// job_id on upload; the client polls GET /api/v1/jobs/{job_id} until status is
// completed or failed. TaskID is the engine's handle for an in-flight training
// task; PollerToken is the lease held by the single active status poller.
type Job struct {
	ID             uuid.UUID       `db:"id"              json:"-"`
	JobID          string          `db:"job_id"          json:"job_id"`
	UserID         uuid.UUID       `db:"user_id"         json:"user_id"`
	Status         string          `db:"status"          json:"status"`
	Progress       int             `db:"progress"        json:"progress"`
	FileName       string          `db:"file_name"       json:"file_name"`
	FilePath       string          `db:"file_path"       json:"-"`
	SchemaAnalysis *SchemaAnalysis `db:"schema_analysis" json:"schema_analysis,omitempty"`
	ModelPath      *string         `db:"model_path"      json:"model_path,omitempty"`
	TaskID         *string         `db:"task_id"         json:"-"`
	ErrorMessage   *string         `db:"error_message"   json:"error_message,omitempty"`
	PollerToken    *uuid.UUID      `db:"poller_token"    json:"-"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"      json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
