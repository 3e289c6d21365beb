package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	GenerationStatusPending    = "pending"
	GenerationStatusProcessing = "processing"
	GenerationStatusCompleted  = "completed"
	GenerationStatusFailed     = "failed"
)

const (
	OutputFormatCSV     = "csv"
	OutputFormatParquet = "parquet"
)

const (
	StorageTypeIPFS    = "ipfs"
	StorageTypeArweave = "arweave"
)

// Row count bounds accepted for a single generation request.
const (
	MinGenerationRows = 1
	MaxGenerationRows = 1_000_000
)

// GenerationJob tracks one request to synthesize rows from a trained model.
// Terminal states (completed/failed) are final.
type GenerationJob struct {
	ID              uuid.UUID  `db:"id"                json:"-"`
	GenerationJobID string     `db:"generation_job_id" json:"generation_job_id"`
	JobID           string     `db:"job_id"            json:"job_id"`
	UserID          uuid.UUID  `db:"user_id"           json:"user_id"`
	ModelID         string     `db:"model_id"          json:"model_id"`
	NumberOfRows    int        `db:"number_of_rows"    json:"number_of_rows"`
	OutputFormat    string     `db:"output_format"     json:"output_format"`
	Status          string     `db:"status"            json:"status"`
	Progress        int        `db:"progress"          json:"progress"`
	CurrentRows     int64      `db:"current_rows"      json:"current_rows"`
	TaskID          *string    `db:"task_id"           json:"-"`
	StorageLink     *string    `db:"storage_link"      json:"storage_link,omitempty"`
	StorageType     string     `db:"storage_type"      json:"storage_type"`
	EstimatedTime   *int       `db:"estimated_time"    json:"estimated_time,omitempty"`
	FileSize        *int64     `db:"file_size"         json:"file_size,omitempty"`
	ErrorMessage    *string    `db:"error_message"     json:"error_message,omitempty"`
	PollerToken     *uuid.UUID `db:"poller_token"      json:"-"`
	CompletedAt     *time.Time `db:"completed_at"      json:"completed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
}

// Terminal reports whether the generation job has reached a final state.
func (g *GenerationJob) Terminal() bool {
	return g.Status == GenerationStatusCompleted || g.Status == GenerationStatusFailed
}
