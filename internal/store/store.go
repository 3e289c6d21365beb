package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/synthgen-io/synthgen/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrFinalized is returned for any write against an entity already in a
// terminal state. Terminal states are final; nothing may mutate them.
var ErrFinalized = errors.New("entity is in a terminal state")

// ErrInvalidTransition is returned when a status update does not follow the
// entity's forward-only transition graph.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.Job, int, error)
	UpdateJob(ctx context.Context, jobID string, opts ...JobUpdate) (*models.Job, error)
	AcquireJobLease(ctx context.Context, jobID string, token uuid.UUID) (bool, error)
	ReleaseJobLease(ctx context.Context, jobID string, token uuid.UUID) error

	CreateGenerationJob(ctx context.Context, gen *models.GenerationJob) error
	GetGenerationJob(ctx context.Context, generationJobID string) (*models.GenerationJob, error)
	ListGenerationJobs(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.GenerationJob, int, error)
	UpdateGenerationJob(ctx context.Context, generationJobID string, opts ...GenerationUpdate) (*models.GenerationJob, error)
	AcquireGenerationLease(ctx context.Context, generationJobID string, token uuid.UUID) (bool, error)
	ReleaseGenerationLease(ctx context.Context, generationJobID string, token uuid.UUID) error

	// Recovery support: non-terminal entities left behind by a previous process.
	ListUnfinishedJobs(ctx context.Context) ([]*models.Job, error)
	ListUnfinishedGenerationJobs(ctx context.Context) ([]*models.GenerationJob, error)
	ClearPollerLeases(ctx context.Context) error
}

// JobUpdateParams is the collected form of a set of JobUpdate options. Nil
// fields are left untouched by the write.
type JobUpdateParams struct {
	Status         *string
	Progress       *int
	SchemaAnalysis *models.SchemaAnalysis
	ModelPath      *string
	TaskID         *string
	ErrorMessage   *string
}

// JobUpdate is a partial-update option for UpdateJob.
type JobUpdate func(*JobUpdateParams)

// CollectJobUpdates folds options into params for a Store implementation to
// consume.
func CollectJobUpdates(opts ...JobUpdate) *JobUpdateParams {
	p := &JobUpdateParams{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithJobStatus(status string) JobUpdate {
	return func(p *JobUpdateParams) { p.Status = &status }
}

func WithJobProgress(progress int) JobUpdate {
	return func(p *JobUpdateParams) { p.Progress = &progress }
}

func WithSchemaAnalysis(sa *models.SchemaAnalysis) JobUpdate {
	return func(p *JobUpdateParams) { p.SchemaAnalysis = sa }
}

func WithModelPath(path string) JobUpdate {
	return func(p *JobUpdateParams) { p.ModelPath = &path }
}

func WithJobTaskID(taskID string) JobUpdate {
	return func(p *JobUpdateParams) { p.TaskID = &taskID }
}

func WithJobError(msg string) JobUpdate {
	return func(p *JobUpdateParams) { p.ErrorMessage = &msg }
}

// GenerationUpdateParams is the collected form of a set of GenerationUpdate
// options.
type GenerationUpdateParams struct {
	Status        *string
	Progress      *int
	CurrentRows   *int64
	TaskID        *string
	StorageLink   *string
	EstimatedTime *int
	FileSize      *int64
	ErrorMessage  *string
	CompletedAt   *time.Time
}

// GenerationUpdate is a partial-update option for UpdateGenerationJob.
type GenerationUpdate func(*GenerationUpdateParams)

// CollectGenerationUpdates folds options into params for a Store
// implementation to consume.
func CollectGenerationUpdates(opts ...GenerationUpdate) *GenerationUpdateParams {
	p := &GenerationUpdateParams{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithGenerationStatus(status string) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.Status = &status }
}

func WithGenerationProgress(progress int) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.Progress = &progress }
}

func WithCurrentRows(rows int64) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.CurrentRows = &rows }
}

func WithGenerationTaskID(taskID string) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.TaskID = &taskID }
}

func WithStorageLink(link string) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.StorageLink = &link }
}

func WithEstimatedTime(seconds int) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.EstimatedTime = &seconds }
}

func WithFileSize(bytes int64) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.FileSize = &bytes }
}

func WithGenerationError(msg string) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.ErrorMessage = &msg }
}

func WithCompletedAt(t time.Time) GenerationUpdate {
	return func(p *GenerationUpdateParams) { p.CompletedAt = &t }
}
