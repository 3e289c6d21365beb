package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/synthgen-io/synthgen/internal/cache"
	"github.com/synthgen-io/synthgen/internal/config"
	"github.com/synthgen-io/synthgen/internal/engine"
	"github.com/synthgen-io/synthgen/internal/events"
	"github.com/synthgen-io/synthgen/internal/store"
	"github.com/synthgen-io/synthgen/pkg/models"
)

const statusCacheTTL = 30 * time.Minute

// JobService drives a Job through upload → schema analysis → training. The
// triggering calls return immediately; a background goroutine (and for
// training, a status poller holding the job's lease) is the sole writer of
// subsequent state.
type JobService struct {
	store  store.Store
	cache  cache.Cache
	engine engine.Client
	events events.Publisher
	poll   pollSettings
}

// NewJobService creates a new JobService.
func NewJobService(st store.Store, ca cache.Cache, eng engine.Client, ev events.Publisher, cfg config.EngineConfig) *JobService {
	return &JobService{
		store:  st,
		cache:  ca,
		engine: eng,
		events: ev,
		poll: pollSettings{
			interval: cfg.TrainPollInterval,
			maxPolls: cfg.TrainMaxPolls,
		},
	}
}

// CreateFromUpload persists a queued job for a freshly uploaded file and
// dispatches schema analysis in a background goroutine. Returns the job
// immediately without waiting for the analysis.
func (s *JobService) CreateFromUpload(ctx context.Context, userID uuid.UUID, fileName, filePath string) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		JobID:     uuid.NewString(),
		UserID:    userID,
		Status:    models.JobStatusQueued,
		Progress:  0,
		FileName:  fileName,
		FilePath:  filePath,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.JobID, job.Status, statusCacheTTL)

	go s.runAnalysis(job.JobID, filePath)

	return job, nil
}

// runAnalysis performs the schema analysis phase in a goroutine. It recovers
// from panics and always leaves the job queued (with analysis) or failed.
func (s *JobService) runAnalysis(jobID, filePath string) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in runAnalysis", "error", r, "job_id", jobID)
			s.markJobFailed(ctx, jobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	if _, err := s.updateJob(ctx, jobID,
		store.WithJobStatus(models.JobStatusAnalyzing),
		store.WithJobProgress(10),
	); err != nil {
		slog.Error("marking job analyzing failed", "job_id", jobID, "error", err)
		return
	}

	analysis, err := s.engine.AnalyzeSchema(ctx, filePath)
	if err != nil {
		slog.Error("schema analysis failed", "job_id", jobID, "error", err)
		s.markJobFailed(ctx, jobID, err.Error())
		return
	}

	if _, err := s.updateJob(ctx, jobID,
		store.WithJobStatus(models.JobStatusQueued),
		store.WithJobProgress(100),
		store.WithSchemaAnalysis(analysis),
	); err != nil {
		slog.Error("storing schema analysis failed", "job_id", jobID, "error", err)
		return
	}

	slog.Info("schema analysis completed", "job_id", jobID)
}

// StartTraining validates the request and, on acceptance, marks the job
// training and detaches the initiation + polling continuation. Precondition
// violations are returned synchronously without mutating state.
func (s *JobService) StartTraining(ctx context.Context, userID uuid.UUID, jobID string, cfg engine.ModelConfig) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}

	if job.UserID != userID {
		return nil, ErrForbidden
	}
	if job.Status != models.JobStatusQueued {
		return nil, fmt.Errorf("%w: cannot start training while %s", ErrInvalidState, job.Status)
	}
	if job.SchemaAnalysis == nil {
		return nil, ErrAnalysisIncomplete
	}

	if cfg.ModelType == "" {
		cfg = engine.ModelConfig{ModelType: "sdv", Epochs: 10}
	}

	updated, err := s.updateJob(ctx, jobID,
		store.WithJobStatus(models.JobStatusTraining),
		store.WithJobProgress(0),
	)
	if err != nil {
		return nil, fmt.Errorf("marking job training: %w", err)
	}

	go s.runTraining(jobID, job.FilePath, cfg)

	return updated, nil
}

// runTraining initiates remote training and hands off to the poller. An
// initiation failure (retries already exhausted inside the engine client) is
// terminal for the job; no poller is spawned.
func (s *JobService) runTraining(jobID, filePath string, cfg engine.ModelConfig) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in runTraining", "error", r, "job_id", jobID)
			s.markJobFailed(ctx, jobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	res, err := s.engine.TrainModel(ctx, jobID, filePath, cfg)
	if err != nil {
		slog.Error("training initiation failed", "job_id", jobID, "error", err)
		s.markJobFailed(ctx, jobID, err.Error())
		return
	}

	if _, err := s.updateJob(ctx, jobID, store.WithJobTaskID(res.TaskID)); err != nil {
		slog.Error("recording training task failed", "job_id", jobID, "error", err)
		return
	}

	slog.Info("training initiated", "job_id", jobID, "task_id", res.TaskID)
	s.pollTraining(jobID, res.TaskID)
}

// ResumeTraining re-attaches a poller to a training job found in flight at
// startup. Used by the recovery sweep.
func (s *JobService) ResumeTraining(jobID, taskID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in resumed training poller", "error", r, "job_id", jobID)
			}
		}()
		s.pollTraining(jobID, taskID)
	}()
}

// pollTraining acquires the job's poller lease and drives the training task
// to completion, failure, or budget exhaustion. If the lease is already held
// (duplicate trigger) no second poller is started.
func (s *JobService) pollTraining(jobID, taskID string) {
	ctx := context.Background()

	token := uuid.New()
	ok, err := s.store.AcquireJobLease(ctx, jobID, token)
	if err != nil {
		slog.Error("acquiring poller lease failed", "job_id", jobID, "error", err)
		return
	}
	if !ok {
		slog.Warn("poller already active for job, not starting another", "job_id", jobID)
		return
	}
	defer func() {
		if err := s.store.ReleaseJobLease(context.Background(), jobID, token); err != nil {
			slog.Error("releasing poller lease failed", "job_id", jobID, "error", err)
		}
	}()

	p := &poller{
		entity:   "job",
		key:      jobID,
		settings: s.poll,
		fetch: func(ctx context.Context) (*engine.TaskStatus, error) {
			return s.engine.TrainingStatus(ctx, taskID)
		},
		apply: func(ctx context.Context, st *engine.TaskStatus) (bool, error) {
			return s.applyTrainingStatus(ctx, jobID, st)
		},
		onTimeout: func(ctx context.Context) {
			s.markJobFailed(ctx, jobID, timeoutMessage)
		},
	}
	p.run(ctx)
}

// applyTrainingStatus writes one remote status snapshot into the store.
// Returns done=true once a terminal state has been persisted.
func (s *JobService) applyTrainingStatus(ctx context.Context, jobID string, st *engine.TaskStatus) (bool, error) {
	logUnknownStatus("job", jobID, st.Status)

	switch st.Status {
	case engine.TaskStatusCompleted:
		opts := []store.JobUpdate{
			store.WithJobStatus(models.JobStatusCompleted),
			store.WithJobProgress(st.Progress),
		}
		if st.ModelPath != nil {
			opts = append(opts, store.WithModelPath(*st.ModelPath))
		}
		if _, err := s.updateJob(ctx, jobID, opts...); err != nil {
			return false, err
		}
		slog.Info("training completed", "job_id", jobID)
		return true, nil

	case engine.TaskStatusFailed:
		msg := "training failed"
		if st.Error != nil && *st.Error != "" {
			msg = *st.Error
		}
		if err := s.markJobFailed(ctx, jobID, msg); err != nil {
			return false, err
		}
		slog.Info("training failed", "job_id", jobID, "error", msg)
		return true, nil

	default:
		opts := []store.JobUpdate{
			store.WithJobStatus(models.JobStatusTraining),
			store.WithJobProgress(st.Progress),
		}
		if st.ModelPath != nil {
			opts = append(opts, store.WithModelPath(*st.ModelPath))
		}
		if _, err := s.updateJob(ctx, jobID, opts...); err != nil {
			return false, err
		}
		return false, nil
	}
}

// GetJob returns the job after an ownership check.
func (s *JobService) GetJob(ctx context.Context, userID uuid.UUID, jobID string) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrForbidden
	}
	return job, nil
}

// ListJobs returns the user's jobs, newest first, with the total count.
func (s *JobService) ListJobs(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.Job, int, error) {
	return s.store.ListJobs(ctx, userID, page, limit)
}

// markJobFailed finalizes the job. A write rejected because the job is
// already terminal is not an error: someone else finalized it first.
func (s *JobService) markJobFailed(ctx context.Context, jobID, msg string) error {
	_, err := s.updateJob(ctx, jobID,
		store.WithJobStatus(models.JobStatusFailed),
		store.WithJobError(msg),
	)
	if errors.Is(err, store.ErrFinalized) {
		return nil
	}
	if err != nil {
		slog.Error("marking job failed failed", "job_id", jobID, "error", err)
	}
	return err
}

// updateJob wraps the store write with the cache mirror and event publish.
func (s *JobService) updateJob(ctx context.Context, jobID string, opts ...store.JobUpdate) (*models.Job, error) {
	job, err := s.store.UpdateJob(ctx, jobID, opts...)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetJobStatus(ctx, jobID, job.Status, statusCacheTTL)
	s.events.JobStatusChanged(job)
	return job, nil
}
