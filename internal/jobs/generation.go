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

// GenerationParams are the validated inputs for one generation request.
type GenerationParams struct {
	ModelID      string
	NumberOfRows int
	OutputFormat string
}

// GenerationService drives a GenerationJob through pending → processing →
// completed|failed. Mirrors JobService: synchronous validation, then a
// detached initiation goroutine and a lease-holding status poller.
type GenerationService struct {
	store  store.Store
	cache  cache.Cache
	engine engine.Client
	events events.Publisher
	poll   pollSettings
}

// NewGenerationService creates a new GenerationService.
func NewGenerationService(st store.Store, ca cache.Cache, eng engine.Client, ev events.Publisher, cfg config.EngineConfig) *GenerationService {
	return &GenerationService{
		store:  st,
		cache:  ca,
		engine: eng,
		events: ev,
		poll: pollSettings{
			interval: cfg.GenPollInterval,
			maxPolls: cfg.GenMaxPolls,
		},
	}
}

// Start validates the request, creates a pending GenerationJob, and
// dispatches the generation in a background goroutine. All precondition
// failures are returned before anything is persisted.
func (s *GenerationService) Start(ctx context.Context, userID uuid.UUID, jobID string, params GenerationParams) (*models.GenerationJob, error) {
	if params.ModelID == "" {
		return nil, fmt.Errorf("%w: model id is required", ErrValidation)
	}
	if params.NumberOfRows < models.MinGenerationRows || params.NumberOfRows > models.MaxGenerationRows {
		return nil, ErrRowCountOutOfRange
	}
	if params.OutputFormat == "" {
		params.OutputFormat = models.OutputFormatCSV
	}
	if params.OutputFormat != models.OutputFormatCSV && params.OutputFormat != models.OutputFormatParquet {
		return nil, fmt.Errorf("%w: output format must be csv or parquet", ErrValidation)
	}

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
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job must be completed before generating synthetic data", ErrInvalidState)
	}

	now := time.Now().UTC()
	gen := &models.GenerationJob{
		ID:              uuid.New(),
		GenerationJobID: uuid.NewString(),
		JobID:           job.JobID,
		UserID:          userID,
		ModelID:         params.ModelID,
		NumberOfRows:    params.NumberOfRows,
		OutputFormat:    params.OutputFormat,
		Status:          models.GenerationStatusPending,
		Progress:        0,
		StorageType:     models.StorageTypeIPFS,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateGenerationJob(ctx, gen); err != nil {
		return nil, fmt.Errorf("creating generation job: %w", err)
	}

	_ = s.cache.SetGenerationStatus(ctx, gen.GenerationJobID, gen.Status, statusCacheTTL)
	slog.Info("generation job created", "generation_job_id", gen.GenerationJobID, "user_id", userID)

	go s.runGeneration(gen.GenerationJobID, params)

	return gen, nil
}

// runGeneration initiates remote generation and hands off to the poller.
// Initiation failure is terminal; no poller is spawned.
func (s *GenerationService) runGeneration(generationJobID string, params GenerationParams) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in runGeneration", "error", r, "generation_job_id", generationJobID)
			s.markGenerationFailed(ctx, generationJobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	res, err := s.engine.GenerateData(ctx, generationJobID, params.ModelID, params.NumberOfRows, params.OutputFormat)
	if err != nil {
		slog.Error("generation initiation failed", "generation_job_id", generationJobID, "error", err)
		s.markGenerationFailed(ctx, generationJobID, err.Error())
		return
	}

	if _, err := s.updateGeneration(ctx, generationJobID,
		store.WithGenerationStatus(models.GenerationStatusProcessing),
		store.WithGenerationTaskID(res.TaskID),
		store.WithEstimatedTime(res.EstimatedTime),
	); err != nil {
		slog.Error("marking generation processing failed", "generation_job_id", generationJobID, "error", err)
		return
	}

	slog.Info("generation initiated", "generation_job_id", generationJobID, "task_id", res.TaskID)
	s.pollGeneration(generationJobID, res.TaskID)
}

// ResumeGeneration re-attaches a poller to a processing generation job found
// in flight at startup. Used by the recovery sweep.
func (s *GenerationService) ResumeGeneration(generationJobID, taskID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in resumed generation poller", "error", r,
					"generation_job_id", generationJobID)
			}
		}()
		s.pollGeneration(generationJobID, taskID)
	}()
}

func (s *GenerationService) pollGeneration(generationJobID, taskID string) {
	ctx := context.Background()

	token := uuid.New()
	ok, err := s.store.AcquireGenerationLease(ctx, generationJobID, token)
	if err != nil {
		slog.Error("acquiring poller lease failed", "generation_job_id", generationJobID, "error", err)
		return
	}
	if !ok {
		slog.Warn("poller already active for generation job, not starting another",
			"generation_job_id", generationJobID)
		return
	}
	defer func() {
		if err := s.store.ReleaseGenerationLease(context.Background(), generationJobID, token); err != nil {
			slog.Error("releasing poller lease failed", "generation_job_id", generationJobID, "error", err)
		}
	}()

	p := &poller{
		entity:   "generation",
		key:      generationJobID,
		settings: s.poll,
		fetch: func(ctx context.Context) (*engine.TaskStatus, error) {
			return s.engine.GenerationStatus(ctx, taskID)
		},
		apply: func(ctx context.Context, st *engine.TaskStatus) (bool, error) {
			return s.applyGenerationStatus(ctx, generationJobID, st)
		},
		onTimeout: func(ctx context.Context) {
			s.markGenerationFailed(ctx, generationJobID, timeoutMessage)
		},
	}
	p.run(ctx)
}

// applyGenerationStatus writes one remote status snapshot into the store.
func (s *GenerationService) applyGenerationStatus(ctx context.Context, generationJobID string, st *engine.TaskStatus) (bool, error) {
	logUnknownStatus("generation", generationJobID, st.Status)

	switch st.Status {
	case engine.TaskStatusCompleted:
		opts := []store.GenerationUpdate{
			store.WithGenerationStatus(models.GenerationStatusCompleted),
			store.WithGenerationProgress(st.Progress),
			store.WithCompletedAt(time.Now().UTC()),
		}
		if st.CurrentRows != nil {
			opts = append(opts, store.WithCurrentRows(*st.CurrentRows))
		}
		if st.StorageLink != nil {
			opts = append(opts, store.WithStorageLink(*st.StorageLink))
		}
		if st.FileSize != nil {
			opts = append(opts, store.WithFileSize(*st.FileSize))
		}
		if _, err := s.updateGeneration(ctx, generationJobID, opts...); err != nil {
			return false, err
		}
		slog.Info("generation completed", "generation_job_id", generationJobID)
		return true, nil

	case engine.TaskStatusFailed:
		msg := "generation failed"
		if st.Error != nil && *st.Error != "" {
			msg = *st.Error
		}
		if err := s.markGenerationFailed(ctx, generationJobID, msg); err != nil {
			return false, err
		}
		slog.Info("generation failed", "generation_job_id", generationJobID, "error", msg)
		return true, nil

	default:
		opts := []store.GenerationUpdate{
			store.WithGenerationStatus(models.GenerationStatusProcessing),
			store.WithGenerationProgress(st.Progress),
		}
		if st.CurrentRows != nil {
			opts = append(opts, store.WithCurrentRows(*st.CurrentRows))
		}
		if st.StorageLink != nil {
			opts = append(opts, store.WithStorageLink(*st.StorageLink))
		}
		if _, err := s.updateGeneration(ctx, generationJobID, opts...); err != nil {
			return false, err
		}
		return false, nil
	}
}

// Get returns the generation job after an ownership check.
func (s *GenerationService) Get(ctx context.Context, userID uuid.UUID, generationJobID string) (*models.GenerationJob, error) {
	gen, err := s.store.GetGenerationJob(ctx, generationJobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGenerationNotFound
	}
	if err != nil {
		return nil, err
	}
	if gen.UserID != userID {
		return nil, ErrForbidden
	}
	return gen, nil
}

// List returns the user's generation jobs, newest first, with the total count.
func (s *GenerationService) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.GenerationJob, int, error) {
	return s.store.ListGenerationJobs(ctx, userID, page, limit)
}

func (s *GenerationService) markGenerationFailed(ctx context.Context, generationJobID, msg string) error {
	_, err := s.updateGeneration(ctx, generationJobID,
		store.WithGenerationStatus(models.GenerationStatusFailed),
		store.WithGenerationError(msg),
	)
	if errors.Is(err, store.ErrFinalized) {
		return nil
	}
	if err != nil {
		slog.Error("marking generation failed failed", "generation_job_id", generationJobID, "error", err)
	}
	return err
}

func (s *GenerationService) updateGeneration(ctx context.Context, generationJobID string, opts ...store.GenerationUpdate) (*models.GenerationJob, error) {
	gen, err := s.store.UpdateGenerationJob(ctx, generationJobID, opts...)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetGenerationStatus(ctx, generationJobID, gen.Status, statusCacheTTL)
	s.events.GenerationStatusChanged(gen)
	return gen, nil
}
