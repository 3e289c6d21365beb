package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/synthgen-io/synthgen/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

const userColumns = `id, email, password_hash, role, created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, user.Role, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &u, nil
}

// --- Jobs ---

const jobColumns = `id, job_id, user_id, status, progress, file_name, file_path,
	schema_analysis, model_path, task_id, error_message, poller_token, created_at, updated_at`

// Forward-only transition graph. A status update that repeats the current
// status is always allowed (pollers re-assert the running state each round).
var jobTransitions = map[string][]string{
	models.JobStatusQueued:    {models.JobStatusAnalyzing, models.JobStatusTraining, models.JobStatusFailed},
	models.JobStatusAnalyzing: {models.JobStatusQueued, models.JobStatusFailed},
	models.JobStatusTraining:  {models.JobStatusCompleted, models.JobStatusFailed},
}

var generationTransitions = map[string][]string{
	models.GenerationStatusPending:    {models.GenerationStatusProcessing, models.GenerationStatusFailed},
	models.GenerationStatusProcessing: {models.GenerationStatusCompleted, models.GenerationStatusFailed},
}

func transitionAllowed(graph map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range graph[from] {
		if next == to {
			return true
		}
	}
	return false
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.JobID, &j.UserID, &j.Status, &j.Progress, &j.FileName,
		&j.FilePath, &j.SchemaAnalysis, &j.ModelPath, &j.TaskID, &j.ErrorMessage,
		&j.PollerToken, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, job_id, user_id, status, progress, file_name, file_path, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.JobID, job.UserID, job.Status, job.Progress,
		job.FileName, job.FilePath, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.Job, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit, offset := normalizePagination(page, limit)

	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// UpdateJob applies a partial update keyed by job_id. Writes against a job in
// a terminal state return ErrFinalized; status changes must follow the
// transition graph. The WHERE clause re-checks the terminal condition so a
// concurrent finalizer cannot be overwritten.
func (s *PostgresStore) UpdateJob(ctx context.Context, jobID string, opts ...JobUpdate) (*models.Job, error) {
	params := CollectJobUpdates(opts...)

	current, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if current.Terminal() {
		return nil, ErrFinalized
	}
	if params.Status != nil && !transitionAllowed(jobTransitions, current.Status, *params.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *params.Status)
	}

	set := []string{"updated_at = $2"}
	args := []any{jobID, time.Now().UTC()}
	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.SchemaAnalysis != nil {
		add("schema_analysis", params.SchemaAnalysis)
	}
	if params.ModelPath != nil {
		add("model_path", *params.ModelPath)
	}
	if params.TaskID != nil {
		add("task_id", *params.TaskID)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}

	query := fmt.Sprintf(
		`UPDATE jobs SET %s WHERE job_id = $1 AND status NOT IN ('completed', 'failed')
		 RETURNING `+jobColumns, strings.Join(set, ", "))

	j, err := scanJob(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// The job existed a moment ago; a concurrent writer finalized it.
		return nil, ErrFinalized
	}
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) AcquireJobLease(ctx context.Context, jobID string, token uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET poller_token = $2, updated_at = NOW()
		 WHERE job_id = $1 AND poller_token IS NULL AND status NOT IN ('completed', 'failed')`,
		jobID, token)
	if err != nil {
		return false, fmt.Errorf("acquire job lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseJobLease(ctx context.Context, jobID string, token uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET poller_token = NULL, updated_at = NOW()
		 WHERE job_id = $1 AND poller_token = $2`, jobID, token)
	if err != nil {
		return fmt.Errorf("release job lease: %w", err)
	}
	return nil
}

// --- Generation jobs ---

const generationColumns = `id, generation_job_id, job_id, user_id, model_id, number_of_rows,
	output_format, status, progress, current_rows, task_id, storage_link, storage_type,
	estimated_time, file_size, error_message, poller_token, completed_at, created_at, updated_at`

func scanGenerationJob(row pgx.Row) (*models.GenerationJob, error) {
	var g models.GenerationJob
	err := row.Scan(&g.ID, &g.GenerationJobID, &g.JobID, &g.UserID, &g.ModelID,
		&g.NumberOfRows, &g.OutputFormat, &g.Status, &g.Progress, &g.CurrentRows,
		&g.TaskID, &g.StorageLink, &g.StorageType, &g.EstimatedTime, &g.FileSize,
		&g.ErrorMessage, &g.PollerToken, &g.CompletedAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) CreateGenerationJob(ctx context.Context, gen *models.GenerationJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_jobs (id, generation_job_id, job_id, user_id, model_id,
		   number_of_rows, output_format, status, progress, current_rows, storage_type,
		   created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		gen.ID, gen.GenerationJobID, gen.JobID, gen.UserID, gen.ModelID,
		gen.NumberOfRows, gen.OutputFormat, gen.Status, gen.Progress, gen.CurrentRows,
		gen.StorageType, gen.CreatedAt, gen.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create generation job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGenerationJob(ctx context.Context, generationJobID string) (*models.GenerationJob, error) {
	g, err := scanGenerationJob(s.pool.QueryRow(ctx,
		`SELECT `+generationColumns+` FROM generation_jobs WHERE generation_job_id = $1`,
		generationJobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) ListGenerationJobs(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.GenerationJob, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM generation_jobs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count generation jobs: %w", err)
	}

	limit, offset := normalizePagination(page, limit)

	rows, err := s.pool.Query(ctx,
		`SELECT `+generationColumns+` FROM generation_jobs WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list generation jobs: %w", err)
	}
	defer rows.Close()

	var gens []*models.GenerationJob
	for rows.Next() {
		g, err := scanGenerationJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan generation job: %w", err)
		}
		gens = append(gens, g)
	}
	return gens, total, rows.Err()
}

func (s *PostgresStore) UpdateGenerationJob(ctx context.Context, generationJobID string, opts ...GenerationUpdate) (*models.GenerationJob, error) {
	params := CollectGenerationUpdates(opts...)

	current, err := s.GetGenerationJob(ctx, generationJobID)
	if err != nil {
		return nil, err
	}
	if current.Terminal() {
		return nil, ErrFinalized
	}
	if params.Status != nil && !transitionAllowed(generationTransitions, current.Status, *params.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *params.Status)
	}

	set := []string{"updated_at = $2"}
	args := []any{generationJobID, time.Now().UTC()}
	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.CurrentRows != nil {
		add("current_rows", *params.CurrentRows)
	}
	if params.TaskID != nil {
		add("task_id", *params.TaskID)
	}
	if params.StorageLink != nil {
		add("storage_link", *params.StorageLink)
	}
	if params.EstimatedTime != nil {
		add("estimated_time", *params.EstimatedTime)
	}
	if params.FileSize != nil {
		add("file_size", *params.FileSize)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.CompletedAt != nil {
		add("completed_at", *params.CompletedAt)
	}

	query := fmt.Sprintf(
		`UPDATE generation_jobs SET %s
		 WHERE generation_job_id = $1 AND status NOT IN ('completed', 'failed')
		 RETURNING `+generationColumns, strings.Join(set, ", "))

	g, err := scanGenerationJob(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFinalized
	}
	if err != nil {
		return nil, fmt.Errorf("update generation job: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) AcquireGenerationLease(ctx context.Context, generationJobID string, token uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs SET poller_token = $2, updated_at = NOW()
		 WHERE generation_job_id = $1 AND poller_token IS NULL AND status NOT IN ('completed', 'failed')`,
		generationJobID, token)
	if err != nil {
		return false, fmt.Errorf("acquire generation lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseGenerationLease(ctx context.Context, generationJobID string, token uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs SET poller_token = NULL, updated_at = NOW()
		 WHERE generation_job_id = $1 AND poller_token = $2`, generationJobID, token)
	if err != nil {
		return fmt.Errorf("release generation lease: %w", err)
	}
	return nil
}

// --- Recovery ---

func (s *PostgresStore) ListUnfinishedJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN ('analyzing', 'training')
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) ListUnfinishedGenerationJobs(ctx context.Context) ([]*models.GenerationJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+generationColumns+` FROM generation_jobs WHERE status IN ('pending', 'processing')
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list unfinished generation jobs: %w", err)
	}
	defer rows.Close()

	var gens []*models.GenerationJob
	for rows.Next() {
		g, err := scanGenerationJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation job: %w", err)
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

func (s *PostgresStore) ClearPollerLeases(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE jobs SET poller_token = NULL WHERE poller_token IS NOT NULL`); err != nil {
		return fmt.Errorf("clear job leases: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs SET poller_token = NULL WHERE poller_token IS NOT NULL`); err != nil {
		return fmt.Errorf("clear generation leases: %w", err)
	}
	return nil
}

func normalizePagination(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
