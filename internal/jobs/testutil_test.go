package jobs_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synthgen-io/synthgen/internal/cache"
	"github.com/synthgen-io/synthgen/internal/engine"
	"github.com/synthgen-io/synthgen/internal/store"
	"github.com/synthgen-io/synthgen/pkg/models"
)

// --- in-memory store ---

type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*models.Job
	gens  map[string]*models.GenerationJob
	users map[uuid.UUID]*models.User
}

func newMemStore() *memStore {
	return &memStore{
		jobs:  make(map[string]*models.Job),
		gens:  make(map[string]*models.GenerationJob),
		users: make(map[uuid.UUID]*models.User),
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return store.ErrDuplicateKey
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) CreateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.JobID]; exists {
		return store.ErrDuplicateKey
	}
	cp := *job
	m.jobs[job.JobID] = &cp
	return nil
}

func (m *memStore) GetJob(_ context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ListJobs(_ context.Context, userID uuid.UUID, page, limit int) ([]*models.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, job := range m.jobs {
		if job.UserID == userID {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *memStore) UpdateJob(_ context.Context, jobID string, opts ...store.JobUpdate) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Terminal() {
		return nil, store.ErrFinalized
	}

	p := store.CollectJobUpdates(opts...)
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Progress != nil {
		job.Progress = *p.Progress
	}
	if p.SchemaAnalysis != nil {
		job.SchemaAnalysis = p.SchemaAnalysis
	}
	if p.ModelPath != nil {
		job.ModelPath = p.ModelPath
	}
	if p.TaskID != nil {
		job.TaskID = p.TaskID
	}
	if p.ErrorMessage != nil {
		job.ErrorMessage = p.ErrorMessage
	}
	job.UpdatedAt = time.Now().UTC()

	cp := *job
	return &cp, nil
}

func (m *memStore) AcquireJobLease(_ context.Context, jobID string, token uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false, store.ErrNotFound
	}
	if job.PollerToken != nil || job.Terminal() {
		return false, nil
	}
	job.PollerToken = &token
	return true, nil
}

func (m *memStore) ReleaseJobLease(_ context.Context, jobID string, token uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if job.PollerToken != nil && *job.PollerToken == token {
		job.PollerToken = nil
	}
	return nil
}

func (m *memStore) CreateGenerationJob(_ context.Context, gen *models.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.gens[gen.GenerationJobID]; exists {
		return store.ErrDuplicateKey
	}
	cp := *gen
	m.gens[gen.GenerationJobID] = &cp
	return nil
}

func (m *memStore) GetGenerationJob(_ context.Context, generationJobID string) (*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[generationJobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *gen
	return &cp, nil
}

func (m *memStore) ListGenerationJobs(_ context.Context, userID uuid.UUID, page, limit int) ([]*models.GenerationJob, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GenerationJob
	for _, gen := range m.gens {
		if gen.UserID == userID {
			cp := *gen
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *memStore) UpdateGenerationJob(_ context.Context, generationJobID string, opts ...store.GenerationUpdate) (*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[generationJobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if gen.Terminal() {
		return nil, store.ErrFinalized
	}

	p := store.CollectGenerationUpdates(opts...)
	if p.Status != nil {
		gen.Status = *p.Status
	}
	if p.Progress != nil {
		gen.Progress = *p.Progress
	}
	if p.CurrentRows != nil {
		gen.CurrentRows = *p.CurrentRows
	}
	if p.TaskID != nil {
		gen.TaskID = p.TaskID
	}
	if p.StorageLink != nil {
		gen.StorageLink = p.StorageLink
	}
	if p.EstimatedTime != nil {
		gen.EstimatedTime = p.EstimatedTime
	}
	if p.FileSize != nil {
		gen.FileSize = p.FileSize
	}
	if p.ErrorMessage != nil {
		gen.ErrorMessage = p.ErrorMessage
	}
	if p.CompletedAt != nil {
		gen.CompletedAt = p.CompletedAt
	}
	gen.UpdatedAt = time.Now().UTC()

	cp := *gen
	return &cp, nil
}

func (m *memStore) AcquireGenerationLease(_ context.Context, generationJobID string, token uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[generationJobID]
	if !ok {
		return false, store.ErrNotFound
	}
	if gen.PollerToken != nil || gen.Terminal() {
		return false, nil
	}
	gen.PollerToken = &token
	return true, nil
}

func (m *memStore) ReleaseGenerationLease(_ context.Context, generationJobID string, token uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[generationJobID]
	if !ok {
		return store.ErrNotFound
	}
	if gen.PollerToken != nil && *gen.PollerToken == token {
		gen.PollerToken = nil
	}
	return nil
}

func (m *memStore) ListUnfinishedJobs(context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, job := range m.jobs {
		if job.Status == models.JobStatusAnalyzing || job.Status == models.JobStatusTraining {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListUnfinishedGenerationJobs(context.Context) ([]*models.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GenerationJob
	for _, gen := range m.gens {
		if gen.Status == models.GenerationStatusPending || gen.Status == models.GenerationStatusProcessing {
			cp := *gen
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ClearPollerLeases(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		job.PollerToken = nil
	}
	for _, gen := range m.gens {
		gen.PollerToken = nil
	}
	return nil
}

var _ store.Store = (*memStore)(nil)

// --- mock cache ---

type mockCache struct {
	mu       sync.Mutex
	statuses map[string]string
}

func newMockCache() *mockCache {
	return &mockCache{statuses: make(map[string]string)}
}

func (c *mockCache) Ping(context.Context) error { return nil }

func (c *mockCache) SetJobStatus(_ context.Context, jobID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses["job:"+jobID] = status
	return nil
}

func (c *mockCache) GetJobStatus(_ context.Context, jobID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses["job:"+jobID]
	return s, ok, nil
}

func (c *mockCache) SetGenerationStatus(_ context.Context, genID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses["generation:"+genID] = status
	return nil
}

func (c *mockCache) GetGenerationStatus(_ context.Context, genID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses["generation:"+genID]
	return s, ok, nil
}

func (c *mockCache) SetRefreshToken(context.Context, string, uuid.UUID, time.Duration) error {
	return nil
}

func (c *mockCache) GetRefreshToken(context.Context, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (c *mockCache) DeleteRefreshToken(context.Context, string) error { return nil }

func (c *mockCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*mockCache)(nil)

// --- mock engine ---

// mockEngine scripts the engine's behavior per call. Status fetches pop from
// a queue; the last element repeats once the queue drains.
type mockEngine struct {
	mu sync.Mutex

	analysis    *models.SchemaAnalysis
	analysisErr error

	trainResult *engine.TrainingResult
	trainErr    error
	trainCalls  int

	genResult *engine.GenerationResult
	genErr    error
	genCalls  int

	trainStatuses []*engine.TaskStatus
	genStatuses   []*engine.TaskStatus
	statusErr     error
	statusCalls   int
}

func (e *mockEngine) AnalyzeSchema(context.Context, string) (*models.SchemaAnalysis, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.analysisErr != nil {
		return nil, e.analysisErr
	}
	return e.analysis, nil
}

func (e *mockEngine) TrainModel(context.Context, string, string, engine.ModelConfig) (*engine.TrainingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trainCalls++
	if e.trainErr != nil {
		return nil, e.trainErr
	}
	return e.trainResult, nil
}

func (e *mockEngine) GenerateData(context.Context, string, string, int, string) (*engine.GenerationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.genCalls++
	if e.genErr != nil {
		return nil, e.genErr
	}
	return e.genResult, nil
}

func (e *mockEngine) TrainingStatus(context.Context, string) (*engine.TaskStatus, error) {
	return e.nextStatus(&e.trainStatuses)
}

func (e *mockEngine) GenerationStatus(context.Context, string) (*engine.TaskStatus, error) {
	return e.nextStatus(&e.genStatuses)
}

func (e *mockEngine) nextStatus(queue *[]*engine.TaskStatus) (*engine.TaskStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusCalls++
	if e.statusErr != nil {
		return nil, e.statusErr
	}
	if len(*queue) == 0 {
		return &engine.TaskStatus{Status: "running", Progress: 0}, nil
	}
	st := (*queue)[0]
	if len(*queue) > 1 {
		*queue = (*queue)[1:]
	}
	return st, nil
}

var _ engine.Client = (*mockEngine)(nil)

// --- mock publisher ---

type mockPublisher struct {
	mu         sync.Mutex
	jobEvents  []string
	genEvents  []string
}

func (p *mockPublisher) JobStatusChanged(job *models.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobEvents = append(p.jobEvents, job.Status)
}

func (p *mockPublisher) GenerationStatusChanged(gen *models.GenerationJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.genEvents = append(p.genEvents, gen.Status)
}

func (p *mockPublisher) Close() {}

// --- helpers ---

func ptr[T any](v T) *T { return &v }
