package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/synthgen-io/synthgen/internal/api/middleware"
	"github.com/synthgen-io/synthgen/internal/api/response"
	"github.com/synthgen-io/synthgen/internal/engine"
	"github.com/synthgen-io/synthgen/pkg/models"
)

// JobReader defines the read side of the job handlers.
type JobReader interface {
	GetJob(ctx context.Context, userID uuid.UUID, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.Job, int, error)
}

// Trainer defines the interface the training handler depends on.
type Trainer interface {
	StartTraining(ctx context.Context, userID uuid.UUID, jobID string, cfg engine.ModelConfig) (*models.Job, error)
}

type trainRequest struct {
	JobID       string `json:"job_id" validate:"required"`
	ModelConfig struct {
		ModelType string `json:"model_type"`
		Epochs    int    `json:"epochs" validate:"omitempty,min=1,max=1000"`
		BatchSize int    `json:"batch_size" validate:"omitempty,min=1"`
	} `json:"model_config"`
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		page, limit := pagination(r)
		items, total, err := svc.ListJobs(r.Context(), userID, page, limit)
		if err != nil {
			serviceError(w, err)
			return
		}

		response.Collection(w, items, response.NewPaginationMeta(page, limit, total))
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		job, err := svc.GetJob(r.Context(), userID, chi.URLParam(r, "jobID"))
		if err != nil {
			serviceError(w, err)
			return
		}

		response.JSON(w, job)
	}
}

// NewTrainHandler returns an http.HandlerFunc for POST /api/v1/jobs/train.
func NewTrainHandler(svc Trainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req trainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if err := validate.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Validation failed", validationDetails(err))
			return
		}

		job, err := svc.StartTraining(r.Context(), userID, req.JobID, engine.ModelConfig{
			ModelType: req.ModelConfig.ModelType,
			Epochs:    req.ModelConfig.Epochs,
			BatchSize: req.ModelConfig.BatchSize,
		})
		if err != nil {
			serviceError(w, err)
			return
		}

		response.Accepted(w, job)
	}
}

// pagination extracts page/limit query parameters with the store's defaults.
func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
