package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/synthgen-io/synthgen/internal/api/middleware"
	"github.com/synthgen-io/synthgen/internal/api/response"
	"github.com/synthgen-io/synthgen/internal/jobs"
	"github.com/synthgen-io/synthgen/pkg/models"
)

// Generator defines the interface the generation handlers depend on.
type Generator interface {
	Start(ctx context.Context, userID uuid.UUID, jobID string, params jobs.GenerationParams) (*models.GenerationJob, error)
	Get(ctx context.Context, userID uuid.UUID, generationJobID string) (*models.GenerationJob, error)
	List(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.GenerationJob, int, error)
}

type generateRequest struct {
	ModelID      string `json:"model_id" validate:"required"`
	NumberOfRows int    `json:"number_of_rows" validate:"required"`
	OutputFormat string `json:"output_format" validate:"omitempty,oneof=csv parquet"`
}

// NewGenerateHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/generate.
func NewGenerateHandler(svc Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if err := validate.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Validation failed", validationDetails(err))
			return
		}

		gen, err := svc.Start(r.Context(), userID, chi.URLParam(r, "jobID"), jobs.GenerationParams{
			ModelID:      req.ModelID,
			NumberOfRows: req.NumberOfRows,
			OutputFormat: req.OutputFormat,
		})
		if err != nil {
			serviceError(w, err)
			return
		}

		response.Created(w, gen)
	}
}

// NewListGenerationsHandler returns an http.HandlerFunc for GET /api/v1/generations.
func NewListGenerationsHandler(svc Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		page, limit := pagination(r)
		items, total, err := svc.List(r.Context(), userID, page, limit)
		if err != nil {
			serviceError(w, err)
			return
		}

		response.Collection(w, items, response.NewPaginationMeta(page, limit, total))
	}
}

// NewGetGenerationHandler returns an http.HandlerFunc for
// GET /api/v1/generations/{generationJobID}.
func NewGetGenerationHandler(svc Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		gen, err := svc.Get(r.Context(), userID, chi.URLParam(r, "generationJobID"))
		if err != nil {
			serviceError(w, err)
			return
		}

		response.JSON(w, gen)
	}
}
