package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/synthgen-io/synthgen/internal/api/response"
	"github.com/synthgen-io/synthgen/internal/jobs"
)

// validate is shared across handlers; validator instances cache struct
// metadata and are safe for concurrent use.
var validate = validator.New()

// serviceError maps service-layer sentinels onto HTTP status codes. Anything
// unrecognized is a 500 with the detail kept out of the response body.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, jobs.ErrGenerationNotFound):
		response.Error(w, http.StatusNotFound, "GENERATION_NOT_FOUND", "Generation job not found", nil)
	case errors.Is(err, jobs.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this job", nil)
	case errors.Is(err, jobs.ErrInvalidState):
		response.Error(w, http.StatusBadRequest, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, jobs.ErrAnalysisIncomplete):
		response.Error(w, http.StatusBadRequest, "ANALYSIS_INCOMPLETE",
			"Schema analysis has not completed for this job", nil)
	case errors.Is(err, jobs.ErrRowCountOutOfRange):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"number_of_rows must be between 1 and 1,000,000", nil)
	case errors.Is(err, jobs.ErrValidation):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// validationDetails flattens validator errors into field → constraint pairs
// for the error envelope's details object.
func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
