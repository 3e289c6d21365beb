package jobs

import "errors"

// Precondition failures. These propagate synchronously to the caller and
// never mutate state. Everything that goes wrong after the trigger returns is
// only visible through the persisted entity's status and error message.
var (
	ErrJobNotFound        = errors.New("job not found")
	ErrGenerationNotFound = errors.New("generation job not found")
	ErrForbidden          = errors.New("unauthorized access to job")
	ErrInvalidState       = errors.New("job is not in a valid state for this operation")
	ErrAnalysisIncomplete = errors.New("schema analysis not completed")
	ErrValidation         = errors.New("invalid request")
	ErrRowCountOutOfRange = errors.New("number of rows must be between 1 and 1,000,000")
)
