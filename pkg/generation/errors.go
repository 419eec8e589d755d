package generation

import "github.com/culturalsoundlab/soundlab/pkg/errx"

var generationErrors = errx.NewRegistry("GENERATION")

var (
	ErrInvalidRequest = generationErrors.Register("INVALID_REQUEST", errx.TypeValidation, 400, "Invalid generation request")
	ErrUnknownType    = generationErrors.Register("UNKNOWN_TYPE", errx.TypeValidation, 400, "Unknown generation type")
	ErrNotFound       = generationErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Generation not found")
	ErrDuplicate      = generationErrors.Register("DUPLICATE", errx.TypeConflict, 409, "Generation already exists")
	ErrForbidden      = generationErrors.Register("FORBIDDEN", errx.TypeAuthorization, 403, "Not allowed to access this generation")
	ErrUnauthorized   = generationErrors.Register("UNAUTHORIZED", errx.TypeAuthorization, 401, "Authentication required")
	ErrPersistFailed  = generationErrors.Register("PERSIST_FAILED", errx.TypeExternal, 502, "Failed to save generation")
	ErrMalformedJob   = generationErrors.Register("MALFORMED_JOB", errx.TypeInternal, 500, "Generation job payload is malformed")
	ErrSourceSample   = generationErrors.Register("SOURCE_SAMPLE", errx.TypeExternal, 502, "Could not access a source sample")
	ErrBackendFailed  = generationErrors.Register("BACKEND_FAILED", errx.TypeExternal, 502, "Audio generation failed")
	ErrTimeout        = generationErrors.Register("TIMEOUT", errx.TypeExternal, 504, "Audio generation timed out")
	ErrCancelled      = generationErrors.Register("CANCELLED", errx.TypeConflict, 409, "Generation was cancelled")
)

// NewError builds a registered generation error, optionally wrapping cause.
func NewError(code *errx.ErrorCode, cause error) *errx.Error {
	if cause == nil {
		return generationErrors.New(code)
	}
	return generationErrors.NewWithCause(code, cause)
}
