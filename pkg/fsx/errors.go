package fsx

import "github.com/culturalsoundlab/soundlab/pkg/errx"

var fsxErrors = errx.NewRegistry("FSX")

var (
	ErrNotFound         = fsxErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "File not found")
	ErrInvalidPath      = fsxErrors.Register("INVALID_PATH", errx.TypeValidation, 400, "Invalid file path")
	ErrInvalidSignature = fsxErrors.Register("INVALID_SIGNATURE", errx.TypeAuthorization, 403, "Invalid or expired file signature")
	ErrRead             = fsxErrors.Register("READ_FAILED", errx.TypeExternal, 502, "Failed to read file")
	ErrWrite            = fsxErrors.Register("WRITE_FAILED", errx.TypeExternal, 502, "Failed to write file")
	ErrPresign          = fsxErrors.Register("PRESIGN_FAILED", errx.TypeExternal, 502, "Failed to sign file URL")
)

// NewError creates an fsx error for code carrying the offending path.
func NewError(code *errx.ErrorCode, path string, cause error) *errx.Error {
	e := fsxErrors.NewWithCause(code, cause)
	return e.WithDetail("path", path)
}
