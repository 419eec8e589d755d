package auth

import "github.com/culturalsoundlab/soundlab/pkg/errx"

var authErrors = errx.NewRegistry("AUTH")

var (
	ErrMissingToken = authErrors.Register("MISSING_TOKEN", errx.TypeAuthorization, 401, "Authentication required")
	ErrInvalidToken = authErrors.Register("INVALID_TOKEN", errx.TypeAuthorization, 401, "Invalid or expired token")
	ErrForbidden    = authErrors.Register("FORBIDDEN", errx.TypeAuthorization, 403, "Access denied")
	ErrSigning      = authErrors.Register("SIGNING_FAILED", errx.TypeInternal, 500, "Failed to sign token")
)
