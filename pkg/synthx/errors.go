package synthx

import "github.com/culturalsoundlab/soundlab/pkg/errx"

var synthErrors = errx.NewRegistry("SYNTH")

var (
	ErrUnavailable = synthErrors.Register("UNAVAILABLE", errx.TypeExternal, 503, "Generation service is unavailable")
	ErrBadStatus   = synthErrors.Register("BAD_STATUS", errx.TypeExternal, 502, "Generation service returned an error")
	ErrBadResponse = synthErrors.Register("BAD_RESPONSE", errx.TypeExternal, 502, "Generation service returned an invalid response")
	ErrRejected    = synthErrors.Register("REJECTED", errx.TypeExternal, 502, "Generation request was rejected")
	ErrUnknownJob  = synthErrors.Register("UNKNOWN_JOB", errx.TypeNotFound, 404, "Generation is unknown to the backend")
	ErrRender      = synthErrors.Register("RENDER_FAILED", errx.TypeInternal, 500, "Local generation failed")
)

// isOutage reports whether err indicates the backend itself is down rather
// than a problem with one request.
func isOutage(err error) bool {
	return errx.HasCode(err, ErrUnavailable)
}
