package notifx

import "github.com/culturalsoundlab/soundlab/pkg/errx"

var notifxErrors = errx.NewRegistry("NOTIFX")

var (
	ErrSendFailed       = notifxErrors.Register("SEND_FAILED", errx.TypeExternal, 502, "Failed to send email")
	ErrPublishFailed    = notifxErrors.Register("PUBLISH_FAILED", errx.TypeExternal, 502, "Failed to publish status update")
	ErrSubscribeFailed  = notifxErrors.Register("SUBSCRIBE_FAILED", errx.TypeExternal, 502, "Failed to subscribe to status updates")
	ErrWriteFailed      = notifxErrors.Register("WRITE_FAILED", errx.TypeExternal, 502, "Failed to persist status update")
	ErrInvalidMessage   = notifxErrors.Register("INVALID_MESSAGE", errx.TypeValidation, 400, "Invalid email message")
	ErrTemplateNotFound = notifxErrors.Register("TEMPLATE_NOT_FOUND", errx.TypeNotFound, 404, "Email template not found")
	ErrTemplateParse    = notifxErrors.Register("TEMPLATE_PARSE", errx.TypeValidation, 400, "Failed to parse email template")
	ErrTemplateRender   = notifxErrors.Register("TEMPLATE_RENDER", errx.TypeInternal, 500, "Failed to render email template")
)

// NewError creates a notifx error wrapping cause. Providers use it so every
// sink reports failures under the same codes.
func NewError(code *errx.ErrorCode, cause error) *errx.Error {
	return notifxErrors.NewWithCause(code, cause)
}
