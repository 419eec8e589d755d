package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/culturalsoundlab/soundlab/pkg/kernel"
)

// Authenticate validates the bearer token and stores the caller in
// c.Locals(kernel.AuthContextKey). The token is read from the Authorization
// header, then the access_token cookie, then the access_token query
// parameter for EventSource clients that cannot set headers.
func Authenticate(v *Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Cookies("access_token")
		}
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			return authErrors.New(ErrMissingToken)
		}

		ac, err := v.Verify(token)
		if err != nil {
			return err
		}
		c.Locals(kernel.AuthContextKey, ac)
		return c.Next()
	}
}

// RequireAdmin rejects callers without the service role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac := FromCtx(c)
		if !ac.IsValid() {
			return authErrors.New(ErrMissingToken)
		}
		if !ac.IsAdmin() {
			return authErrors.New(ErrForbidden)
		}
		return c.Next()
	}
}

// FromCtx returns the authenticated caller, or nil.
func FromCtx(c *fiber.Ctx) *kernel.AuthContext {
	ac, _ := c.Locals(kernel.AuthContextKey).(*kernel.AuthContext)
	return ac
}

func bearer(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
