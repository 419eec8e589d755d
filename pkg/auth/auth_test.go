package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/culturalsoundlab/soundlab/pkg/errx"
	"github.com/culturalsoundlab/soundlab/pkg/kernel"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("secret", "https://auth.test", "authenticated")

	token, err := v.Issue("user-1", "a@example.com", "authenticated", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ac, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ac.UserID != "user-1" || ac.Email != "a@example.com" || ac.IsAdmin() {
		t.Errorf("auth context = %+v", ac)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("secret", "https://auth.test", "authenticated")

	expired, _ := v.Issue("user-1", "", "", -time.Minute)
	otherKey, _ := NewVerifier("other", "https://auth.test", "authenticated").Issue("user-1", "", "", time.Minute)
	otherAud, _ := NewVerifier("secret", "https://auth.test", "anon").Issue("user-1", "", "", time.Minute)
	otherIss, _ := NewVerifier("secret", "https://evil.test", "authenticated").Issue("user-1", "", "", time.Minute)
	noSubject, _ := v.Issue("", "", "", time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"expired":    expired,
		"other key":  otherKey,
		"audience":   otherAud,
		"issuer":     otherIss,
		"no subject": noSubject,
		"alg none":   none,
		"garbage":    "not.a.token",
	} {
		if _, err := v.Verify(token); !errx.HasCode(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want invalid token", name, err)
		}
	}
}

func newTestApp(v *Verifier) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(errx.StatusOf(err))
		},
	})
	app.Get("/me", Authenticate(v), func(c *fiber.Ctx) error {
		return c.SendString(FromCtx(c).UserID.String())
	})
	app.Get("/admin", Authenticate(v), RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAuthenticate(t *testing.T) {
	v := NewVerifier("secret", "", "")
	app := newTestApp(v)
	user, _ := v.Issue("user-1", "", "authenticated", time.Minute)
	admin, _ := v.Issue("ops", "", "service_role", time.Minute)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no token", "/me", "", fiber.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", fiber.StatusUnauthorized},
		{"header", "/me", "Bearer " + user, fiber.StatusOK},
		{"query", "/me?access_token=" + user, "", fiber.StatusOK},
		{"admin route as user", "/admin", "Bearer " + user, fiber.StatusForbidden},
		{"admin route as admin", "/admin", "Bearer " + admin, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestFromCtx_Unauthenticated(t *testing.T) {
	app := fiber.New()
	var got *kernel.AuthContext
	app.Get("/", func(c *fiber.Ctx) error {
		got = FromCtx(c)
		return nil
	})
	if _, err := app.Test(httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("FromCtx = %+v, want nil", got)
	}
}
