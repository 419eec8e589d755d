package fsxlocal

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/culturalsoundlab/soundlab/pkg/fsx"
)

// FileHandler serves and accepts files addressed by signed URLs. Mount it
// with a trailing wildcard, e.g. app.All("/files/*", fsxlocal.FileHandler(l)).
func FileHandler(l *LocalFileSystem) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Params("*")
		expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
		if err != nil {
			return fsx.NewError(fsx.ErrInvalidSignature, path, err)
		}
		method := c.Method()
		if method == fiber.MethodHead {
			method = fiber.MethodGet
		}
		if err := l.Verify(method, path, expires, c.Query("signature")); err != nil {
			return err
		}

		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead:
			data, err := l.ReadFile(c.UserContext(), path)
			if err != nil {
				return err
			}
			c.Set(fiber.HeaderContentType, detectContentType(path))
			return c.Send(data)
		case fiber.MethodPut:
			if err := l.WriteFile(c.UserContext(), path, c.Body()); err != nil {
				return err
			}
			return c.SendStatus(fiber.StatusCreated)
		default:
			return c.SendStatus(fiber.StatusMethodNotAllowed)
		}
	}
}
