package generationapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/culturalsoundlab/soundlab/pkg/auth"
	"github.com/culturalsoundlab/soundlab/pkg/errx"
	"github.com/culturalsoundlab/soundlab/pkg/generation"
	"github.com/culturalsoundlab/soundlab/pkg/kernel"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

var apiErrors = errx.NewRegistry("GENERATION_API")

var ErrBadBody = apiErrors.Register("BAD_BODY", errx.TypeValidation, 400, "Request body is not valid JSON")

// Handlers exposes the generation service over HTTP.
type Handlers struct {
	svc    *generation.Service
	stream *streamer
}

// NewHandlers creates the handlers. sub may be nil, in which case the
// event stream endpoint only sends the current snapshot.
func NewHandlers(svc *generation.Service, sub notifx.Subscriber) *Handlers {
	return &Handlers{svc: svc, stream: newStreamer(svc, sub)}
}

// RegisterRoutes mounts the API under /api/v1 behind authMw.
func (h *Handlers) RegisterRoutes(app fiber.Router, authMw fiber.Handler) {
	api := app.Group("/api/v1", authMw)

	gens := api.Group("/generations")
	gens.Post("/", h.Submit)
	gens.Get("/", h.List)
	gens.Get("/:id", h.Generation)

	jobs := api.Group("/jobs")
	jobs.Get("/:id", h.Job)
	jobs.Delete("/:id", h.Cancel)
	jobs.Get("/:id/events", h.stream.Events)

	api.Get("/queue/stats", h.Stats)
}

// Submit handles POST /api/v1/generations.
func (h *Handlers) Submit(c *fiber.Ctx) error {
	var req generation.Request
	if err := c.BodyParser(&req); err != nil {
		return apiErrors.NewWithCause(ErrBadBody, err)
	}
	resp, err := h.svc.Submit(c.UserContext(), auth.FromCtx(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// List handles GET /api/v1/generations?limit=&offset=.
func (h *Handlers) List(c *fiber.Ctx) error {
	views, err := h.svc.List(c.UserContext(), auth.FromCtx(c), c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"generations": views,
		"count":       len(views),
	})
}

// Generation handles GET /api/v1/generations/:id.
func (h *Handlers) Generation(c *fiber.Ctx) error {
	view, err := h.svc.Generation(c.UserContext(), auth.FromCtx(c), kernel.GenerationID(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// Job handles GET /api/v1/jobs/:id.
func (h *Handlers) Job(c *fiber.Ctx) error {
	view, err := h.svc.Job(c.UserContext(), auth.FromCtx(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// Cancel handles DELETE /api/v1/jobs/:id.
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	view, err := h.svc.Cancel(c.UserContext(), auth.FromCtx(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// Stats handles GET /api/v1/queue/stats.
func (h *Handlers) Stats(c *fiber.Ctx) error {
	return c.JSON(h.svc.Stats())
}
