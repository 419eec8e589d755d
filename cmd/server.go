package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/culturalsoundlab/soundlab/pkg/auth"
	"github.com/culturalsoundlab/soundlab/pkg/config"
	"github.com/culturalsoundlab/soundlab/pkg/errx"
	"github.com/culturalsoundlab/soundlab/pkg/fsx/fsxlocal"
	"github.com/culturalsoundlab/soundlab/pkg/kernel"
	"github.com/culturalsoundlab/soundlab/pkg/logx"
)

const appVersion = "1.0.0"

func main() {
	// 1. Configuration (.env is loaded here, so the logger is rebuilt after)
	cfg, err := config.Load()
	if err != nil {
		logx.Fatalf("Invalid configuration: %v", err)
	}
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	logx.Info("🚀 Starting Cultural Sound Lab generation service...")

	// 2. Dependency container
	container := NewContainer(cfg)
	defer container.Cleanup()

	// 3. Fiber app
	app := newApp(container)

	// 4. Background services + server with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drained := container.StartBackgroundServices(ctx)
	startServer(ctx, app, cfg.Server)
	<-drained
	logx.Info("✅ Server exited successfully")
}

func newApp(container *Container) *fiber.App {
	sc := container.Config.Server

	app := fiber.New(fiber.Config{
		AppName:               "Cultural Sound Lab",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
		BodyLimit:             sc.BodyLimit,
		ReadTimeout:           sc.ReadTimeout,
		WriteTimeout:          sc.WriteTimeout,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: !sc.IsProduction(),
	}))

	app.Use(requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  uuid.NewString,
		ContextKey: string(kernel.RequestIDKey),
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(logx.NewContext(c.UserContext(), logx.Fields{"request_id": requestID(c)}))
		return c.Next()
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(sc.AllowedOrigins, ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET, POST, DELETE, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	app.Get("/health", healthCheckHandler(container))
	app.Get("/metrics", container.Metrics.Handler())
	if container.LocalFS != nil {
		app.All("/files/*", fsxlocal.FileHandler(container.LocalFS))
	}

	container.Handlers.RegisterRoutes(app, auth.Authenticate(container.Verifier))
	logx.Info("✓ Generation routes registered")

	app.Use(notFoundHandler)

	printRouteSummary(container.LocalFS != nil)
	return app
}

// ============================================================================
// Handler Functions
// ============================================================================

// healthCheckHandler reports database, queue and synthesis backend state.
func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "soundlab-generation",
			"version": appVersion,
			"queue":   container.Queue.Stats(),
		}

		if err := container.DB.PingContext(c.UserContext()); err != nil {
			health["db"] = "unhealthy"
			health["db_error"] = err.Error()
			health["status"] = "degraded"
		} else {
			health["db"] = "healthy"
		}

		backend, err := container.Backend.Health(c.UserContext())
		switch {
		case err != nil:
			health["backend"] = "unhealthy"
			health["backend_error"] = err.Error()
		default:
			health["backend"] = backend.Status
		}
		if container.Failover != nil {
			health["backend_routing"] = container.Failover.State()
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": requestID(c),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// globalErrorHandler converts internal errors to standard HTTP responses
func globalErrorHandler(c *fiber.Ctx, err error) error {
	entry := logx.WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"request_id": requestID(c),
	})

	var fe *fiber.Error
	if errors.As(err, &fe) {
		entry.Debugf("Request error: %v", err)
		return c.Status(fe.Code).JSON(fiber.Map{
			"error":      fe.Message,
			"code":       "FIBER_ERROR",
			"status":     fe.Code,
			"request_id": requestID(c),
		})
	}

	var e *errx.Error
	if errors.As(err, &e) {
		if e.HTTPStatus >= 500 {
			entry.WithError(err).Error("Request error")
		} else {
			entry.Debugf("Request error: %v", err)
		}
		return c.Status(e.HTTPStatus).JSON(e.ToHTTPResponse(requestID(c)))
	}

	entry.WithError(err).Error("Unhandled request error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":      "Internal Server Error",
		"type":       "INTERNAL",
		"code":       "INTERNAL_ERROR",
		"message":    "An unexpected error occurred",
		"request_id": requestID(c),
	})
}

// ============================================================================
// Utility Functions
// ============================================================================

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(string(kernel.RequestIDKey)).(string); ok {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

// printRouteSummary prints a summary of registered routes
func printRouteSummary(localFiles bool) {
	logx.Info("📋 Route Summary:")
	logx.Info("   ├─ Generations: /api/v1/generations, /api/v1/generations/:id")
	logx.Info("   ├─ Jobs: /api/v1/jobs/:id, /api/v1/jobs/:id/events")
	logx.Info("   ├─ Queue: /api/v1/queue/stats")
	if localFiles {
		logx.Info("   ├─ Files: /files/*")
	}
	logx.Info("   ├─ Metrics: /metrics")
	logx.Info("   └─ Health: /health")
}

// startServer serves until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, app *fiber.App, sc config.ServerConfig) {
	go func() {
		logx.Info(strings.Repeat("=", 61))
		logx.Infof("🚀 Server listening on port %s", sc.Port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", sc.Port)
		logx.Info(strings.Repeat("=", 61))

		if err := app.Listen(":" + sc.Port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logx.Info("🛑 Shutdown signal received, shutting down gracefully...")

	if err := app.ShutdownWithTimeout(sc.ShutdownTimeout); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}
}
