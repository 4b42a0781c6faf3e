package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arkan-dev/bugtrace-api/internal/config"
	"github.com/arkan-dev/bugtrace-api/internal/handler"
	"github.com/arkan-dev/bugtrace-api/internal/middleware"
	"github.com/arkan-dev/bugtrace-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuditLogHandler *handler.AuditLogHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AuditLogHandler != nil {
		logs := api.Group("/logs", jwtMiddleware)

		// Export is expensive and cleanup destructive: both get a tight
		// rate limit, cleanup additionally requires the admin role.
		logs.Use("/export", middleware.RateLimit("audit-export", 5, time.Minute))
		logs.Use("/cleanup", middleware.RateLimit("audit-cleanup", 2, time.Minute), middleware.RequireRole("admin"))

		deps.AuditLogHandler.Register(logs)
	}
}
