package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/mockmate-judge/internal/config"
	"github.com/noah-isme/mockmate-judge/internal/handler"
	"github.com/noah-isme/mockmate-judge/internal/middleware"
	"github.com/noah-isme/mockmate-judge/internal/observability"
)

// Roles allowed to use the coding endpoints.
var codingRoles = []string{"student", "mentor", "admin"}

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CodingSubmissionHandler *handler.CodingSubmissionHandler
	JWTMiddleware           fiber.Handler
	TestRateLimiter         fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.CodingSubmissionHandler != nil {
		coding := api.Group("/coding", jwtMiddleware, middleware.RequireRole(codingRoles...))
		if deps.TestRateLimiter != nil {
			coding.Use("/test", deps.TestRateLimiter)
		}
		deps.CodingSubmissionHandler.Register(coding)
	}
}
