package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/internlog-api/internal/config"
	"github.com/noah-isme/internlog-api/internal/handler"
	"github.com/noah-isme/internlog-api/internal/middleware"
	"github.com/noah-isme/internlog-api/internal/models"
	"github.com/noah-isme/internlog-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	LogHandler          *handler.LogHandler
	ProgressHandler     *handler.ProgressHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
	Probes              map[string]handler.Probe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Probes))

	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	if deps.LogHandler != nil {
		deps.LogHandler.Register(v2.Group("/logs"), handler.LogRoutesConfig{
			StudentOnly:     middleware.RequireRole(models.RoleStudent),
			Reviewers:       middleware.RequireRole(models.RoleStudent, models.RoleMentor, models.RoleAdvisor),
			TransitionLimit: middleware.RateLimit("transitions", cfg.TransitionRateLimit, cfg.TransitionRateWindow),
		})
	}

	if deps.ProgressHandler != nil {
		deps.ProgressHandler.RegisterStudents(v2.Group("/students"))
		deps.ProgressHandler.RegisterCatalog(v2.Group("/gamification"))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(v2.Group("/notifications"))
	}
}
