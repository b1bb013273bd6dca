package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internlog-api/internal/config"
	"github.com/noah-isme/internlog-api/internal/handler"
)

func TestHealthCheckHealthy(t *testing.T) {
	app := fiber.New()
	app.Get("/health", handler.HealthCheck(config.Config{AppName: "Internlog API", AppEnv: "test"}, map[string]handler.Probe{
		"postgres": func(context.Context) error { return nil },
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data handler.HealthResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "ok", body.Data.Status)
	require.Equal(t, "Internlog API", body.Data.Service)
	require.Equal(t, "up", body.Data.Dependencies["postgres"])
}

func TestHealthCheckDegraded(t *testing.T) {
	app := fiber.New()
	app.Get("/health", handler.HealthCheck(config.Config{AppName: "Internlog API"}, map[string]handler.Probe{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Success bool                   `json:"success"`
		Data    handler.HealthResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "degraded", body.Data.Status)
	require.Equal(t, "down: connection refused", body.Data.Dependencies["redis"])
}
