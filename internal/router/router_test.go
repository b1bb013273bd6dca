package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/internlog-api/internal/config"
	"github.com/noah-isme/internlog-api/internal/database"
	"github.com/noah-isme/internlog-api/internal/handler"
	"github.com/noah-isme/internlog-api/internal/middleware"
	"github.com/noah-isme/internlog-api/internal/repository"
	"github.com/noah-isme/internlog-api/internal/service"
)

const routerSecret = "router-secret"

type discardStorage struct{}

func (discardStorage) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, reader)
	return "https://files.example.com/" + name, err
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T, probes map[string]handler.Probe) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	cfg := config.Config{
		AppName:              "Internlog Test",
		AppEnv:               "test",
		JWTSecret:            routerSecret,
		TransitionRateLimit:  2,
		TransitionRateWindow: time.Minute,
	}

	logs := repository.NewDailyLogRepository(db)
	aggregates := repository.NewAggregateRepository(db)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logs, validate, logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger)
	progress := service.NewProgressService(aggregates, nil, time.Minute, logger)
	logService := service.NewLogService(service.LogServiceDeps{
		Logs:       logs,
		Aggregates: aggregates,
		Storage:    discardStorage{},
		Notifier:   notifications,
		Events:     service.NewNATSEventPublisher(nil, "internlog-test", logger),
		Activity:   activity,
		Progress:   progress,
		Validator:  validate,
		Logger:     logger,
	})

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: logger})
	Register(app, cfg, Dependencies{
		LogHandler:          handler.NewLogHandler(logService, activity, logger),
		ProgressHandler:     handler.NewProgressHandler(progress, logger),
		NotificationHandler: handler.NewNotificationHandler(notifications, logger, time.Second),
		JWTMiddleware:       middleware.JWTProtected(routerSecret),
		Probes:              probes,
	})
	return app
}

func bearer(t *testing.T, id uint, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(id), 10),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func call(t *testing.T, app *fiber.App, method, path, auth string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(fiber.HeaderAuthorization, auth)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var env envelope
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, map[string]handler.Probe{
		"database": func(context.Context) error { return nil },
	})

	resp, env := call(t, app, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Internlog Test", resp.Header.Get("X-Application"))
	require.True(t, env.Success)

	resp, _ = call(t, app, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	degraded := newTestApp(t, map[string]handler.Probe{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	resp, _ = call(t, degraded, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t, nil)

	for _, path := range []string{"/api/v2/logs", "/api/v2/students/me/progress", "/api/v2/gamification/levels", "/api/v2/notifications"} {
		resp, _ := call(t, app, http.MethodGet, path, "", nil)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestLogLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t, nil)
	student := bearer(t, 3, "student")
	mentor := bearer(t, 11, "mentor")

	resp, _ := call(t, app, http.MethodPost, "/api/v2/logs", mentor, map[string]interface{}{
		"date": "2024-01-02", "title": "Day one", "content": "Set up the repo", "mentor_id": 11,
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, env := call(t, app, http.MethodPost, "/api/v2/logs", student, map[string]interface{}{
		"date": "2024-01-02", "title": "Day one", "content": "Set up the repo", "hours_spent": 6, "mentor_id": 11,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "draft", created.Status)

	logPath := "/api/v2/logs/" + strconv.FormatUint(uint64(created.ID), 10)

	resp, env = call(t, app, http.MethodPost, logPath+"/transitions", student, map[string]string{"target": "submitted"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var submitted struct {
		XPDelta   int      `json:"xp_delta"`
		NewBadges []string `json:"new_badges"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	require.Equal(t, 10, submitted.XPDelta)
	require.Equal(t, []string{"first_log"}, submitted.NewBadges)

	resp, _ = call(t, app, http.MethodPost, logPath+"/transitions", mentor, map[string]interface{}{"target": "approved", "rating": 9})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = call(t, app, http.MethodPost, logPath+"/transitions", mentor, map[string]string{"target": "under_review"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// The third transition in the window is rejected by the limiter.
	resp, _ = call(t, app, http.MethodPost, logPath+"/transitions", mentor, map[string]interface{}{"target": "approved", "rating": 9})
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, env = call(t, app, http.MethodGet, "/api/v2/students/me/progress", student, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var progress struct {
		TotalXP int `json:"total_xp"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	require.Equal(t, 10, progress.TotalXP)

	resp, env = call(t, app, http.MethodGet, "/api/v2/notifications", mentor, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var inbox struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &inbox))
	require.EqualValues(t, 1, inbox.UnreadCount)

	resp, _ = call(t, app, http.MethodGet, logPath+"/activity", bearer(t, 4, "student"), nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
