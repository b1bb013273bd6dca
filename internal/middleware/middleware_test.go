package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internlog-api/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func actorApp() *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(JWTProtected(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		id, role := Actor(c)
		return c.JSON(fiber.Map{"id": id, "role": role, "correlation": GetCorrelationID(c)})
	})
	return app
}

func TestJWTProtectedBindsActor(t *testing.T) {
	app := actorApp()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "42", "role": "Mentor", "exp": time.Now().Add(time.Hour).Unix()}))
	req.Header.Set(HeaderCorrelationID, "corr-1")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-1", resp.Header.Get(HeaderCorrelationID))
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := actorApp()

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"garbage":        "Bearer not-a-token",
		"no role":        "Bearer " + signToken(t, jwt.MapClaims{"sub": "1"}),
		"no subject":     "Bearer " + signToken(t, jwt.MapClaims{"role": "student"}),
		"expired":        "Bearer " + signToken(t, jwt.MapClaims{"sub": 1, "role": "student", "exp": time.Now().Add(-time.Hour).Unix()}),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", "mentor")
		return c.Next()
	})
	app.Use(RequireRole(models.RoleMentor, models.RoleAdvisor))
	app.Get("/review", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/review", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", "student")
		return c.Next()
	})
	app.Use(RequireRole(models.RoleMentor))
	app.Get("/review", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/review", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRateLimitPerUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(c.QueryInt("user")))
		return c.Next()
	})
	app.Use(RateLimit("transitions", 1, time.Minute))
	app.Post("/t", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/t?user=1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/t?user=1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/t?user=2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
