package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/internlog-api/internal/models"
	"github.com/noah-isme/internlog-api/internal/utils"
)

const (
	localUserID   = "user_id"
	localUserRole = "user_role"
)

// JWTProtected validates HMAC bearer tokens and stores the caller's id and role.
// Tokens are issued elsewhere; both `sub` and `role` claims are required.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get(fiber.HeaderAuthorization)
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		userID, err := subjectFromClaims(claims)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token subject")
		}

		role := roleFromClaims(claims)
		if role == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "token role missing")
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRole, string(role))

		return c.Next()
	}
}

// Actor returns the authenticated caller bound by JWTProtected.
func Actor(c *fiber.Ctx) (uint, models.Role) {
	var id uint
	if value, ok := c.Locals(localUserID).(uint); ok {
		id = value
	}
	var role models.Role
	if value, ok := c.Locals(localUserRole).(string); ok {
		role = models.ParseRole(value)
	}
	return id, role
}

func subjectFromClaims(claims jwt.MapClaims) (uint, error) {
	value, ok := claims["sub"]
	if !ok {
		return 0, fmt.Errorf("subject missing")
	}

	switch v := value.(type) {
	case float64:
		if v <= 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil || parsed == 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}

func roleFromClaims(claims jwt.MapClaims) models.Role {
	switch v := claims["role"].(type) {
	case string:
		return models.ParseRole(v)
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				return models.ParseRole(str)
			}
		}
	}
	return ""
}
