package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/internlog-api/internal/lifecycle"
	"github.com/noah-isme/internlog-api/internal/middleware"
	"github.com/noah-isme/internlog-api/internal/repository"
	"github.com/noah-isme/internlog-api/internal/service"
	"github.com/noah-isme/internlog-api/internal/utils"
)

// fieldError is one failed validation rule, reported under `details`.
type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	id, role := middleware.Actor(c)
	return service.Actor{ID: id, Role: role}
}

func userIDStringFromContext(c *fiber.Ctx) string {
	id, _ := middleware.Actor(c)
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) []fieldError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]fieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return details
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are logged and reported as 500.
func writeError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var illegal *lifecycle.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "transition not allowed", fiber.Map{
			"from": string(illegal.From),
			"to":   string(illegal.To),
			"role": string(illegal.Role),
		})
	case errors.Is(err, lifecycle.ErrIllegalTransition), errors.Is(err, lifecycle.ErrUnknownStatus):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, lifecycle.ErrMissingRevisionContent),
		errors.Is(err, lifecycle.ErrMissingRevisionReason),
		errors.Is(err, service.ErrLogContentEmpty),
		errors.Is(err, service.ErrInvalidLogDate),
		errors.Is(err, service.ErrInvalidHistoryLimit),
		errors.Is(err, service.ErrAttachmentRequired),
		errors.Is(err, service.ErrAttachmentTypeNotAllowed),
		errors.Is(err, service.ErrNotificationUserRequired):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAttachmentTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, repository.ErrConcurrentModification):
		return utils.SendError(c, fiber.StatusConflict, "log was modified concurrently, retry the request")
	case errors.Is(err, service.ErrLogNotEditable),
		errors.Is(err, service.ErrContentLockedForRevision),
		errors.Is(err, lifecycle.ErrStaleRevisionContent):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrLogNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "resource not found")
	case errors.Is(err, service.ErrLogForbidden), errors.Is(err, service.ErrProgressForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
