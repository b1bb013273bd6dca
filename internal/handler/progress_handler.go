package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/internlog-api/internal/dto"
	"github.com/noah-isme/internlog-api/internal/service"
	"github.com/noah-isme/internlog-api/internal/utils"
)

// ProgressHandler serves student gamification state and the static catalogs.
type ProgressHandler struct {
	service service.ProgressService
	logger  zerolog.Logger
}

// NewProgressHandler constructs a progress handler.
func NewProgressHandler(service service.ProgressService, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		service: service,
		logger:  logger.With().Str("component", "progress_handler").Logger(),
	}
}

// RegisterStudents binds per-student routes. `me` resolves to the caller.
func (h *ProgressHandler) RegisterStudents(router fiber.Router) {
	router.Get("/:id/progress", h.progress)
	router.Get("/:id/xp-history", h.history)
}

// RegisterCatalog binds the level table and badge catalog routes.
func (h *ProgressHandler) RegisterCatalog(router fiber.Router) {
	router.Get("/levels", h.levels)
	router.Get("/badges", h.badges)
}

func (h *ProgressHandler) progress(c *fiber.Ctx) error {
	actor := actorFromContext(c)
	studentID, err := studentParam(c, actor)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	progress, err := h.service.GetProgress(requestContext(c), actor, studentID)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "progress retrieved", progress)
}

func (h *ProgressHandler) history(c *fiber.Ctx) error {
	actor := actorFromContext(c)
	studentID, err := studentParam(c, actor)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	events, err := h.service.History(requestContext(c), actor, studentID, dto.XPHistoryQuery{Limit: limit})
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "xp history retrieved", events)
}

func (h *ProgressHandler) levels(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "levels retrieved", h.service.Levels())
}

func (h *ProgressHandler) badges(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "badges retrieved", h.service.Badges())
}

func studentParam(c *fiber.Ctx, actor service.Actor) (uint, error) {
	if strings.EqualFold(strings.TrimSpace(c.Params("id")), "me") {
		if actor.ID == 0 {
			return 0, errors.New("user not authenticated")
		}
		return actor.ID, nil
	}
	return parseUintParam(c, "id")
}
