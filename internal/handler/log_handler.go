package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/internlog-api/internal/dto"
	"github.com/noah-isme/internlog-api/internal/service"
	"github.com/noah-isme/internlog-api/internal/utils"
)

// LogHandler exposes daily log editing and lifecycle endpoints.
type LogHandler struct {
	logs     service.LogService
	activity service.ActivityService
	logger   zerolog.Logger
}

// LogRoutesConfig carries the per-route middleware the router applies.
type LogRoutesConfig struct {
	StudentOnly     fiber.Handler
	Reviewers       fiber.Handler
	TransitionLimit fiber.Handler
}

// NewLogHandler constructs the daily log handler.
func NewLogHandler(logs service.LogService, activity service.ActivityService, logger zerolog.Logger) *LogHandler {
	return &LogHandler{
		logs:     logs,
		activity: activity,
		logger:   logger.With().Str("component", "log_handler").Logger(),
	}
}

// Register binds the log routes. Nil middleware in cfg is skipped.
func (h *LogHandler) Register(router fiber.Router, cfg LogRoutesConfig) {
	router.Post("/", chain(h.create, cfg.StudentOnly)...)
	router.Get("/", h.list)
	router.Get("/:id", h.get)
	router.Patch("/:id", chain(h.update, cfg.StudentOnly)...)
	router.Put("/:id/self-assessment", chain(h.selfAssessment, cfg.StudentOnly)...)
	router.Post("/:id/attachments", chain(h.uploadAttachment, cfg.StudentOnly)...)
	router.Get("/:id/transitions", h.availableTransitions)
	router.Post("/:id/transitions", chain(h.transition, cfg.Reviewers, cfg.TransitionLimit)...)
	router.Get("/:id/events", h.events)
	router.Get("/:id/activity", h.listActivity)
}

// chain returns the non-nil middleware followed by final, in a fresh slice per route.
func chain(final fiber.Handler, middleware ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(middleware)+1)
	for _, handler := range middleware {
		if handler != nil {
			out = append(out, handler)
		}
	}
	return append(out, final)
}

func (h *LogHandler) create(c *fiber.Ctx) error {
	var payload dto.LogCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	log, err := h.logs.Create(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendCreated(c, "daily log created", log)
}

func (h *LogHandler) list(c *fiber.Ctx) error {
	var filter dto.LogFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	logs, err := h.logs.List(requestContext(c), actorFromContext(c), filter)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "daily logs retrieved", logs)
}

func (h *LogHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	log, err := h.logs.Get(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "daily log retrieved", log)
}

func (h *LogHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.LogUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	log, err := h.logs.Update(requestContext(c), actorFromContext(c), id, payload)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "daily log updated", log)
}

func (h *LogHandler) selfAssessment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SelfAssessmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	log, err := h.logs.SetSelfAssessment(requestContext(c), actorFromContext(c), id, payload)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "self-assessment saved", log)
}

func (h *LogHandler) uploadAttachment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	attachment, err := h.logs.AddAttachment(requestContext(c), actorFromContext(c), id, file)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("log_id", id).
		Str("kind", attachment.Kind).
		Int64("size", attachment.SizeBytes).
		Msg("attachment stored")

	return utils.SendCreated(c, "attachment uploaded", attachment)
}

func (h *LogHandler) availableTransitions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	available, err := h.logs.AvailableTransitions(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "available transitions", available)
}

func (h *LogHandler) transition(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TransitionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	actor := actorFromContext(c)
	result, err := h.logs.Transition(requestContext(c), actor, id, payload)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("log_id", id).
		Str("role", string(actor.Role)).
		Str("status", result.Log.Status).
		Int("xp_delta", result.XPDelta).
		Msg("log transitioned")

	return utils.SendSuccess(c, "log transitioned", result)
}

func (h *LogHandler) events(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	events, err := h.logs.Events(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "log events retrieved", events)
}

func (h *LogHandler) listActivity(c *fiber.Ctx) error {
	if h.activity == nil {
		return utils.SendError(c, fiber.StatusNotFound, "activity log disabled")
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var query dto.ActivityListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	page, err := h.activity.ListForLog(requestContext(c), actorFromContext(c), id, query)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "activity retrieved", page)
}
