package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/service"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// AttemptHandler serves attempt submission and manual grading.
type AttemptHandler struct {
	service service.AttemptService
	logger  zerolog.Logger
}

// NewAttemptHandler constructs the handler.
func NewAttemptHandler(service service.AttemptService, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service: service,
		logger:  logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// RegisterAttempts binds /attempts routes.
func (h *AttemptHandler) RegisterAttempts(router fiber.Router) {
	router.Get("/me", h.mine)
	router.Get("/:id", h.get)
	router.Post("/:id/submit", h.submit)
}

// RegisterAnswers binds /answers routes.
func (h *AttemptHandler) RegisterAnswers(router fiber.Router) {
	router.Post("/:id/grade", h.grade)
	router.Post("/:id/suggest", h.suggest)
}

func (h *AttemptHandler) mine(c *fiber.Ctx) error {
	attempts, err := h.service.ListMine(requestContext(c), principalFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "attempts", attempts)
}

func (h *AttemptHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	attempt, err := h.service.Get(requestContext(c), principalFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "attempt", attempt)
}

func (h *AttemptHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.SubmitAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	attempt, err := h.service.Submit(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "attempt submitted", attempt)
}

func (h *AttemptHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.GradeAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	attempt, err := h.service.GradeAnswer(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "answer graded", attempt)
}

func (h *AttemptHandler) suggest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	suggestion, err := h.service.SuggestGrade(requestContext(c), principalFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "grading suggestion", suggestion)
}
