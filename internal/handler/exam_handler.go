package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/middleware"
	"github.com/noah-isme/eduportal-api/internal/service"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// ExamHandler serves exams, their question banks and attempt creation.
type ExamHandler struct {
	exams    service.ExamService
	attempts service.AttemptService
	logger   zerolog.Logger
}

// NewExamHandler constructs the handler.
func NewExamHandler(exams service.ExamService, attempts service.AttemptService, logger zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		exams:    exams,
		attempts: attempts,
		logger:   logger.With().Str("component", "exam_handler").Logger(),
	}
}

// Register binds exam routes.
func (h *ExamHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", middleware.WithAuth(h.create, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Get("/:id", h.get)
	router.Patch("/:id", middleware.WithAuth(h.update, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Delete("/:id", middleware.WithAuth(h.delete, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Post("/:id/questions", middleware.WithAuth(h.addQuestion, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Post("/:id/questions/import", middleware.WithAuth(h.importQuestions, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Post("/:id/attempts", middleware.WithAuth(h.startAttempt, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
	router.Get("/:id/attempts", h.listAttempts)
}

// RegisterQuestions binds question edits, addressed by question id.
func (h *ExamHandler) RegisterQuestions(router fiber.Router) {
	router.Put("/:id", middleware.WithAuth(h.updateQuestion, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Delete("/:id", middleware.WithAuth(h.deleteQuestion, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *ExamHandler) list(c *fiber.Ctx) error {
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil {
		return badRequest(c, err)
	}
	exams, err := h.exams.List(requestContext(c), principalFromContext(c), dto.ExamListRequest{
		CourseID: courseID,
		Status:   strings.ToLower(strings.TrimSpace(c.Query("status"))),
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exams", exams)
}

func (h *ExamHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	exam, err := h.exams.Get(requestContext(c), principalFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exam", exam)
}

func (h *ExamHandler) create(c *fiber.Ctx) error {
	var payload dto.ExamCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	exam, err := h.exams.Create(requestContext(c), principalFromContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam created", exam)
}

func (h *ExamHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.ExamUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	exam, err := h.exams.Update(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exam updated", exam)
}

func (h *ExamHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	if err := h.exams.Delete(requestContext(c), principalFromContext(c), id); err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ExamHandler) addQuestion(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.QuestionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	question, err := h.exams.AddQuestion(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "question added", question)
}

func (h *ExamHandler) updateQuestion(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.QuestionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	question, err := h.exams.UpdateQuestion(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "question updated", question)
}

func (h *ExamHandler) deleteQuestion(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	if err := h.exams.DeleteQuestion(requestContext(c), principalFromContext(c), id); err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// importQuestions hands the raw body to the service, which validates it against the question bank schema.
func (h *ExamHandler) importQuestions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	raw := append([]byte(nil), c.Body()...)
	questions, err := h.exams.ImportQuestions(requestContext(c), principalFromContext(c), id, raw)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "questions imported", questions)
}

func (h *ExamHandler) startAttempt(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	attempt, err := h.attempts.Start(requestContext(c), principalFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attempt started", attempt)
}

func (h *ExamHandler) listAttempts(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	attempts, err := h.attempts.ListForExam(requestContext(c), principalFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "attempts", attempts)
}
