package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/middleware"
	"github.com/noah-isme/eduportal-api/internal/service"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// EnrollmentHandler serves the caller's enrollments and weekly progress records.
type EnrollmentHandler struct {
	enrollments service.EnrollmentService
	progress    service.ProgressService
	logger      zerolog.Logger
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(enrollments service.EnrollmentService, progress service.ProgressService, logger zerolog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollments: enrollments,
		progress:    progress,
		logger:      logger.With().Str("component", "enrollment_handler").Logger(),
	}
}

// RegisterEnrollments binds /enrollments routes.
func (h *EnrollmentHandler) RegisterEnrollments(router fiber.Router) {
	router.Get("/me", h.mine)
}

// RegisterProgress binds /progress routes.
func (h *EnrollmentHandler) RegisterProgress(router fiber.Router) {
	router.Get("/", h.listProgress)
	router.Post("/", middleware.WithAuth(h.recordProgress, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *EnrollmentHandler) mine(c *fiber.Ctx) error {
	enrollments, err := h.enrollments.ListMine(requestContext(c), principalFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "enrollments", enrollments)
}

func (h *EnrollmentHandler) recordProgress(c *fiber.Ctx) error {
	var payload dto.ProgressRecordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	result, err := h.progress.Record(requestContext(c), principalFromContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "progress recorded", result)
}

func (h *EnrollmentHandler) listProgress(c *fiber.Ctx) error {
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil {
		return badRequest(c, err)
	}
	studentID, err := parseQueryUint(c, "student_id")
	if err != nil {
		return badRequest(c, err)
	}
	rows, err := h.progress.List(requestContext(c), principalFromContext(c), dto.ProgressListRequest{
		CourseID:  courseID,
		StudentID: studentID,
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "progress", rows)
}
