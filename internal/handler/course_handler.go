package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/middleware"
	"github.com/noah-isme/eduportal-api/internal/service"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// CourseHandler serves the catalog, weekly outlines and per-course enrollment actions.
type CourseHandler struct {
	courses     service.CourseService
	enrollments service.EnrollmentService
	progress    service.ProgressService
	logger      zerolog.Logger
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(courses service.CourseService, enrollments service.EnrollmentService, progress service.ProgressService, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		courses:     courses,
		enrollments: enrollments,
		progress:    progress,
		logger:      logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register binds course routes.
func (h *CourseHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", middleware.WithAuth(h.create, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Delete("/:id", middleware.WithAuth(h.delete, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))

	router.Post("/:id/enroll", h.enroll)
	router.Post("/:id/withdraw", h.withdraw)
	router.Post("/:id/rating", h.rate)
	router.Get("/:id/students", h.students)
	router.Get("/:id/progress-summary", h.progressSummary)

	router.Get("/:id/weeks", h.listWeeks)
	router.Post("/:id/weeks", middleware.WithAuth(h.addWeek, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Patch("/:id/weeks/:week", middleware.WithAuth(h.updateWeek, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Delete("/:id/weeks/:week", middleware.WithAuth(h.deleteWeek, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *CourseHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return badRequest(c, err)
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return badRequest(c, err)
	}
	teacherID, err := parseQueryUint(c, "teacher_id")
	if err != nil {
		return badRequest(c, err)
	}
	activeOnly, err := parseQueryBool(c, "active")
	if err != nil {
		return badRequest(c, err)
	}

	req := dto.CourseListRequest{
		Page:       page,
		PageSize:   pageSize,
		Search:     strings.TrimSpace(c.Query("search")),
		Difficulty: strings.TrimSpace(c.Query("difficulty")),
		TeacherID:  teacherID,
		ActiveOnly: activeOnly == nil || *activeOnly,
	}

	result, err := h.courses.List(requestContext(c), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.OK(c, result.Items, "courses", result.Pagination)
}

func (h *CourseHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	course, err := h.courses.Get(requestContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "course", course)
}

func (h *CourseHandler) create(c *fiber.Ctx) error {
	var payload dto.CourseCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	course, err := h.courses.Create(requestContext(c), principalFromContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "course created", course)
}

func (h *CourseHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.CourseUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	course, err := h.courses.Update(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "course updated", course)
}

func (h *CourseHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	if err := h.courses.Delete(requestContext(c), principalFromContext(c), id); err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// enroll accepts an optional student_id so staff can enroll on a student's behalf.
func (h *CourseHandler) enroll(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.EnrollRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
		}
	}
	enrollment, err := h.enrollments.Enroll(requestContext(c), principalFromContext(c), id, payload.StudentID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "enrolled", enrollment)
}

func (h *CourseHandler) withdraw(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.EnrollRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
		}
	}
	enrollment, err := h.enrollments.Withdraw(requestContext(c), principalFromContext(c), id, payload.StudentID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "withdrawn", enrollment)
}

func (h *CourseHandler) rate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.CourseRatingRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	enrollment, err := h.courses.Rate(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "rating saved", enrollment)
}

func (h *CourseHandler) students(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	roster, err := h.courses.ListStudents(requestContext(c), principalFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "course students", roster)
}

func (h *CourseHandler) progressSummary(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	summary, err := h.progress.Summary(requestContext(c), principalFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "progress summary", summary)
}

func (h *CourseHandler) listWeeks(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	weeks, err := h.courses.ListWeeks(requestContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "weekly details", weeks)
}

func (h *CourseHandler) addWeek(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.WeeklyDetailRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	week, err := h.courses.AddWeek(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "weekly detail created", week)
}

func (h *CourseHandler) updateWeek(c *fiber.Ctx) error {
	id, week, err := courseWeekParams(c)
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.WeeklyDetailRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	updated, err := h.courses.UpdateWeek(requestContext(c), principalFromContext(c), id, week, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "weekly detail updated", updated)
}

func (h *CourseHandler) deleteWeek(c *fiber.Ctx) error {
	id, week, err := courseWeekParams(c)
	if err != nil {
		return badRequest(c, err)
	}
	if err := h.courses.DeleteWeek(requestContext(c), principalFromContext(c), id, week); err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func courseWeekParams(c *fiber.Ctx) (uint, int, error) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return 0, 0, err
	}
	week, err := strconv.Atoi(strings.TrimSpace(c.Params("week")))
	if err != nil || week < 1 {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "invalid week")
	}
	return id, week, nil
}
