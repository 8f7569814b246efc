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

// FinanceHandler serves the fee ledger and teacher salaries.
type FinanceHandler struct {
	service service.FinanceService
	logger  zerolog.Logger
}

// NewFinanceHandler constructs the handler.
func NewFinanceHandler(service service.FinanceService, logger zerolog.Logger) *FinanceHandler {
	return &FinanceHandler{
		service: service,
		logger:  logger.With().Str("component", "finance_handler").Logger(),
	}
}

// RegisterTransactions binds /transactions routes.
func (h *FinanceHandler) RegisterTransactions(router fiber.Router) {
	router.Get("/", h.listTransactions)
	router.Post("/", middleware.WithAuth(h.createTransaction, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
	router.Get("/summary", h.summary)
	router.Patch("/:id/status", middleware.WithAuth(h.updateStatus, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
}

// RegisterSalaries binds /salaries routes.
func (h *FinanceHandler) RegisterSalaries(router fiber.Router) {
	router.Get("/", h.listSalaries)
	router.Post("/", middleware.WithAuth(h.createSalary, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
	router.Patch("/:id", middleware.WithAuth(h.updateSalary, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
	router.Post("/:id/mark-paid", middleware.WithAuth(h.markPaid, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
}

func (h *FinanceHandler) listTransactions(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return badRequest(c, err)
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return badRequest(c, err)
	}
	studentID, err := parseQueryUint(c, "student_id")
	if err != nil {
		return badRequest(c, err)
	}

	result, err := h.service.ListTransactions(requestContext(c), principalFromContext(c), dto.TransactionListRequest{
		Page:            page,
		PageSize:        pageSize,
		StudentID:       studentID,
		PaymentStatus:   strings.TrimSpace(c.Query("payment_status")),
		TransactionType: strings.TrimSpace(c.Query("transaction_type")),
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.OK(c, result.Items, "transactions", result.Pagination)
}

func (h *FinanceHandler) createTransaction(c *fiber.Ctx) error {
	var payload dto.TransactionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	tx, err := h.service.CreateTransaction(requestContext(c), principalFromContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "transaction recorded", tx)
}

func (h *FinanceHandler) updateStatus(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.TransactionStatusRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	tx, err := h.service.UpdateTransactionStatus(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "transaction updated", tx)
}

func (h *FinanceHandler) summary(c *fiber.Ctx) error {
	summary, err := h.service.PaymentSummary(requestContext(c), principalFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "payment summary", summary)
}

func (h *FinanceHandler) listSalaries(c *fiber.Ctx) error {
	teacherID, err := parseQueryUint(c, "teacher_id")
	if err != nil {
		return badRequest(c, err)
	}
	salaries, err := h.service.ListSalaries(requestContext(c), principalFromContext(c), dto.SalaryListRequest{
		TeacherID:     teacherID,
		PaymentStatus: strings.TrimSpace(c.Query("payment_status")),
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "salaries", salaries)
}

func (h *FinanceHandler) createSalary(c *fiber.Ctx) error {
	var payload dto.SalaryCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	salary, err := h.service.CreateSalary(requestContext(c), principalFromContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "salary recorded", salary)
}

func (h *FinanceHandler) updateSalary(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.SalaryUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	salary, err := h.service.UpdateSalary(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "salary updated", salary)
}

func (h *FinanceHandler) markPaid(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.SalaryPaymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
		}
	}
	salary, err := h.service.MarkSalaryPaid(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "salary paid", salary)
}
