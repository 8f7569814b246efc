package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/observability"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

// ErrSalaryImmutable is returned when editing a salary that has been paid.
var ErrSalaryImmutable = newDomainError(ErrConflict, "paid salary records cannot be modified")

// FinanceService manages the fee ledger and teacher payroll.
type FinanceService interface {
	CreateTransaction(ctx context.Context, principal policy.Principal, payload dto.TransactionCreateRequest) (dto.TransactionResponse, error)
	UpdateTransactionStatus(ctx context.Context, principal policy.Principal, id uint, payload dto.TransactionStatusRequest) (dto.TransactionResponse, error)
	ListTransactions(ctx context.Context, principal policy.Principal, req dto.TransactionListRequest) (dto.TransactionListResponse, error)
	PaymentSummary(ctx context.Context, principal policy.Principal) (dto.PaymentSummaryResponse, error)
	CreateSalary(ctx context.Context, principal policy.Principal, payload dto.SalaryCreateRequest) (dto.SalaryResponse, error)
	UpdateSalary(ctx context.Context, principal policy.Principal, id uint, payload dto.SalaryUpdateRequest) (dto.SalaryResponse, error)
	MarkSalaryPaid(ctx context.Context, principal policy.Principal, id uint, payload dto.SalaryPaymentRequest) (dto.SalaryResponse, error)
	ListSalaries(ctx context.Context, principal policy.Principal, req dto.SalaryListRequest) ([]dto.SalaryResponse, error)
}

type financeService struct {
	finance   repository.FinanceRepository
	users     repository.UserRepository
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewFinanceService wires the finance service.
func NewFinanceService(finance repository.FinanceRepository, users repository.UserRepository, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) FinanceService {
	return &financeService{
		finance:   finance,
		users:     users,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "finance_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateTransaction records a pending fee. Only cash payments may be captured as completed on entry.
func (s *financeService) CreateTransaction(ctx context.Context, principal policy.Principal, payload dto.TransactionCreateRequest) (dto.TransactionResponse, error) {
	if err := authorize(policy.CanManageFinance(principal)); err != nil {
		return dto.TransactionResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.TransactionResponse{}, err
	}
	if !payload.Amount.IsPositive() {
		return dto.TransactionResponse{}, validationError("amount must be greater than zero")
	}

	status := models.PaymentPending
	if payload.PaymentStatus == models.PaymentCompleted {
		if payload.PaymentMethod != models.MethodCash {
			return dto.TransactionResponse{}, validationError("only cash payments can be recorded as completed")
		}
		status = models.PaymentCompleted
	}

	if _, err := s.requireUser(ctx, payload.StudentID, models.RoleStudent); err != nil {
		return dto.TransactionResponse{}, err
	}

	txn := models.FeeTransaction{
		Reference:       uuid.NewString(),
		StudentID:       payload.StudentID,
		CourseID:        payload.CourseID,
		TransactionType: payload.TransactionType,
		Amount:          payload.Amount.Round(2),
		PaymentStatus:   status,
		PaymentMethod:   payload.PaymentMethod,
		Description:     s.sanitizer.Sanitize(payload.Description),
		TransactionDate: s.now(),
	}
	if err := s.finance.CreateTransaction(ctx, &txn); err != nil {
		return dto.TransactionResponse{}, unexpected("create transaction", err)
	}
	observability.LedgerWrites().WithLabelValues("transaction").Inc()

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    principal.ID,
		ActorRole:  string(principal.Role),
		Action:     ActionTransaction,
		EntityType: "fee_transaction",
		EntityID:   uintPtr(txn.ID),
		Metadata:   map[string]interface{}{"student_id": txn.StudentID, "amount": txn.Amount.String(), "status": txn.PaymentStatus},
	})
	s.logger.Info().Uint("transaction_id", txn.ID).Str("reference", txn.Reference).Str("status", txn.PaymentStatus).Msg("fee transaction recorded")

	return dto.NewTransactionResponse(txn), nil
}

func (s *financeService) UpdateTransactionStatus(ctx context.Context, principal policy.Principal, id uint, payload dto.TransactionStatusRequest) (dto.TransactionResponse, error) {
	if err := authorize(policy.CanManageFinance(principal)); err != nil {
		return dto.TransactionResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.TransactionResponse{}, err
	}

	txn, err := s.finance.TransitionTransaction(ctx, id, payload.PaymentStatus)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return dto.TransactionResponse{}, ErrInvalidTransition
		}
		return dto.TransactionResponse{}, unexpected("update transaction", translateNotFound(err, ErrTransactionNotFound))
	}
	observability.LedgerWrites().WithLabelValues("transaction_status").Inc()
	s.logger.Info().Uint("transaction_id", txn.ID).Str("status", txn.PaymentStatus).Msg("fee transaction settled")

	return dto.NewTransactionResponse(txn), nil
}

// ListTransactions pins students to their own ledger entries.
func (s *financeService) ListTransactions(ctx context.Context, principal policy.Principal, req dto.TransactionListRequest) (dto.TransactionListResponse, error) {
	if principal.IsStudent() && req.StudentID == 0 {
		req.StudentID = principal.ID
	}
	if !principal.IsAdmin() {
		if err := authorize(policy.CanViewTransactions(principal, req.StudentID)); err != nil {
			return dto.TransactionListResponse{}, err
		}
	}

	page, pageSize := normalizePage(req.Page, req.PageSize)
	items, total, err := s.finance.ListTransactions(ctx, repository.TransactionFilter{
		Page:            page,
		PageSize:        pageSize,
		StudentID:       req.StudentID,
		TransactionType: strings.TrimSpace(req.TransactionType),
		PaymentStatus:   strings.TrimSpace(req.PaymentStatus),
	})
	if err != nil {
		return dto.TransactionListResponse{}, unexpected("list transactions", err)
	}

	responses := make([]dto.TransactionResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, dto.NewTransactionResponse(item))
	}
	return dto.TransactionListResponse{
		Items:      responses,
		Pagination: dto.NewPaginationMeta(page, pageSize, total),
	}, nil
}

func (s *financeService) PaymentSummary(ctx context.Context, principal policy.Principal) (dto.PaymentSummaryResponse, error) {
	if err := authorize(policy.CanManageFinance(principal)); err != nil {
		return dto.PaymentSummaryResponse{}, err
	}

	totals, err := s.finance.Totals(ctx, models.MonthStart(s.now()))
	if err != nil {
		return dto.PaymentSummaryResponse{}, unexpected("payment totals", err)
	}

	byType := make(map[string]decimal.Decimal, len(totals.ByType))
	for _, item := range totals.ByType {
		byType[item.TransactionType] = item.Total
	}
	return dto.PaymentSummaryResponse{
		TotalRevenue:     totals.TotalRevenue,
		MonthlyRevenue:   totals.MonthlyRevenue,
		PendingPayments:  totals.PendingCount,
		PendingAmount:    totals.PendingAmount,
		RevenueByType:    byType,
		TransactionCount: totals.TransactionCount,
	}, nil
}

func (s *financeService) CreateSalary(ctx context.Context, principal policy.Principal, payload dto.SalaryCreateRequest) (dto.SalaryResponse, error) {
	if err := authorize(policy.CanManageFinance(principal)); err != nil {
		return dto.SalaryResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.SalaryResponse{}, err
	}

	teacher, err := s.requireUser(ctx, payload.TeacherID, models.RoleTeacher)
	if err != nil {
		return dto.SalaryResponse{}, err
	}

	method := payload.PaymentMethod
	if method == "" {
		method = models.MethodBankTransfer
	}
	salary := models.TeacherSalary{
		TeacherID:     teacher.ID,
		Month:         models.MonthStart(payload.Month),
		BaseSalary:    payload.BaseSalary.Round(2),
		Bonus:         payload.Bonus.Round(2),
		Deductions:    payload.Deductions.Round(2),
		PaymentStatus: models.PaymentPending,
		PaymentMethod: method,
		Notes:         s.sanitizer.Sanitize(payload.Notes),
	}
	if err := validateSalary(&salary); err != nil {
		return dto.SalaryResponse{}, err
	}

	if err := s.finance.CreateSalary(ctx, &salary); err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			return dto.SalaryResponse{}, ErrSalaryExists
		}
		return dto.SalaryResponse{}, unexpected("create salary", err)
	}
	observability.LedgerWrites().WithLabelValues("salary").Inc()
	salary.Teacher = &teacher

	return dto.NewSalaryResponse(salary), nil
}

func (s *financeService) UpdateSalary(ctx context.Context, principal policy.Principal, id uint, payload dto.SalaryUpdateRequest) (dto.SalaryResponse, error) {
	if err := authorize(policy.CanManageFinance(principal)); err != nil {
		return dto.SalaryResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.SalaryResponse{}, err
	}

	salary, err := s.finance.GetSalary(ctx, id)
	if err != nil {
		return dto.SalaryResponse{}, unexpected("load salary", translateNotFound(err, ErrSalaryNotFound))
	}
	if salary.PaymentStatus == models.PaymentPaid {
		return dto.SalaryResponse{}, ErrSalaryImmutable
	}

	if payload.BaseSalary != nil {
		salary.BaseSalary = payload.BaseSalary.Round(2)
	}
	if payload.Bonus != nil {
		salary.Bonus = payload.Bonus.Round(2)
	}
	if payload.Deductions != nil {
		salary.Deductions = payload.Deductions.Round(2)
	}
	if payload.PaymentMethod != nil {
		salary.PaymentMethod = *payload.PaymentMethod
	}
	if payload.Notes != nil {
		salary.Notes = s.sanitizer.Sanitize(*payload.Notes)
	}
	if err := validateSalary(&salary); err != nil {
		return dto.SalaryResponse{}, err
	}

	if err := s.finance.UpdateSalary(ctx, &salary); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return dto.SalaryResponse{}, ErrSalaryImmutable
		}
		return dto.SalaryResponse{}, unexpected("update salary", err)
	}
	observability.LedgerWrites().WithLabelValues("salary").Inc()
	return dto.NewSalaryResponse(salary), nil
}

// MarkSalaryPaid settles a salary once. A second call leaves payment_date untouched.
func (s *financeService) MarkSalaryPaid(ctx context.Context, principal policy.Principal, id uint, payload dto.SalaryPaymentRequest) (dto.SalaryResponse, error) {
	if err := authorize(policy.CanManageFinance(principal)); err != nil {
		return dto.SalaryResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.SalaryResponse{}, err
	}

	current, err := s.finance.GetSalary(ctx, id)
	if err != nil {
		return dto.SalaryResponse{}, unexpected("load salary", translateNotFound(err, ErrSalaryNotFound))
	}
	method := payload.PaymentMethod
	if method == "" {
		method = current.PaymentMethod
	}

	salary, err := s.finance.MarkSalaryPaid(ctx, id, method, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return dto.SalaryResponse{}, ErrAlreadyPaid
		}
		return dto.SalaryResponse{}, unexpected("mark salary paid", translateNotFound(err, ErrSalaryNotFound))
	}
	observability.LedgerWrites().WithLabelValues("salary_payment").Inc()
	salary.Teacher = current.Teacher

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    principal.ID,
		ActorRole:  string(principal.Role),
		Action:     ActionSalaryPaid,
		EntityType: "teacher_salary",
		EntityID:   uintPtr(salary.ID),
		Metadata:   map[string]interface{}{"teacher_id": salary.TeacherID, "total": salary.TotalSalary.String()},
	})
	s.logger.Info().Uint("salary_id", salary.ID).Uint("teacher_id", salary.TeacherID).Msg("salary paid")

	return dto.NewSalaryResponse(salary), nil
}

// ListSalaries pins teachers to their own payroll.
func (s *financeService) ListSalaries(ctx context.Context, principal policy.Principal, req dto.SalaryListRequest) ([]dto.SalaryResponse, error) {
	if principal.IsTeacher() && req.TeacherID == 0 {
		req.TeacherID = principal.ID
	}
	if !principal.IsAdmin() {
		if err := authorize(policy.CanViewSalary(principal, req.TeacherID)); err != nil {
			return nil, err
		}
	}

	salaries, err := s.finance.ListSalaries(ctx, repository.SalaryFilter{
		TeacherID:     req.TeacherID,
		PaymentStatus: strings.TrimSpace(req.PaymentStatus),
	})
	if err != nil {
		return nil, unexpected("list salaries", err)
	}

	responses := make([]dto.SalaryResponse, 0, len(salaries))
	for _, salary := range salaries {
		responses = append(responses, dto.NewSalaryResponse(salary))
	}
	return responses, nil
}

func (s *financeService) requireUser(ctx context.Context, id uint, role models.Role) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		err = translateNotFound(err, ErrUserNotFound)
		if errors.Is(err, ErrUserNotFound) {
			return models.User{}, validationError("user %d does not exist", id)
		}
		return models.User{}, unexpected("load user", err)
	}
	if user.Role != role {
		return models.User{}, validationError("user %d is not a %s", id, role)
	}
	return user, nil
}

func validateSalary(salary *models.TeacherSalary) error {
	if salary.BaseSalary.IsNegative() || salary.Bonus.IsNegative() || salary.Deductions.IsNegative() {
		return validationError("salary components must not be negative")
	}
	salary.RecomputeTotal()
	if salary.TotalSalary.IsNegative() {
		return validationError("deductions must not exceed base salary plus bonus")
	}
	return nil
}
