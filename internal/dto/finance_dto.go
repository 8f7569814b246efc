package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// TransactionCreateRequest records a fee owed by a student.
type TransactionCreateRequest struct {
	StudentID       uint            `json:"student_id" validate:"required"`
	CourseID        *uint           `json:"course_id"`
	TransactionType string          `json:"transaction_type" validate:"required,oneof=course exam material other"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=credit_card debit_card bank_transfer cash online"`
	Description     string          `json:"description" validate:"omitempty,max=2000"`
	PaymentStatus   string          `json:"payment_status" validate:"omitempty,oneof=pending completed"`
}

// TransactionStatusRequest moves a pending transaction to a final state.
type TransactionStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=completed failed"`
}

// TransactionListRequest filters the ledger.
type TransactionListRequest struct {
	Page            int
	PageSize        int
	StudentID       uint
	PaymentStatus   string
	TransactionType string
}

// TransactionResponse serialises a fee transaction.
type TransactionResponse struct {
	ID              uint            `json:"id"`
	Reference       string          `json:"reference"`
	StudentID       uint            `json:"student_id"`
	StudentName     string          `json:"student_name,omitempty"`
	CourseID        *uint           `json:"course_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentStatus   string          `json:"payment_status"`
	PaymentMethod   string          `json:"payment_method"`
	Description     string          `json:"description"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// TransactionListResponse wraps a paginated ledger listing.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Pagination PaginationMeta        `json:"pagination"`
}

// NewTransactionResponse converts a fee transaction.
func NewTransactionResponse(tx models.FeeTransaction) TransactionResponse {
	response := TransactionResponse{
		ID:              tx.ID,
		Reference:       tx.Reference,
		StudentID:       tx.StudentID,
		CourseID:        tx.CourseID,
		TransactionType: tx.TransactionType,
		Amount:          tx.Amount,
		PaymentStatus:   tx.PaymentStatus,
		PaymentMethod:   tx.PaymentMethod,
		Description:     tx.Description,
		TransactionDate: tx.TransactionDate,
	}
	if tx.Student != nil {
		response.StudentName = tx.Student.FullName()
	}
	return response
}

// PaymentSummaryResponse aggregates the ledger.
type PaymentSummaryResponse struct {
	TotalRevenue     decimal.Decimal            `json:"total_revenue"`
	MonthlyRevenue   decimal.Decimal            `json:"monthly_revenue"`
	PendingPayments  int64                      `json:"pending_payments"`
	PendingAmount    decimal.Decimal            `json:"pending_amount"`
	RevenueByType    map[string]decimal.Decimal `json:"revenue_by_type"`
	TransactionCount int64                      `json:"transaction_count"`
}

// SalaryCreateRequest records a month of teacher pay.
type SalaryCreateRequest struct {
	TeacherID     uint            `json:"teacher_id" validate:"required"`
	Month         time.Time       `json:"month" validate:"required"`
	BaseSalary    decimal.Decimal `json:"base_salary"`
	Bonus         decimal.Decimal `json:"bonus"`
	Deductions    decimal.Decimal `json:"deductions"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=credit_card debit_card bank_transfer cash online"`
	Notes         string          `json:"notes" validate:"omitempty,max=2000"`
}

// SalaryUpdateRequest patches an unpaid salary record.
type SalaryUpdateRequest struct {
	BaseSalary    *decimal.Decimal `json:"base_salary"`
	Bonus         *decimal.Decimal `json:"bonus"`
	Deductions    *decimal.Decimal `json:"deductions"`
	PaymentMethod *string          `json:"payment_method" validate:"omitempty,oneof=credit_card debit_card bank_transfer cash online"`
	Notes         *string          `json:"notes" validate:"omitempty,max=2000"`
}

// SalaryListRequest filters salary records.
type SalaryListRequest struct {
	TeacherID     uint
	PaymentStatus string
}

// SalaryResponse serialises a salary record.
type SalaryResponse struct {
	ID            uint            `json:"id"`
	TeacherID     uint            `json:"teacher_id"`
	TeacherName   string          `json:"teacher_name,omitempty"`
	Month         string          `json:"month"`
	BaseSalary    decimal.Decimal `json:"base_salary"`
	Bonus         decimal.Decimal `json:"bonus"`
	Deductions    decimal.Decimal `json:"deductions"`
	TotalSalary   decimal.Decimal `json:"total_salary"`
	PaymentStatus string          `json:"payment_status"`
	PaymentDate   *time.Time      `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes"`
}

// NewSalaryResponse converts a salary record.
func NewSalaryResponse(salary models.TeacherSalary) SalaryResponse {
	response := SalaryResponse{
		ID:            salary.ID,
		TeacherID:     salary.TeacherID,
		Month:         salary.Month.UTC().Format("2006-01"),
		BaseSalary:    salary.BaseSalary,
		Bonus:         salary.Bonus,
		Deductions:    salary.Deductions,
		TotalSalary:   salary.TotalSalary,
		PaymentStatus: salary.PaymentStatus,
		PaymentDate:   salary.PaymentDate,
		PaymentMethod: salary.PaymentMethod,
		Notes:         salary.Notes,
	}
	if salary.Teacher != nil {
		response.TeacherName = salary.Teacher.FullName()
	}
	return response
}

// SalaryPaymentRequest optionally overrides the payment method when settling a salary.
type SalaryPaymentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=credit_card debit_card bank_transfer cash online"`
}
