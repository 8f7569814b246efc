package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction types.
const (
	TransactionCourse   = "course"
	TransactionExam     = "exam"
	TransactionMaterial = "material"
	TransactionOther    = "other"
)

// Payment statuses shared by transactions and salaries.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentPaid      = "paid"
)

// Payment methods.
const (
	MethodCreditCard   = "credit_card"
	MethodDebitCard    = "debit_card"
	MethodBankTransfer = "bank_transfer"
	MethodCash         = "cash"
	MethodOnline       = "online"
)

// FeeTransaction records money owed or paid by a student.
type FeeTransaction struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Reference       string          `gorm:"size:64;uniqueIndex;not null" json:"reference"`
	StudentID       uint            `gorm:"not null;index" json:"student_id"`
	Student         *User           `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	CourseID        *uint           `gorm:"index" json:"course_id"`
	TransactionType string          `gorm:"size:20;not null;index" json:"transaction_type"`
	Amount          decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	PaymentStatus   string          `gorm:"size:20;not null;index" json:"payment_status"`
	PaymentMethod   string          `gorm:"size:20;not null" json:"payment_method"`
	Description     string          `gorm:"type:text" json:"description"`
	TransactionDate time.Time       `gorm:"not null;index" json:"transaction_date"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TeacherSalary is one month of pay for a teacher.
type TeacherSalary struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TeacherID     uint            `gorm:"not null;uniqueIndex:idx_salary_month" json:"teacher_id"`
	Teacher       *User           `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
	Month         time.Time       `gorm:"not null;uniqueIndex:idx_salary_month" json:"month"`
	BaseSalary    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"base_salary"`
	Bonus         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"bonus"`
	Deductions    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"deductions"`
	TotalSalary   decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_salary"`
	PaymentStatus string          `gorm:"size:20;not null;index" json:"payment_status"`
	PaymentDate   *time.Time      `json:"payment_date"`
	PaymentMethod string          `gorm:"size:20" json:"payment_method"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RecomputeTotal derives total_salary from its components.
func (s *TeacherSalary) RecomputeTotal() {
	s.TotalSalary = s.BaseSalary.Add(s.Bonus).Sub(s.Deductions)
}

// BeforeSave keeps total_salary derived on every write.
func (s *TeacherSalary) BeforeSave(_ *gorm.DB) error {
	s.RecomputeTotal()
	return nil
}

// MonthStart truncates a timestamp to the first instant of its month in UTC.
func MonthStart(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
}
