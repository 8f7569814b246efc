package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// TransactionFilter narrows fee transaction listings.
type TransactionFilter struct {
	Page            int
	PageSize        int
	StudentID       uint
	CourseID        uint
	TransactionType string
	PaymentStatus   string
}

// SalaryFilter narrows salary listings.
type SalaryFilter struct {
	TeacherID     uint
	PaymentStatus string
	Month         *time.Time
}

// RevenueByType is completed revenue grouped by transaction type.
type RevenueByType struct {
	TransactionType string
	Total           decimal.Decimal
	Count           int64
}

// PaymentTotals aggregates the ledger for the payment summary.
type PaymentTotals struct {
	TotalRevenue     decimal.Decimal
	MonthlyRevenue   decimal.Decimal
	PendingCount     int64
	PendingAmount    decimal.Decimal
	TransactionCount int64
	ByType           []RevenueByType
}

// FinanceRepository persists fee transactions and teacher salaries.
type FinanceRepository interface {
	CreateTransaction(ctx context.Context, txn *models.FeeTransaction) error
	GetTransaction(ctx context.Context, id uint) (models.FeeTransaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.FeeTransaction, int64, error)
	TransitionTransaction(ctx context.Context, id uint, status string) (models.FeeTransaction, error)
	Totals(ctx context.Context, monthStart time.Time) (PaymentTotals, error)

	CreateSalary(ctx context.Context, salary *models.TeacherSalary) error
	GetSalary(ctx context.Context, id uint) (models.TeacherSalary, error)
	UpdateSalary(ctx context.Context, salary *models.TeacherSalary) error
	MarkSalaryPaid(ctx context.Context, id uint, method string, paidAt time.Time) (models.TeacherSalary, error)
	ListSalaries(ctx context.Context, filter SalaryFilter) ([]models.TeacherSalary, error)
}

type financeRepository struct {
	db *gorm.DB
}

// NewFinanceRepository instantiates a GORM-backed repository.
func NewFinanceRepository(db *gorm.DB) FinanceRepository {
	return &financeRepository{db: db}
}

func (r *financeRepository) CreateTransaction(ctx context.Context, txn *models.FeeTransaction) error {
	return r.db.WithContext(ctx).Omit("Student").Create(txn).Error
}

func (r *financeRepository) GetTransaction(ctx context.Context, id uint) (models.FeeTransaction, error) {
	var txn models.FeeTransaction
	if err := r.db.WithContext(ctx).Preload("Student").First(&txn, id).Error; err != nil {
		return models.FeeTransaction{}, err
	}
	return txn, nil
}

func (r *financeRepository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.FeeTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.FeeTransaction{})
	if filter.StudentID != 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.CourseID != 0 {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.TransactionType != "" {
		query = query.Where("transaction_type = ?", filter.TransactionType)
	}
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.FeeTransaction
	if err := paginate(query, filter.Page, filter.PageSize).
		Preload("Student").
		Order("transaction_date DESC").
		Order("id DESC").
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// TransitionTransaction moves a pending transaction to a terminal status.
func (r *financeRepository) TransitionTransaction(ctx context.Context, id uint, status string) (models.FeeTransaction, error) {
	var txn models.FeeTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&txn, id).Error; err != nil {
			return err
		}
		result := tx.Model(&models.FeeTransaction{}).
			Where("id = ? AND payment_status = ?", id, models.PaymentPending).
			Update("payment_status", status)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}
		txn.PaymentStatus = status
		return nil
	})
	if err != nil {
		return models.FeeTransaction{}, err
	}
	return txn, nil
}

func (r *financeRepository) Totals(ctx context.Context, monthStart time.Time) (PaymentTotals, error) {
	var totals PaymentTotals
	db := r.db.WithContext(ctx)

	var err error
	if totals.TotalRevenue, err = sumCompleted(db, time.Time{}, time.Time{}); err != nil {
		return PaymentTotals{}, err
	}
	if totals.MonthlyRevenue, err = sumCompleted(db, monthStart, monthStart.AddDate(0, 1, 0)); err != nil {
		return PaymentTotals{}, err
	}

	if err := db.Model(&models.FeeTransaction{}).
		Select("COUNT(*), COALESCE(SUM(amount), 0)").
		Where("payment_status = ?", models.PaymentPending).
		Row().Scan(&totals.PendingCount, &totals.PendingAmount); err != nil {
		return PaymentTotals{}, err
	}
	if err := db.Model(&models.FeeTransaction{}).Count(&totals.TransactionCount).Error; err != nil {
		return PaymentTotals{}, err
	}

	rows, err := db.Model(&models.FeeTransaction{}).
		Select("transaction_type, COALESCE(SUM(amount), 0), COUNT(*)").
		Where("payment_status = ?", models.PaymentCompleted).
		Group("transaction_type").
		Order("transaction_type ASC").
		Rows()
	if err != nil {
		return PaymentTotals{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var item RevenueByType
		if err := rows.Scan(&item.TransactionType, &item.Total, &item.Count); err != nil {
			return PaymentTotals{}, err
		}
		totals.ByType = append(totals.ByType, item)
	}
	return totals, rows.Err()
}

// sumCompleted totals completed revenue with transaction_date in [from, to). Zero bounds are open.
func sumCompleted(db *gorm.DB, from, to time.Time) (decimal.Decimal, error) {
	query := db.Model(&models.FeeTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payment_status = ?", models.PaymentCompleted)
	if !from.IsZero() {
		query = query.Where("transaction_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("transaction_date < ?", to)
	}

	var total decimal.Decimal
	if err := query.Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *financeRepository) CreateSalary(ctx context.Context, salary *models.TeacherSalary) error {
	if err := r.db.WithContext(ctx).Omit("Teacher").Create(salary).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateActive
		}
		return err
	}
	return nil
}

func (r *financeRepository) GetSalary(ctx context.Context, id uint) (models.TeacherSalary, error) {
	var salary models.TeacherSalary
	if err := r.db.WithContext(ctx).Preload("Teacher").First(&salary, id).Error; err != nil {
		return models.TeacherSalary{}, err
	}
	return salary, nil
}

// UpdateSalary rewrites an unpaid salary. Paid rows are left untouched.
func (r *financeRepository) UpdateSalary(ctx context.Context, salary *models.TeacherSalary) error {
	salary.RecomputeTotal()
	result := r.db.WithContext(ctx).
		Model(&models.TeacherSalary{}).
		Where("id = ? AND payment_status <> ?", salary.ID, models.PaymentPaid).
		Updates(map[string]interface{}{
			"base_salary":  salary.BaseSalary,
			"bonus":        salary.Bonus,
			"deductions":   salary.Deductions,
			"total_salary": salary.TotalSalary,
			"notes":        salary.Notes,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// MarkSalaryPaid flips an unpaid salary to paid exactly once.
func (r *financeRepository) MarkSalaryPaid(ctx context.Context, id uint, method string, paidAt time.Time) (models.TeacherSalary, error) {
	var salary models.TeacherSalary
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&salary, id).Error; err != nil {
			return err
		}
		result := tx.Model(&models.TeacherSalary{}).
			Where("id = ? AND payment_status <> ?", id, models.PaymentPaid).
			Updates(map[string]interface{}{
				"payment_status": models.PaymentPaid,
				"payment_date":   paidAt,
				"payment_method": method,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}
		salary.PaymentStatus = models.PaymentPaid
		salary.PaymentDate = &paidAt
		salary.PaymentMethod = method
		return nil
	})
	if err != nil {
		return models.TeacherSalary{}, err
	}
	return salary, nil
}

func (r *financeRepository) ListSalaries(ctx context.Context, filter SalaryFilter) ([]models.TeacherSalary, error) {
	query := r.db.WithContext(ctx).Model(&models.TeacherSalary{}).Preload("Teacher")
	if filter.TeacherID != 0 {
		query = query.Where("teacher_id = ?", filter.TeacherID)
	}
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.Month != nil {
		query = query.Where("month = ?", models.MonthStart(*filter.Month))
	}

	var salaries []models.TeacherSalary
	if err := query.Order("month DESC").Order("teacher_id ASC").Find(&salaries).Error; err != nil {
		return nil, err
	}
	return salaries, nil
}
