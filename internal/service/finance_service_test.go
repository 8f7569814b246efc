package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

func newFinanceFixture(t *testing.T) (*gorm.DB, FinanceService, *recordingActivity) {
	t.Helper()
	db := setupServiceDB(t)
	activity := &recordingActivity{}
	svc := NewFinanceService(repository.NewFinanceRepository(db), repository.NewUserRepository(db), activity, testValidator(), testLogger())
	return db, svc, activity
}

func TestFinanceTransactionLifecycle(t *testing.T) {
	db, svc, activity := newFinanceFixture(t)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	student := createUser(t, db, "student", models.RoleStudent)
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, principalOf(admin), dto.TransactionCreateRequest{
		StudentID:       student.ID,
		TransactionType: models.TransactionExam,
		Amount:          decimal.NewFromInt(40),
		PaymentMethod:   models.MethodOnline,
		PaymentStatus:   models.PaymentCompleted,
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateTransaction(ctx, principalOf(admin), dto.TransactionCreateRequest{
		StudentID:       student.ID,
		TransactionType: models.TransactionExam,
		Amount:          decimal.Zero,
		PaymentMethod:   models.MethodCash,
	})
	require.ErrorIs(t, err, ErrValidation)

	cash, err := svc.CreateTransaction(ctx, principalOf(admin), dto.TransactionCreateRequest{
		StudentID:       student.ID,
		TransactionType: models.TransactionMaterial,
		Amount:          decimal.RequireFromString("15.50"),
		PaymentMethod:   models.MethodCash,
		PaymentStatus:   models.PaymentCompleted,
	})
	require.NoError(t, err)
	require.Equal(t, models.PaymentCompleted, cash.PaymentStatus)
	require.NotEmpty(t, cash.Reference)

	pending, err := svc.CreateTransaction(ctx, principalOf(admin), dto.TransactionCreateRequest{
		StudentID:       student.ID,
		TransactionType: models.TransactionCourse,
		Amount:          decimal.NewFromInt(100),
		PaymentMethod:   models.MethodBankTransfer,
	})
	require.NoError(t, err)
	require.Equal(t, models.PaymentPending, pending.PaymentStatus)

	completed, err := svc.UpdateTransactionStatus(ctx, principalOf(admin), pending.ID, dto.TransactionStatusRequest{PaymentStatus: models.PaymentCompleted})
	require.NoError(t, err)
	require.Equal(t, models.PaymentCompleted, completed.PaymentStatus)

	_, err = svc.UpdateTransactionStatus(ctx, principalOf(admin), pending.ID, dto.TransactionStatusRequest{PaymentStatus: models.PaymentFailed})
	require.ErrorIs(t, err, ErrInvalidTransition)

	summary, err := svc.PaymentSummary(ctx, principalOf(admin))
	require.NoError(t, err)
	require.True(t, summary.TotalRevenue.Equal(decimal.RequireFromString("115.5")))
	require.Equal(t, int64(2), summary.TransactionCount)
	require.Zero(t, summary.PendingPayments)

	require.Contains(t, activity.actions(), ActionTransaction)
}

func TestFinanceStudentsSeeOnlyTheirLedger(t *testing.T) {
	db, svc, _ := newFinanceFixture(t)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	alice := createUser(t, db, "alice", models.RoleStudent)
	bob := createUser(t, db, "bob", models.RoleStudent)
	ctx := context.Background()

	for _, student := range []models.User{alice, bob} {
		_, err := svc.CreateTransaction(ctx, principalOf(admin), dto.TransactionCreateRequest{
			StudentID:       student.ID,
			TransactionType: models.TransactionOther,
			Amount:          decimal.NewFromInt(10),
			PaymentMethod:   models.MethodCash,
		})
		require.NoError(t, err)
	}

	list, err := svc.ListTransactions(ctx, principalOf(alice), dto.TransactionListRequest{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, alice.ID, list.Items[0].StudentID)
	require.Equal(t, int64(1), list.Pagination.TotalItems)

	_, err = svc.ListTransactions(ctx, principalOf(alice), dto.TransactionListRequest{StudentID: bob.ID})
	require.ErrorIs(t, err, ErrPermissionDenied)

	all, err := svc.ListTransactions(ctx, principalOf(admin), dto.TransactionListRequest{})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)

	_, err = svc.PaymentSummary(ctx, principalOf(alice))
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFinanceSalaryPaidOnce(t *testing.T) {
	db, svc, activity := newFinanceFixture(t)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	ctx := context.Background()

	payload := dto.SalaryCreateRequest{
		TeacherID:  teacher.ID,
		Month:      time.Date(2024, time.May, 17, 0, 0, 0, 0, time.UTC),
		BaseSalary: decimal.NewFromInt(3000),
		Bonus:      decimal.NewFromInt(250),
		Deductions: decimal.NewFromInt(100),
	}
	salary, err := svc.CreateSalary(ctx, principalOf(admin), payload)
	require.NoError(t, err)
	require.True(t, salary.TotalSalary.Equal(decimal.NewFromInt(3150)))
	require.Equal(t, models.MethodBankTransfer, salary.PaymentMethod)

	_, err = svc.CreateSalary(ctx, principalOf(admin), payload)
	require.ErrorIs(t, err, ErrSalaryExists)

	bonus := decimal.NewFromInt(500)
	updated, err := svc.UpdateSalary(ctx, principalOf(admin), salary.ID, dto.SalaryUpdateRequest{Bonus: &bonus})
	require.NoError(t, err)
	require.True(t, updated.TotalSalary.Equal(decimal.NewFromInt(3400)))

	paid, err := svc.MarkSalaryPaid(ctx, principalOf(admin), salary.ID, dto.SalaryPaymentRequest{})
	require.NoError(t, err)
	require.Equal(t, models.PaymentPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaymentDate)

	_, err = svc.MarkSalaryPaid(ctx, principalOf(admin), salary.ID, dto.SalaryPaymentRequest{})
	require.ErrorIs(t, err, ErrAlreadyPaid)

	_, err = svc.UpdateSalary(ctx, principalOf(admin), salary.ID, dto.SalaryUpdateRequest{Bonus: &bonus})
	require.ErrorIs(t, err, ErrSalaryImmutable)

	negative := decimal.NewFromInt(-1)
	other := createUser(t, db, "other", models.RoleTeacher)
	_, err = svc.CreateSalary(ctx, principalOf(admin), dto.SalaryCreateRequest{
		TeacherID:  other.ID,
		Month:      payload.Month,
		BaseSalary: decimal.NewFromInt(100),
		Deductions: negative,
	})
	require.ErrorIs(t, err, ErrValidation)

	mine, err := svc.ListSalaries(ctx, principalOf(teacher), dto.SalaryListRequest{})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = svc.ListSalaries(ctx, principalOf(teacher), dto.SalaryListRequest{TeacherID: other.ID})
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.Equal(t, []string{ActionSalaryPaid}, activity.actions())
}
