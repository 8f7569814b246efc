package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

func TestEnrollmentServiceEnforcesCapacity(t *testing.T) {
	db := setupServiceDB(t)
	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	first := createUser(t, db, "first", models.RoleStudent)
	second := createUser(t, db, "second", models.RoleStudent)
	course := createCourse(t, db, teacher.ID, 1, "0")

	activity := &recordingActivity{}
	svc := NewEnrollmentService(repository.NewEnrollmentRepository(db), repository.NewUserRepository(db), activity, false, testLogger())
	ctx := context.Background()

	enrollment, err := svc.Enroll(ctx, principalOf(first), course.ID, 0)
	require.NoError(t, err)
	require.Equal(t, first.ID, enrollment.StudentID)
	require.Equal(t, models.EnrollmentStateActive, enrollment.State)

	_, err = svc.Enroll(ctx, principalOf(second), course.ID, 0)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.ErrorIs(t, err, ErrConflict)

	_, err = svc.Enroll(ctx, principalOf(first), course.ID, 0)
	require.ErrorIs(t, err, ErrAlreadyEnrolled)

	withdrawn, err := svc.Withdraw(ctx, principalOf(first), course.ID, 0)
	require.NoError(t, err)
	require.False(t, withdrawn.IsActive)
	require.Equal(t, models.EnrollmentStateWithdrawn, withdrawn.State)

	_, err = svc.Enroll(ctx, principalOf(second), course.ID, 0)
	require.NoError(t, err)

	require.Equal(t, []string{ActionEnrolled, ActionWithdrawn, ActionEnrolled}, activity.actions())
}

func TestEnrollmentServiceCapturesCourseFee(t *testing.T) {
	db := setupServiceDB(t)
	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	student := createUser(t, db, "student", models.RoleStudent)
	course := createCourse(t, db, teacher.ID, 10, "120.00")

	svc := NewEnrollmentService(repository.NewEnrollmentRepository(db), repository.NewUserRepository(db), &recordingActivity{}, true, testLogger())

	enrollment, err := svc.Enroll(context.Background(), principalOf(student), course.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, enrollment.FeeTransactionID)

	var fee models.FeeTransaction
	require.NoError(t, db.First(&fee, *enrollment.FeeTransactionID).Error)
	require.Equal(t, models.PaymentPending, fee.PaymentStatus)
	require.True(t, fee.Amount.Equal(decimal.NewFromInt(120)))
	require.Equal(t, student.ID, fee.StudentID)
}

func TestEnrollmentServiceAuthorization(t *testing.T) {
	db := setupServiceDB(t)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	student := createUser(t, db, "student", models.RoleStudent)
	other := createUser(t, db, "other", models.RoleStudent)
	course := createCourse(t, db, teacher.ID, 10, "0")

	svc := NewEnrollmentService(repository.NewEnrollmentRepository(db), repository.NewUserRepository(db), &recordingActivity{}, false, testLogger())
	ctx := context.Background()

	_, err := svc.Enroll(ctx, principalOf(student), course.ID, other.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Enroll(ctx, principalOf(admin), course.ID, teacher.ID)
	require.ErrorIs(t, err, ErrValidation)

	enrollment, err := svc.Enroll(ctx, principalOf(admin), course.ID, other.ID)
	require.NoError(t, err)
	require.Equal(t, other.ID, enrollment.StudentID)

	_, err = svc.Enroll(ctx, principalOf(student), 999, 0)
	require.ErrorIs(t, err, ErrCourseNotFound)

	_, err = svc.Withdraw(ctx, principalOf(student), course.ID, 0)
	require.ErrorIs(t, err, ErrNotEnrolled)

	_, err = svc.ListMine(ctx, principalOf(teacher))
	require.ErrorIs(t, err, ErrPermissionDenied)

	mine, err := svc.ListMine(ctx, principalOf(other))
	require.NoError(t, err)
	require.Len(t, mine, 1)
}
