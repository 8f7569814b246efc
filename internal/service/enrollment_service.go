package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/observability"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

// EnrollmentService runs the enroll and withdraw workflows.
type EnrollmentService interface {
	Enroll(ctx context.Context, principal policy.Principal, courseID, studentID uint) (dto.EnrollmentResponse, error)
	Withdraw(ctx context.Context, principal policy.Principal, courseID, studentID uint) (dto.EnrollmentResponse, error)
	ListMine(ctx context.Context, principal policy.Principal) ([]dto.EnrollmentResponse, error)
}

type enrollmentService struct {
	enrollments repository.EnrollmentRepository
	users       repository.UserRepository
	activity    ActivityRecorder
	captureFees bool
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEnrollmentService wires the enrollment workflow. When captureFees is set a pending
// course fee is written alongside every paid enrollment.
func NewEnrollmentService(
	enrollments repository.EnrollmentRepository,
	users repository.UserRepository,
	activity ActivityRecorder,
	captureFees bool,
	logger zerolog.Logger,
) EnrollmentService {
	return &enrollmentService{
		enrollments: enrollments,
		users:       users,
		activity:    activity,
		captureFees: captureFees,
		logger:      logger.With().Str("component", "enrollment_service").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *enrollmentService) Enroll(ctx context.Context, principal policy.Principal, courseID, studentID uint) (dto.EnrollmentResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/eduportal-api/internal/service/enrollment")
	ctx, span := tracer.Start(ctx, "enrollment.enroll")
	span.SetAttributes(attribute.Int64("course.id", int64(courseID)))
	defer span.End()

	if studentID == 0 {
		studentID = principal.ID
	}
	if err := authorize(policy.CanEnroll(principal, studentID)); err != nil {
		return dto.EnrollmentResponse{}, err
	}
	if principal.IsAdmin() && studentID != principal.ID {
		if err := s.requireStudent(ctx, studentID); err != nil {
			return dto.EnrollmentResponse{}, err
		}
	} else if !principal.IsStudent() {
		return dto.EnrollmentResponse{}, validationError("student_id must reference a student")
	}

	now := s.now()
	params := repository.EnrollParams{StudentID: studentID, CourseID: courseID, Now: now}
	if s.captureFees {
		params.FeeTemplate = &models.FeeTransaction{
			Reference:       uuid.NewString(),
			TransactionType: models.TransactionCourse,
			PaymentStatus:   models.PaymentPending,
			PaymentMethod:   models.MethodOnline,
			Description:     fmt.Sprintf("Enrollment fee for course %d", courseID),
			TransactionDate: now,
		}
	}

	enrollment, fee, err := s.enrollments.Enroll(ctx, params)
	if err != nil {
		mapped := mapEnrollError(err)
		observability.Enrollments().WithLabelValues(enrollOutcome(mapped)).Inc()
		if errors.Is(mapped, ErrUnexpected) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enroll_failed")
		}
		return dto.EnrollmentResponse{}, mapped
	}
	observability.Enrollments().WithLabelValues("enrolled").Inc()

	response := dto.NewEnrollmentResponse(enrollment)
	if fee != nil {
		response.FeeTransactionID = &fee.ID
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    principal.ID,
		ActorRole:  string(principal.Role),
		Action:     ActionEnrolled,
		EntityType: "enrollment",
		EntityID:   uintPtr(enrollment.ID),
		Metadata:   map[string]interface{}{"course_id": courseID, "student_id": studentID},
	})
	s.logger.Info().Uint("course_id", courseID).Uint("student_id", studentID).Msg("student enrolled")

	return response, nil
}

func (s *enrollmentService) Withdraw(ctx context.Context, principal policy.Principal, courseID, studentID uint) (dto.EnrollmentResponse, error) {
	if studentID == 0 {
		studentID = principal.ID
	}
	if err := authorize(policy.CanWithdraw(principal, studentID)); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	enrollment, err := s.enrollments.Withdraw(ctx, studentID, courseID, s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repository.ErrStaleState) {
			return dto.EnrollmentResponse{}, ErrNotEnrolled
		}
		return dto.EnrollmentResponse{}, unexpected("withdraw", err)
	}
	observability.Enrollments().WithLabelValues("withdrawn").Inc()

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    principal.ID,
		ActorRole:  string(principal.Role),
		Action:     ActionWithdrawn,
		EntityType: "enrollment",
		EntityID:   uintPtr(enrollment.ID),
		Metadata:   map[string]interface{}{"course_id": courseID, "student_id": studentID},
	})
	s.logger.Info().Uint("course_id", courseID).Uint("student_id", studentID).Msg("student withdrew")

	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) ListMine(ctx context.Context, principal policy.Principal) ([]dto.EnrollmentResponse, error) {
	if !principal.IsStudent() {
		return nil, permissionError("only students have enrollments")
	}
	enrollments, err := s.enrollments.ListByStudent(ctx, principal.ID)
	if err != nil {
		return nil, unexpected("list enrollments", err)
	}
	return dto.NewEnrollmentResponseSlice(enrollments), nil
}

func (s *enrollmentService) requireStudent(ctx context.Context, studentID uint) error {
	user, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return validationError("student %d does not exist", studentID)
		}
		return unexpected("load student", err)
	}
	if user.Role != models.RoleStudent {
		return validationError("user %d is not a student", studentID)
	}
	if !user.IsActive {
		return ErrAccountInactive
	}
	return nil
}

func mapEnrollError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrCourseNotFound
	case errors.Is(err, repository.ErrCourseClosed):
		return ErrCourseInactive
	case errors.Is(err, repository.ErrDuplicateActive):
		return ErrAlreadyEnrolled
	case errors.Is(err, repository.ErrCourseFull):
		return ErrCapacityExceeded
	default:
		return unexpected("enroll", err)
	}
}

func enrollOutcome(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrAlreadyEnrolled):
		return "duplicate"
	case errors.Is(err, ErrUnexpected):
		return "error"
	default:
		return "rejected"
	}
}
