package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/config"
	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

// ProgressService records weekly progress and aggregates it per course.
type ProgressService interface {
	Record(ctx context.Context, principal policy.Principal, payload dto.ProgressRecordRequest) (dto.ProgressRecordResponse, error)
	List(ctx context.Context, principal policy.Principal, req dto.ProgressListRequest) ([]dto.ProgressResponse, error)
	Summary(ctx context.Context, principal policy.Principal, courseID uint) (dto.ProgressSummaryResponse, error)
}

type progressService struct {
	progress  repository.ProgressRepository
	courses   repository.CourseRepository
	policy    config.ProgressPolicy
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewProgressService wires weekly progress tracking with the configured scoring policy.
func NewProgressService(
	progress repository.ProgressRepository,
	courses repository.CourseRepository,
	scoring config.ProgressPolicy,
	validate *validator.Validate,
	logger zerolog.Logger,
) ProgressService {
	if scoring.Validate() != nil {
		scoring = config.DefaultProgressPolicy()
	}
	return &progressService{
		progress:  progress,
		courses:   courses,
		policy:    scoring,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "progress_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *progressService) Record(ctx context.Context, principal policy.Principal, payload dto.ProgressRecordRequest) (dto.ProgressRecordResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.ProgressRecordResponse{}, err
	}

	course, err := s.courses.GetByID(ctx, payload.CourseID)
	if err != nil {
		return dto.ProgressRecordResponse{}, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}
	if err := authorize(policy.CanRecordProgress(principal, course)); err != nil {
		return dto.ProgressRecordResponse{}, err
	}
	if payload.WeekNumber > course.DurationWeeks {
		return dto.ProgressRecordResponse{}, validationError("week_number must be between 1 and %d", course.DurationWeeks)
	}

	row := &models.StudentProgress{
		StudentID:            payload.StudentID,
		CourseID:             payload.CourseID,
		WeekNumber:           payload.WeekNumber,
		AttendancePercentage: payload.AttendancePercentage,
		AssignmentScore:      payload.AssignmentScore,
		QuizScore:            payload.QuizScore,
		ParticipationScore:   payload.ParticipationScore,
		TeacherNotes:         s.sanitizer.Sanitize(payload.TeacherNotes),
		RecordedBy:           principal.ID,
	}
	row.OverallScore = OverallScore(s.policy, row)

	enrollment, err := s.progress.Record(ctx, repository.ProgressRecord{
		Progress:            row,
		DurationWeeks:       course.DurationWeeks,
		CompletionThreshold: s.policy.CompletionThreshold,
		Now:                 s.now(),
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProgressRecordResponse{}, ErrNotEnrolled
		}
		return dto.ProgressRecordResponse{}, unexpected("record progress", err)
	}

	s.logger.Info().
		Uint("course_id", course.ID).
		Uint("student_id", payload.StudentID).
		Int("week", payload.WeekNumber).
		Int("completion", enrollment.CompletionPercentage).
		Msg("progress recorded")

	return dto.ProgressRecordResponse{
		Progress:   dto.NewProgressResponse(*row),
		Enrollment: dto.NewEnrollmentResponse(enrollment),
	}, nil
}

// OverallScore is the weighted mean of the components present on the row, rounded to an integer.
// Attendance is always present; the other components count only when recorded.
func OverallScore(p config.ProgressPolicy, row *models.StudentProgress) int {
	type component struct {
		value  *int
		weight float64
	}
	attendance := row.AttendancePercentage
	components := []component{
		{&attendance, p.AttendanceWeight},
		{row.AssignmentScore, p.AssignmentWeight},
		{row.QuizScore, p.QuizWeight},
		{row.ParticipationScore, p.ParticipationWeight},
	}

	var sum, weights float64
	for _, c := range components {
		if c.value == nil || c.weight <= 0 {
			continue
		}
		sum += float64(*c.value) * c.weight
		weights += c.weight
	}
	if weights == 0 {
		return 0
	}
	return int(math.Round(sum / weights))
}

func (s *progressService) List(ctx context.Context, principal policy.Principal, req dto.ProgressListRequest) ([]dto.ProgressResponse, error) {
	filter := repository.ProgressFilter{CourseID: req.CourseID, StudentID: req.StudentID}

	switch {
	case principal.IsAdmin():
	case principal.IsStudent():
		if req.StudentID != 0 && req.StudentID != principal.ID {
			return nil, permissionError("students may only view their own progress")
		}
		filter.StudentID = principal.ID
	case principal.IsTeacher():
		if req.CourseID != 0 {
			course, err := s.courses.GetByID(ctx, req.CourseID)
			if err != nil {
				return nil, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
			}
			if err := authorize(policy.CanViewProgress(principal, course, req.StudentID)); err != nil {
				return nil, err
			}
			break
		}
		owned, _, err := s.courses.List(ctx, repository.CourseFilter{TeacherID: principal.ID})
		if err != nil {
			return nil, unexpected("list courses", err)
		}
		filter.CourseIDs = make([]uint, 0, len(owned))
		for _, course := range owned {
			filter.CourseIDs = append(filter.CourseIDs, course.ID)
		}
	default:
		return nil, permissionError("authentication required")
	}

	rows, err := s.progress.List(ctx, filter)
	if err != nil {
		return nil, unexpected("list progress", err)
	}
	responses := make([]dto.ProgressResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, dto.NewProgressResponse(row))
	}
	return responses, nil
}

func (s *progressService) Summary(ctx context.Context, principal policy.Principal, courseID uint) (dto.ProgressSummaryResponse, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return dto.ProgressSummaryResponse{}, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}
	if err := authorize(policy.CanViewRoster(principal, course)); err != nil {
		return dto.ProgressSummaryResponse{}, err
	}

	summary, err := s.progress.Summary(ctx, courseID)
	if err != nil {
		return dto.ProgressSummaryResponse{}, unexpected("progress summary", err)
	}

	response := dto.ProgressSummaryResponse{
		CourseID:                courseID,
		TotalStudents:           summary.TotalStudents,
		CompletedStudents:       summary.CompletedStudents,
		AvgCompletionPercentage: round2(summary.AvgCompletion),
		Weekly:                  make([]dto.WeeklyScorePoint, 0, len(summary.Weekly)),
	}
	if summary.TotalStudents > 0 {
		response.CompletionRate = round2(float64(summary.CompletedStudents) / float64(summary.TotalStudents) * 100)
	}
	for _, week := range summary.Weekly {
		response.Weekly = append(response.Weekly, dto.WeeklyScorePoint{
			WeekNumber:       week.WeekNumber,
			AverageScore:     round2(week.Average),
			RecordedStudents: week.Students,
		})
	}
	return response, nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
