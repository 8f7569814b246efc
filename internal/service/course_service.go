package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

// CourseService manages the catalog, weekly outlines, ratings and rosters.
type CourseService interface {
	List(ctx context.Context, req dto.CourseListRequest) (dto.CourseListResponse, error)
	Get(ctx context.Context, id uint) (dto.CourseResponse, error)
	Create(ctx context.Context, principal policy.Principal, payload dto.CourseCreateRequest) (dto.CourseResponse, error)
	Update(ctx context.Context, principal policy.Principal, id uint, payload dto.CourseUpdateRequest) (dto.CourseResponse, error)
	Delete(ctx context.Context, principal policy.Principal, id uint) error

	ListWeeks(ctx context.Context, courseID uint) ([]dto.WeeklyDetailResponse, error)
	AddWeek(ctx context.Context, principal policy.Principal, courseID uint, payload dto.WeeklyDetailRequest) (dto.WeeklyDetailResponse, error)
	UpdateWeek(ctx context.Context, principal policy.Principal, courseID uint, weekNumber int, payload dto.WeeklyDetailRequest) (dto.WeeklyDetailResponse, error)
	DeleteWeek(ctx context.Context, principal policy.Principal, courseID uint, weekNumber int) error

	Rate(ctx context.Context, principal policy.Principal, courseID uint, payload dto.CourseRatingRequest) (dto.EnrollmentResponse, error)
	ListStudents(ctx context.Context, principal policy.Principal, courseID uint) ([]dto.EnrollmentResponse, error)
}

type courseService struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	users       repository.UserRepository
	activity    ActivityRecorder
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
}

// NewCourseService wires the course catalog service.
func NewCourseService(
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	users repository.UserRepository,
	activity ActivityRecorder,
	validate *validator.Validate,
	logger zerolog.Logger,
) CourseService {
	return &courseService{
		courses:     courses,
		enrollments: enrollments,
		users:       users,
		activity:    activity,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "course_service").Logger(),
	}
}

func (s *courseService) List(ctx context.Context, req dto.CourseListRequest) (dto.CourseListResponse, error) {
	req.Page, req.PageSize = normalizePage(req.Page, req.PageSize)

	courses, total, err := s.courses.List(ctx, repository.CourseFilter{
		Search:     strings.TrimSpace(req.Search),
		Difficulty: strings.ToLower(strings.TrimSpace(req.Difficulty)),
		TeacherID:  req.TeacherID,
		ActiveOnly: req.ActiveOnly,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		return dto.CourseListResponse{}, unexpected("list courses", err)
	}

	ids := make([]uint, 0, len(courses))
	for _, course := range courses {
		ids = append(ids, course.ID)
	}
	stats, err := s.courses.Stats(ctx, ids...)
	if err != nil {
		return dto.CourseListResponse{}, unexpected("course stats", err)
	}

	items := make([]dto.CourseResponse, 0, len(courses))
	for _, course := range courses {
		items = append(items, dto.NewCourseResponse(course, stats[course.ID]))
	}
	return dto.CourseListResponse{Items: items, Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total)}, nil
}

func (s *courseService) Get(ctx context.Context, id uint) (dto.CourseResponse, error) {
	course, err := s.courses.GetDetailed(ctx, id)
	if err != nil {
		return dto.CourseResponse{}, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}
	return s.respond(ctx, course)
}

func (s *courseService) Create(ctx context.Context, principal policy.Principal, payload dto.CourseCreateRequest) (dto.CourseResponse, error) {
	teacherID := payload.TeacherID
	if principal.IsTeacher() && teacherID == 0 {
		teacherID = principal.ID
	}
	if err := authorize(policy.CanCreateCourse(principal, teacherID)); err != nil {
		return dto.CourseResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.CourseResponse{}, err
	}
	if err := validateFee(payload.Fee); err != nil {
		return dto.CourseResponse{}, err
	}
	if err := s.requireTeacher(ctx, teacherID); err != nil {
		return dto.CourseResponse{}, err
	}

	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}

	course := models.Course{
		Title:         strings.TrimSpace(payload.Title),
		Description:   s.sanitizer.Sanitize(payload.Description),
		TeacherID:     teacherID,
		Difficulty:    payload.Difficulty,
		DurationWeeks: payload.DurationWeeks,
		Fee:           payload.Fee.Round(2),
		MaxStudents:   payload.MaxStudents,
		Syllabus:      s.sanitizer.Sanitize(payload.Syllabus),
		Prerequisites: s.sanitizer.Sanitize(payload.Prerequisites),
		ScheduleInfo:  s.sanitizer.Sanitize(payload.ScheduleInfo),
		IsActive:      active,
	}
	if err := s.courses.Create(ctx, &course); err != nil {
		return dto.CourseResponse{}, unexpected("create course", err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    principal.ID,
		ActorRole:  string(principal.Role),
		Action:     ActionCourseCreated,
		EntityType: "course",
		EntityID:   uintPtr(course.ID),
		Metadata:   map[string]interface{}{"title": course.Title, "teacher_id": course.TeacherID},
	})
	s.logger.Info().Uint("course_id", course.ID).Uint("teacher_id", teacherID).Msg("course created")

	return dto.NewCourseResponse(course, models.CourseStats{CourseID: course.ID}), nil
}

func (s *courseService) Update(ctx context.Context, principal policy.Principal, id uint, payload dto.CourseUpdateRequest) (dto.CourseResponse, error) {
	course, err := s.load(ctx, id)
	if err != nil {
		return dto.CourseResponse{}, err
	}
	if err := authorize(policy.CanManageCourse(principal, course)); err != nil {
		return dto.CourseResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.CourseResponse{}, err
	}

	changes := make(map[string]interface{})
	if payload.Title != nil {
		changes["title"] = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		changes["description"] = s.sanitizer.Sanitize(*payload.Description)
	}
	if payload.Difficulty != nil {
		changes["difficulty"] = *payload.Difficulty
	}
	if payload.DurationWeeks != nil {
		changes["duration_weeks"] = *payload.DurationWeeks
	}
	if payload.Fee != nil {
		if err := validateFee(*payload.Fee); err != nil {
			return dto.CourseResponse{}, err
		}
		changes["fee"] = payload.Fee.Round(2)
	}
	if payload.MaxStudents != nil {
		changes["max_students"] = *payload.MaxStudents
	}
	if payload.Syllabus != nil {
		changes["syllabus"] = s.sanitizer.Sanitize(*payload.Syllabus)
	}
	if payload.Prerequisites != nil {
		changes["prerequisites"] = s.sanitizer.Sanitize(*payload.Prerequisites)
	}
	if payload.ScheduleInfo != nil {
		changes["schedule_info"] = s.sanitizer.Sanitize(*payload.ScheduleInfo)
	}
	if payload.IsActive != nil {
		changes["is_active"] = *payload.IsActive
	}

	course, err = s.courses.Update(ctx, course.ID, changes)
	switch {
	case errors.Is(err, repository.ErrCapacityBelowActive):
		return dto.CourseResponse{}, ErrCapacityBelowActive
	case err != nil:
		return dto.CourseResponse{}, unexpected("update course", translateNotFound(err, ErrCourseNotFound))
	}
	return s.respond(ctx, course)
}

func (s *courseService) Delete(ctx context.Context, principal policy.Principal, id uint) error {
	course, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(policy.CanManageCourse(principal, course)); err != nil {
		return err
	}

	history, err := s.enrollments.ListByCourse(ctx, id, false)
	if err != nil {
		return unexpected("list enrollments", err)
	}
	if len(history) > 0 {
		return conflictError("course has enrollment history; deactivate it instead")
	}

	if err := s.courses.Delete(ctx, id); err != nil {
		return unexpected("delete course", translateNotFound(err, ErrCourseNotFound))
	}
	s.logger.Info().Uint("course_id", id).Uint("actor_id", principal.ID).Msg("course deleted")
	return nil
}

func (s *courseService) ListWeeks(ctx context.Context, courseID uint) ([]dto.WeeklyDetailResponse, error) {
	if _, err := s.load(ctx, courseID); err != nil {
		return nil, err
	}
	weeks, err := s.courses.ListWeeks(ctx, courseID)
	if err != nil {
		return nil, unexpected("list weeks", err)
	}
	responses := make([]dto.WeeklyDetailResponse, 0, len(weeks))
	for _, week := range weeks {
		responses = append(responses, dto.NewWeeklyDetailResponse(week))
	}
	return responses, nil
}

func (s *courseService) AddWeek(ctx context.Context, principal policy.Principal, courseID uint, payload dto.WeeklyDetailRequest) (dto.WeeklyDetailResponse, error) {
	course, err := s.manageable(ctx, principal, courseID)
	if err != nil {
		return dto.WeeklyDetailResponse{}, err
	}
	if err := s.validateWeek(course, payload); err != nil {
		return dto.WeeklyDetailResponse{}, err
	}

	week := models.WeeklyDetail{CourseID: courseID}
	s.applyWeek(&week, payload)
	if err := s.courses.CreateWeek(ctx, &week); err != nil {
		if isDuplicate(err) {
			return dto.WeeklyDetailResponse{}, ErrWeekExists
		}
		return dto.WeeklyDetailResponse{}, unexpected("create week", err)
	}
	return dto.NewWeeklyDetailResponse(week), nil
}

func (s *courseService) UpdateWeek(ctx context.Context, principal policy.Principal, courseID uint, weekNumber int, payload dto.WeeklyDetailRequest) (dto.WeeklyDetailResponse, error) {
	course, err := s.manageable(ctx, principal, courseID)
	if err != nil {
		return dto.WeeklyDetailResponse{}, err
	}
	payload.WeekNumber = weekNumber
	if err := s.validateWeek(course, payload); err != nil {
		return dto.WeeklyDetailResponse{}, err
	}

	week, err := s.courses.GetWeek(ctx, courseID, weekNumber)
	if err != nil {
		return dto.WeeklyDetailResponse{}, unexpected("load week", translateNotFound(err, ErrWeekNotFound))
	}
	s.applyWeek(&week, payload)
	if err := s.courses.UpdateWeek(ctx, &week); err != nil {
		return dto.WeeklyDetailResponse{}, unexpected("update week", err)
	}
	return dto.NewWeeklyDetailResponse(week), nil
}

func (s *courseService) DeleteWeek(ctx context.Context, principal policy.Principal, courseID uint, weekNumber int) error {
	if _, err := s.manageable(ctx, principal, courseID); err != nil {
		return err
	}
	if err := s.courses.DeleteWeek(ctx, courseID, weekNumber); err != nil {
		return unexpected("delete week", translateNotFound(err, ErrWeekNotFound))
	}
	return nil
}

func (s *courseService) Rate(ctx context.Context, principal policy.Principal, courseID uint, payload dto.CourseRatingRequest) (dto.EnrollmentResponse, error) {
	if !principal.IsStudent() {
		return dto.EnrollmentResponse{}, permissionError("only enrolled students may rate a course")
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.EnrollmentResponse{}, err
	}
	if _, err := s.load(ctx, courseID); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	enrollment, err := s.enrollments.Rate(ctx, principal.ID, courseID, payload.Rating, s.sanitizer.Sanitize(payload.Review))
	if err != nil {
		return dto.EnrollmentResponse{}, unexpected("rate course", translateNotFound(err, ErrNotEnrolled))
	}
	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *courseService) ListStudents(ctx context.Context, principal policy.Principal, courseID uint) ([]dto.EnrollmentResponse, error) {
	course, err := s.load(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := authorize(policy.CanViewRoster(principal, course)); err != nil {
		return nil, err
	}

	enrollments, err := s.enrollments.ListByCourse(ctx, courseID, true)
	if err != nil {
		return nil, unexpected("list roster", err)
	}
	return dto.NewEnrollmentResponseSlice(enrollments), nil
}

func (s *courseService) respond(ctx context.Context, course models.Course) (dto.CourseResponse, error) {
	stats, err := s.courses.Stats(ctx, course.ID)
	if err != nil {
		return dto.CourseResponse{}, unexpected("course stats", err)
	}
	return dto.NewCourseResponse(course, stats[course.ID]), nil
}

func (s *courseService) load(ctx context.Context, id uint) (models.Course, error) {
	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		return models.Course{}, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}
	return course, nil
}

func (s *courseService) manageable(ctx context.Context, principal policy.Principal, courseID uint) (models.Course, error) {
	course, err := s.load(ctx, courseID)
	if err != nil {
		return models.Course{}, err
	}
	if err := authorize(policy.CanManageCourse(principal, course)); err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (s *courseService) validateWeek(course models.Course, payload dto.WeeklyDetailRequest) error {
	if err := validate(s.validator, payload); err != nil {
		return err
	}
	if payload.WeekNumber > course.DurationWeeks {
		return validationError("week_number must be between 1 and %d", course.DurationWeeks)
	}
	return nil
}

func (s *courseService) applyWeek(week *models.WeeklyDetail, payload dto.WeeklyDetailRequest) {
	week.WeekNumber = payload.WeekNumber
	week.Title = strings.TrimSpace(payload.Title)
	week.Description = s.sanitizer.Sanitize(payload.Description)
	week.TopicsCovered = s.sanitizer.Sanitize(payload.TopicsCovered)
	week.Assignments = s.sanitizer.Sanitize(payload.Assignments)
	week.ScheduleDate = payload.ScheduleDate
}

func (s *courseService) requireTeacher(ctx context.Context, teacherID uint) error {
	if teacherID == 0 {
		return validationError("teacher_id is required")
	}
	teacher, err := s.users.GetByID(ctx, teacherID)
	if err != nil {
		err = translateNotFound(err, ErrUserNotFound)
		if errors.Is(err, ErrUserNotFound) {
			return validationError("teacher %d does not exist", teacherID)
		}
		return unexpected("load teacher", err)
	}
	if teacher.Role != models.RoleTeacher {
		return validationError("user %d is not a teacher", teacherID)
	}
	return nil
}

func validateFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return validationError("fee must not be negative")
	}
	return nil
}
