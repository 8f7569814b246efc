package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

//go:embed schemas/question_bank.schema.json
var questionBankSchemaJSON []byte

const questionBankSchemaURL = "eduportal://schemas/question_bank.schema.json"

// ExamService manages exams and their question banks.
type ExamService interface {
	Create(ctx context.Context, principal policy.Principal, payload dto.ExamCreateRequest) (dto.ExamResponse, error)
	Update(ctx context.Context, principal policy.Principal, id uint, payload dto.ExamUpdateRequest) (dto.ExamResponse, error)
	Get(ctx context.Context, principal policy.Principal, id uint) (dto.ExamResponse, error)
	List(ctx context.Context, principal policy.Principal, req dto.ExamListRequest) ([]dto.ExamResponse, error)
	AddQuestion(ctx context.Context, principal policy.Principal, examID uint, payload dto.QuestionCreateRequest) (dto.QuestionResponse, error)
	Delete(ctx context.Context, principal policy.Principal, id uint) error
	ImportQuestions(ctx context.Context, principal policy.Principal, examID uint, raw []byte) ([]dto.QuestionResponse, error)
	UpdateQuestion(ctx context.Context, principal policy.Principal, questionID uint, payload dto.QuestionCreateRequest) (dto.QuestionResponse, error)
	DeleteQuestion(ctx context.Context, principal policy.Principal, questionID uint) error
}

type examService struct {
	exams       repository.ExamRepository
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	bankSchema  *jsonschema.Schema
	logger      zerolog.Logger
	now         func() time.Time
}

// NewExamService wires the exam service and compiles the embedded question bank schema.
func NewExamService(
	exams repository.ExamRepository,
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	validate *validator.Validate,
	logger zerolog.Logger,
) (ExamService, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(questionBankSchemaURL, bytes.NewReader(questionBankSchemaJSON)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(questionBankSchemaURL)
	if err != nil {
		return nil, err
	}

	return &examService{
		exams:       exams,
		courses:     courses,
		enrollments: enrollments,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		bankSchema:  schema,
		logger:      logger.With().Str("component", "exam_service").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *examService) Create(ctx context.Context, principal policy.Principal, payload dto.ExamCreateRequest) (dto.ExamResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.ExamResponse{}, err
	}

	course, err := s.courses.GetByID(ctx, payload.CourseID)
	if err != nil {
		return dto.ExamResponse{}, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}
	if err := authorize(policy.CanManageExam(principal, course)); err != nil {
		return dto.ExamResponse{}, err
	}

	exam := models.Exam{
		CourseID:        course.ID,
		Title:           strings.TrimSpace(payload.Title),
		Description:     s.sanitizer.Sanitize(payload.Description),
		Instructions:    s.sanitizer.Sanitize(payload.Instructions),
		DurationMinutes: payload.DurationMinutes,
		TotalMarks:      payload.TotalMarks,
		PassingMarks:    payload.PassingMarks,
		StartTime:       payload.StartTime.UTC(),
		EndTime:         payload.EndTime.UTC(),
		IsActive:        true,
		CreatedBy:       principal.ID,
	}
	if payload.IsActive != nil {
		exam.IsActive = *payload.IsActive
	}

	if err := s.exams.Create(ctx, &exam); err != nil {
		return dto.ExamResponse{}, unexpected("create exam", err)
	}
	exam.Course = &course

	s.logger.Info().Uint("exam_id", exam.ID).Uint("course_id", course.ID).Msg("exam created")
	return dto.NewExamResponse(exam, s.now(), true), nil
}

func (s *examService) Update(ctx context.Context, principal policy.Principal, id uint, payload dto.ExamUpdateRequest) (dto.ExamResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.ExamResponse{}, err
	}

	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		return dto.ExamResponse{}, unexpected("load exam", translateNotFound(err, ErrExamNotFound))
	}
	if err := s.authorizeExam(principal, exam); err != nil {
		return dto.ExamResponse{}, err
	}

	if payload.Title != nil {
		exam.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		exam.Description = s.sanitizer.Sanitize(*payload.Description)
	}
	if payload.Instructions != nil {
		exam.Instructions = s.sanitizer.Sanitize(*payload.Instructions)
	}
	if payload.DurationMinutes != nil {
		exam.DurationMinutes = *payload.DurationMinutes
	}
	if payload.TotalMarks != nil {
		exam.TotalMarks = *payload.TotalMarks
	}
	if payload.PassingMarks != nil {
		exam.PassingMarks = *payload.PassingMarks
	}
	if payload.StartTime != nil {
		exam.StartTime = payload.StartTime.UTC()
	}
	if payload.EndTime != nil {
		exam.EndTime = payload.EndTime.UTC()
	}
	if payload.IsActive != nil {
		exam.IsActive = *payload.IsActive
	}

	if !exam.EndTime.After(exam.StartTime) {
		return dto.ExamResponse{}, validationError("end_time must be after start_time")
	}
	if exam.PassingMarks > exam.TotalMarks {
		return dto.ExamResponse{}, validationError("passing_marks must not exceed total_marks")
	}

	if err := s.exams.Update(ctx, &exam); err != nil {
		var exceeded *repository.MarksExceededError
		if errors.As(err, &exceeded) {
			return dto.ExamResponse{}, validationError("total_marks must cover the %d marks already allocated to questions", exceeded.Allocated)
		}
		return dto.ExamResponse{}, unexpected("update exam", translateNotFound(err, ErrExamNotFound))
	}
	return dto.NewExamResponse(exam, s.now(), true), nil
}

// Delete removes an exam that no student has attempted yet.
func (s *examService) Delete(ctx context.Context, principal policy.Principal, id uint) error {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		return unexpected("load exam", translateNotFound(err, ErrExamNotFound))
	}
	if err := s.authorizeExam(principal, exam); err != nil {
		return err
	}
	if err := s.exams.Delete(ctx, exam.ID); err != nil {
		return mapExamError("delete exam", err)
	}
	s.logger.Info().Uint("exam_id", exam.ID).Uint("actor_id", principal.ID).Msg("exam deleted")
	return nil
}

// Get hides correct flags from students and requires them to be enrolled in an open exam.
// Question text reaches students only while the exam is running or once they have attempted it.
func (s *examService) Get(ctx context.Context, principal policy.Principal, id uint) (dto.ExamResponse, error) {
	exam, err := s.exams.GetWithQuestions(ctx, id)
	if err != nil {
		return dto.ExamResponse{}, unexpected("load exam", translateNotFound(err, ErrExamNotFound))
	}

	if principal.IsStudent() {
		enrolled, err := s.enrollments.IsActivelyEnrolled(ctx, principal.ID, exam.CourseID)
		if err != nil {
			return dto.ExamResponse{}, unexpected("check enrollment", err)
		}
		if !enrolled || !exam.IsActive {
			return dto.ExamResponse{}, ErrExamNotFound
		}
		now := s.now()
		response := dto.NewExamResponse(exam, now, false)
		if exam.StateAt(now) != models.ExamStateActive {
			attempted, err := s.exams.HasAttempt(ctx, exam.ID, principal.ID)
			if err != nil {
				return dto.ExamResponse{}, unexpected("check attempts", err)
			}
			if !attempted {
				response.Questions = nil
			}
		}
		return response, nil
	}

	if err := s.authorizeExam(principal, exam); err != nil {
		return dto.ExamResponse{}, err
	}
	return dto.NewExamResponse(exam, s.now(), true), nil
}

func (s *examService) List(ctx context.Context, principal policy.Principal, req dto.ExamListRequest) ([]dto.ExamResponse, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "", models.ExamStateUpcoming, models.ExamStateActive, models.ExamStateEnded:
	case "ongoing":
		status = models.ExamStateActive
	default:
		return nil, validationError("status must be upcoming, active or ended")
	}

	now := s.now()
	filter := repository.ExamFilter{CourseID: req.CourseID, Status: status, Now: now}

	switch {
	case principal.IsAdmin():
	case principal.IsTeacher():
		courses, _, err := s.courses.List(ctx, repository.CourseFilter{TeacherID: principal.ID})
		if err != nil {
			return nil, unexpected("list courses", err)
		}
		filter.CourseIDs = courseIDs(courses)
	case principal.IsStudent():
		ids, err := s.enrollments.ActiveCourseIDs(ctx, principal.ID)
		if err != nil {
			return nil, unexpected("list enrollments", err)
		}
		if ids == nil {
			ids = []uint{}
		}
		filter.CourseIDs = ids
		filter.ActiveOnly = true
	default:
		return nil, permissionError("authentication required")
	}

	exams, err := s.exams.List(ctx, filter)
	if err != nil {
		return nil, unexpected("list exams", err)
	}

	responses := make([]dto.ExamResponse, 0, len(exams))
	for _, exam := range exams {
		responses = append(responses, dto.NewExamResponse(exam, now, false))
	}
	return responses, nil
}

func (s *examService) AddQuestion(ctx context.Context, principal policy.Principal, examID uint, payload dto.QuestionCreateRequest) (dto.QuestionResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.QuestionResponse{}, err
	}
	created, err := s.addQuestions(ctx, principal, examID, []dto.QuestionCreateRequest{payload})
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	return created[0], nil
}

// ImportQuestions validates a JSON question bank against the embedded schema and inserts it atomically.
func (s *examService) ImportQuestions(ctx context.Context, principal policy.Principal, examID uint, raw []byte) ([]dto.QuestionResponse, error) {
	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, validationError("question bank is not valid JSON")
	}
	if err := s.bankSchema.Validate(document); err != nil {
		var schemaErr *jsonschema.ValidationError
		if errors.As(err, &schemaErr) {
			return nil, validationError("question bank rejected: %s", schemaErr.Error())
		}
		return nil, validationError("question bank rejected")
	}

	var bank struct {
		Questions []dto.QuestionCreateRequest `json:"questions"`
	}
	if err := json.Unmarshal(raw, &bank); err != nil {
		return nil, validationError("question bank is malformed")
	}
	for _, question := range bank.Questions {
		if err := validate(s.validator, question); err != nil {
			return nil, err
		}
	}

	created, err := s.addQuestions(ctx, principal, examID, bank.Questions)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Uint("exam_id", examID).Int("count", len(created)).Msg("question bank imported")
	return created, nil
}

func (s *examService) addQuestions(ctx context.Context, principal policy.Principal, examID uint, payloads []dto.QuestionCreateRequest) ([]dto.QuestionResponse, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, unexpected("load exam", translateNotFound(err, ErrExamNotFound))
	}
	if err := s.authorizeExam(principal, exam); err != nil {
		return nil, err
	}

	questions := make([]models.Question, 0, len(payloads))
	for _, payload := range payloads {
		if err := checkQuestionShape(payload); err != nil {
			return nil, err
		}
		questions = append(questions, s.buildQuestion(payload))
	}

	created, err := s.exams.AddQuestions(ctx, exam.ID, questions)
	if err != nil {
		return nil, mapExamError("add questions", err)
	}

	responses := make([]dto.QuestionResponse, 0, len(created))
	for _, question := range created {
		responses = append(responses, dto.NewQuestionResponse(question, true))
	}
	return responses, nil
}

// UpdateQuestion replaces a question and its options. Allowed until the first attempt starts.
func (s *examService) UpdateQuestion(ctx context.Context, principal policy.Principal, questionID uint, payload dto.QuestionCreateRequest) (dto.QuestionResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.QuestionResponse{}, err
	}
	current, err := s.loadManagedQuestion(ctx, principal, questionID)
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	if err := checkQuestionShape(payload); err != nil {
		return dto.QuestionResponse{}, err
	}

	question := s.buildQuestion(payload)
	question.ID = current.ID
	updated, err := s.exams.ReplaceQuestion(ctx, question)
	if err != nil {
		return dto.QuestionResponse{}, mapExamError("update question", err)
	}
	return dto.NewQuestionResponse(updated, true), nil
}

func (s *examService) DeleteQuestion(ctx context.Context, principal policy.Principal, questionID uint) error {
	question, err := s.loadManagedQuestion(ctx, principal, questionID)
	if err != nil {
		return err
	}
	if err := s.exams.DeleteQuestion(ctx, question.ID); err != nil {
		return mapExamError("delete question", err)
	}
	return nil
}

func (s *examService) loadManagedQuestion(ctx context.Context, principal policy.Principal, questionID uint) (models.Question, error) {
	question, err := s.exams.GetQuestion(ctx, questionID)
	if err != nil {
		return models.Question{}, unexpected("load question", translateNotFound(err, ErrQuestionNotFound))
	}
	exam, err := s.exams.GetByID(ctx, question.ExamID)
	if err != nil {
		return models.Question{}, unexpected("load exam", translateNotFound(err, ErrExamNotFound))
	}
	if err := s.authorizeExam(principal, exam); err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (s *examService) buildQuestion(payload dto.QuestionCreateRequest) models.Question {
	question := models.Question{
		Text:         s.sanitizer.Sanitize(payload.Text),
		QuestionType: payload.QuestionType,
		Marks:        payload.Marks,
		Order:        payload.Order,
	}
	for _, option := range payload.Options {
		question.Options = append(question.Options, models.QuestionOption{
			Text:      strings.TrimSpace(option.Text),
			IsCorrect: option.IsCorrect,
			Order:     option.Order,
		})
	}
	return question
}

// mapExamError translates question bank guards into domain errors.
func mapExamError(op string, err error) error {
	var exceeded *repository.MarksExceededError
	switch {
	case errors.As(err, &exceeded):
		return validationError("question marks (%d) would exceed the exam total of %d", exceeded.Allocated, exceeded.Total)
	case errors.Is(err, repository.ErrExamHasAttempts):
		return ErrExamHasAttempts
	default:
		return unexpected(op, translateNotFound(err, ErrQuestionNotFound))
	}
}

func (s *examService) authorizeExam(principal policy.Principal, exam models.Exam) error {
	if exam.Course == nil {
		return unexpected("authorize exam", errors.New("exam course not loaded"))
	}
	return authorize(policy.Authorize(principal, policy.ActionManageExam, policy.Resource{Course: exam.Course}))
}

// checkQuestionShape enforces option rules per question type.
func checkQuestionShape(payload dto.QuestionCreateRequest) error {
	correct := 0
	for _, option := range payload.Options {
		if option.IsCorrect {
			correct++
		}
	}

	switch payload.QuestionType {
	case models.QuestionMultipleChoice:
		if len(payload.Options) < 2 {
			return validationError("multiple choice questions need at least two options")
		}
		if correct == 0 {
			return validationError("multiple choice questions need a correct option")
		}
	case models.QuestionTrueFalse:
		if len(payload.Options) != 2 || correct != 1 {
			return validationError("true/false questions need exactly two options with one correct")
		}
	default:
		if len(payload.Options) > 0 {
			return validationError("%s questions do not take options", payload.QuestionType)
		}
	}
	return nil
}

func courseIDs(courses []models.Course) []uint {
	ids := make([]uint, 0, len(courses))
	for _, course := range courses {
		ids = append(ids, course.ID)
	}
	return ids
}
