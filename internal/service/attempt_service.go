package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/observability"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
	"github.com/noah-isme/eduportal-api/pkg/ai"
)

// ErrAttemptNotSubmitted is returned when grading an answer of an attempt that is still open.
var ErrAttemptNotSubmitted = newDomainError(ErrConflict, "attempt has not been submitted")

// AttemptService drives the exam attempt lifecycle.
type AttemptService interface {
	Start(ctx context.Context, principal policy.Principal, examID uint) (dto.AttemptResponse, error)
	Submit(ctx context.Context, principal policy.Principal, attemptID uint, payload dto.SubmitAttemptRequest) (dto.AttemptResponse, error)
	Get(ctx context.Context, principal policy.Principal, attemptID uint) (dto.AttemptResponse, error)
	ListForExam(ctx context.Context, principal policy.Principal, examID uint) ([]dto.AttemptResponse, error)
	ListMine(ctx context.Context, principal policy.Principal) ([]dto.AttemptResponse, error)
	GradeAnswer(ctx context.Context, principal policy.Principal, answerID uint, payload dto.GradeAnswerRequest) (dto.AttemptResponse, error)
	SuggestGrade(ctx context.Context, principal policy.Principal, answerID uint) (dto.GradingSuggestionResponse, error)
}

type attemptService struct {
	attempts    repository.AttemptRepository
	exams       repository.ExamRepository
	enrollments repository.EnrollmentRepository
	activity    ActivityRecorder
	grader      ai.Grader
	maxAttempts int
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewAttemptService wires the attempt service. grader may be nil when suggestions are disabled.
func NewAttemptService(
	attempts repository.AttemptRepository,
	exams repository.ExamRepository,
	enrollments repository.EnrollmentRepository,
	activity ActivityRecorder,
	grader ai.Grader,
	maxAttempts int,
	validate *validator.Validate,
	logger zerolog.Logger,
) AttemptService {
	return &attemptService{
		attempts:    attempts,
		exams:       exams,
		enrollments: enrollments,
		activity:    activity,
		grader:      grader,
		maxAttempts: maxAttempts,
		validator:   validate,
		logger:      logger.With().Str("component", "attempt_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/eduportal-api/internal/service/attempt"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *attemptService) Start(ctx context.Context, principal policy.Principal, examID uint) (dto.AttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempt.start", trace.WithAttributes(attribute.Int64("exam.id", int64(examID))))
	defer span.End()

	if err := authorize(policy.CanTakeExam(principal)); err != nil {
		return dto.AttemptResponse{}, err
	}

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return dto.AttemptResponse{}, unexpected("load exam", translateNotFound(err, ErrExamNotFound))
	}
	enrolled, err := s.enrollments.IsActivelyEnrolled(ctx, principal.ID, exam.CourseID)
	if err != nil {
		return dto.AttemptResponse{}, unexpected("check enrollment", err)
	}
	if !enrolled {
		return dto.AttemptResponse{}, ErrNotEnrolled
	}

	now := s.now()
	if !exam.IsActive || exam.StateAt(now) != models.ExamStateActive {
		observability.ExamAttempts().WithLabelValues("start", "unavailable").Inc()
		return dto.AttemptResponse{}, ErrExamNotAvailable
	}

	attempt, err := s.attempts.Start(ctx, repository.AttemptStart{
		StudentID:   principal.ID,
		ExamID:      exam.ID,
		MaxAttempts: s.maxAttempts,
		Now:         now,
	})
	if err != nil {
		mapped := mapAttemptError(err)
		observability.ExamAttempts().WithLabelValues("start", outcomeLabel(mapped)).Inc()
		if errors.Is(mapped, ErrUnexpected) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "start failed")
		}
		return dto.AttemptResponse{}, mapped
	}

	observability.ExamAttempts().WithLabelValues("start", "ok").Inc()
	s.logger.Info().Uint("attempt_id", attempt.ID).Uint("exam_id", exam.ID).Uint("student_id", principal.ID).Msg("exam attempt started")
	return dto.NewAttemptResponse(attempt), nil
}

func (s *attemptService) Submit(ctx context.Context, principal policy.Principal, attemptID uint, payload dto.SubmitAttemptRequest) (dto.AttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attempt.submit", trace.WithAttributes(attribute.Int64("attempt.id", int64(attemptID))))
	defer span.End()

	if err := validate(s.validator, payload); err != nil {
		return dto.AttemptResponse{}, err
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return dto.AttemptResponse{}, unexpected("load attempt", translateNotFound(err, ErrAttemptNotFound))
	}
	if err := authorize(policy.CanSubmitAttempt(principal, attempt)); err != nil {
		return dto.AttemptResponse{}, err
	}

	answers := make([]repository.AnswerInput, 0, len(payload.Answers))
	for _, answer := range payload.Answers {
		answers = append(answers, repository.AnswerInput{
			QuestionID:       answer.QuestionID,
			SelectedOptionID: answer.SelectedOptionID,
			TextAnswer:       answer.TextAnswer,
		})
	}

	submitted, err := s.attempts.Submit(ctx, repository.AttemptSubmission{
		AttemptID: attempt.ID,
		Answers:   answers,
		Now:       s.now(),
	})
	if err != nil {
		mapped := mapAttemptError(err)
		observability.ExamAttempts().WithLabelValues("submit", outcomeLabel(mapped)).Inc()
		if errors.Is(mapped, ErrUnexpected) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submit failed")
		}
		return dto.AttemptResponse{}, mapped
	}
	observability.ExamAttempts().WithLabelValues("submit", "ok").Inc()

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    principal.ID,
		ActorRole:  string(principal.Role),
		Action:     ActionAttemptSubmitted,
		EntityType: "exam_attempt",
		EntityID:   uintPtr(submitted.ID),
		Metadata:   map[string]interface{}{"exam_id": submitted.ExamID, "status": submitted.Status},
	})

	return s.detailed(ctx, submitted.ID)
}

func (s *attemptService) Get(ctx context.Context, principal policy.Principal, attemptID uint) (dto.AttemptResponse, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return dto.AttemptResponse{}, unexpected("load attempt", translateNotFound(err, ErrAttemptNotFound))
	}
	if err := s.authorizeView(principal, attempt); err != nil {
		return dto.AttemptResponse{}, err
	}
	return s.detailed(ctx, attempt.ID)
}

// ListForExam returns every attempt for staff and only the caller's own for students.
func (s *attemptService) ListForExam(ctx context.Context, principal policy.Principal, examID uint) ([]dto.AttemptResponse, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, unexpected("load exam", translateNotFound(err, ErrExamNotFound))
	}

	filter := repository.AttemptFilter{ExamID: exam.ID}
	if principal.IsStudent() {
		filter.StudentID = principal.ID
	} else if exam.Course == nil {
		return nil, unexpected("authorize exam", errors.New("exam course not loaded"))
	} else if err := authorize(policy.CanViewRoster(principal, *exam.Course)); err != nil {
		return nil, err
	}

	attempts, err := s.attempts.List(ctx, filter)
	if err != nil {
		return nil, unexpected("list attempts", err)
	}
	return dto.NewAttemptResponseSlice(attempts), nil
}

func (s *attemptService) ListMine(ctx context.Context, principal policy.Principal) ([]dto.AttemptResponse, error) {
	if err := authorize(policy.CanTakeExam(principal)); err != nil {
		return nil, err
	}
	attempts, err := s.attempts.List(ctx, repository.AttemptFilter{StudentID: principal.ID})
	if err != nil {
		return nil, unexpected("list attempts", err)
	}
	return dto.NewAttemptResponseSlice(attempts), nil
}

func (s *attemptService) GradeAnswer(ctx context.Context, principal policy.Principal, answerID uint, payload dto.GradeAnswerRequest) (dto.AttemptResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.AttemptResponse{}, err
	}

	answer, attempt, err := s.loadGradable(ctx, principal, answerID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}
	if payload.Marks > answer.Question.Marks {
		return dto.AttemptResponse{}, validationError("marks must be between 0 and %d", answer.Question.Marks)
	}

	_, graded, err := s.attempts.GradeAnswer(ctx, repository.AnswerGrade{
		AnswerID: answer.ID,
		Marks:    payload.Marks,
		GradedBy: principal.ID,
		Now:      s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return dto.AttemptResponse{}, ErrAttemptNotSubmitted
		}
		return dto.AttemptResponse{}, unexpected("grade answer", translateNotFound(err, ErrAnswerNotFound))
	}

	s.logger.Info().Uint("answer_id", answer.ID).Uint("attempt_id", attempt.ID).Int("marks", payload.Marks).Str("status", graded.Status).Msg("answer graded")
	return s.detailed(ctx, graded.ID)
}

// SuggestGrade asks the configured grader for advisory marks. Nothing is persisted.
func (s *attemptService) SuggestGrade(ctx context.Context, principal policy.Principal, answerID uint) (dto.GradingSuggestionResponse, error) {
	if s.grader == nil {
		return dto.GradingSuggestionResponse{}, ErrSuggestionsDisabled
	}

	answer, attempt, err := s.loadGradable(ctx, principal, answerID)
	if err != nil {
		return dto.GradingSuggestionResponse{}, err
	}

	input := ai.GradingInput{
		Question:      answer.Question.Text,
		QuestionType:  answer.Question.QuestionType,
		MaxMarks:      answer.Question.Marks,
		StudentAnswer: answer.TextAnswer,
	}
	if attempt.Exam != nil {
		input.ExamTitle = attempt.Exam.Title
		input.Rubric = attempt.Exam.Instructions
	}

	result, err := s.grader.Suggest(ctx, input)
	if err != nil {
		return dto.GradingSuggestionResponse{}, unexpected("suggest grade", err)
	}
	return dto.GradingSuggestionResponse{
		AnswerID:       answer.ID,
		SuggestedMarks: result.Marks,
		MaxMarks:       answer.Question.Marks,
		Confidence:     result.Confidence,
		Feedback:       result.Feedback,
	}, nil
}

// loadGradable resolves a free-text answer the principal may grade.
func (s *attemptService) loadGradable(ctx context.Context, principal policy.Principal, answerID uint) (models.Answer, models.ExamAttempt, error) {
	answer, err := s.attempts.GetAnswer(ctx, answerID)
	if err != nil {
		return models.Answer{}, models.ExamAttempt{}, unexpected("load answer", translateNotFound(err, ErrAnswerNotFound))
	}
	attempt, err := s.attempts.GetByID(ctx, answer.AttemptID)
	if err != nil {
		return models.Answer{}, models.ExamAttempt{}, unexpected("load attempt", translateNotFound(err, ErrAttemptNotFound))
	}
	if attempt.Exam == nil || attempt.Exam.Course == nil {
		return models.Answer{}, models.ExamAttempt{}, unexpected("load attempt", errors.New("attempt exam not loaded"))
	}
	if err := authorize(policy.CanGradeAnswer(principal, *attempt.Exam.Course)); err != nil {
		return models.Answer{}, models.ExamAttempt{}, err
	}
	if answer.Question == nil {
		return models.Answer{}, models.ExamAttempt{}, ErrQuestionNotFound
	}
	if answer.Question.AutoGradable() {
		return models.Answer{}, models.ExamAttempt{}, ErrAnswerNotGradable
	}
	return answer, attempt, nil
}

func (s *attemptService) authorizeView(principal policy.Principal, attempt models.ExamAttempt) error {
	if attempt.Exam == nil || attempt.Exam.Course == nil {
		return unexpected("authorize attempt", errors.New("attempt exam not loaded"))
	}
	return authorize(policy.CanViewAttempt(principal, attempt, *attempt.Exam.Course))
}

func (s *attemptService) detailed(ctx context.Context, attemptID uint) (dto.AttemptResponse, error) {
	attempt, err := s.attempts.GetWithAnswers(ctx, attemptID)
	if err != nil {
		return dto.AttemptResponse{}, unexpected("load attempt", translateNotFound(err, ErrAttemptNotFound))
	}
	return dto.NewAttemptResponse(attempt), nil
}

// mapAttemptError translates repository outcomes into domain errors.
func mapAttemptError(err error) error {
	var invalid *repository.InvalidAnswerError
	switch {
	case errors.As(err, &invalid):
		return validationError("%s", invalid.Error())
	case errors.Is(err, repository.ErrDuplicateActive):
		return ErrDuplicateAttempt
	case errors.Is(err, repository.ErrAttemptLimit):
		return ErrAttemptLimitReached
	case errors.Is(err, repository.ErrStaleState):
		return ErrAttemptAlreadySubmitted
	case errors.Is(err, repository.ErrDeadlinePassed):
		return ErrSubmissionWindowClosed
	default:
		return unexpected("exam attempt", translateNotFound(err, ErrAttemptNotFound))
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnexpected):
		return "error"
	default:
		return "rejected"
	}
}
