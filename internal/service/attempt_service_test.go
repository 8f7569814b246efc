package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/repository"
	"github.com/noah-isme/eduportal-api/pkg/ai"
)

type stubGrader struct {
	input  ai.GradingInput
	result ai.GradingResult
	err    error
}

func (s *stubGrader) Suggest(_ context.Context, input ai.GradingInput) (ai.GradingResult, error) {
	s.input = input
	return s.result, s.err
}

type attemptFixture struct {
	db       *gorm.DB
	svc      *attemptService
	activity *recordingActivity
	teacher  models.User
	student  models.User
	exam     models.Exam
	choice   models.Question
	correct  models.QuestionOption
	essay    models.Question
	opened   time.Time
}

func newAttemptFixture(t *testing.T, grader ai.Grader, maxAttempts int) attemptFixture {
	t.Helper()
	db := setupServiceDB(t)
	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	student := createUser(t, db, "student", models.RoleStudent)
	course := createCourse(t, db, teacher.ID, 10, "0")

	opened := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.Create(&models.Enrollment{StudentID: student.ID, CourseID: course.ID, EnrolledAt: opened, IsActive: true}).Error)

	exam := models.Exam{
		CourseID:        course.ID,
		Title:           "Midterm",
		Instructions:    "Award marks for clear reasoning.",
		DurationMinutes: 30,
		TotalMarks:      10,
		PassingMarks:    6,
		StartTime:       opened.Add(-time.Hour),
		EndTime:         opened.Add(time.Hour),
		IsActive:        true,
		CreatedBy:       teacher.ID,
		Questions: []models.Question{
			{
				Text:         "2 + 2",
				QuestionType: models.QuestionMultipleChoice,
				Marks:        5,
				Order:        1,
				Options: []models.QuestionOption{
					{Text: "4", IsCorrect: true, Order: 1},
					{Text: "5", Order: 2},
				},
			},
			{Text: "Explain recursion", QuestionType: models.QuestionEssay, Marks: 5, Order: 2},
		},
	}
	require.NoError(t, db.Create(&exam).Error)

	activity := &recordingActivity{}
	svc := NewAttemptService(
		repository.NewAttemptRepository(db),
		repository.NewExamRepository(db),
		repository.NewEnrollmentRepository(db),
		activity,
		grader,
		maxAttempts,
		testValidator(),
		testLogger(),
	).(*attemptService)
	svc.now = func() time.Time { return opened }

	return attemptFixture{
		db:       db,
		svc:      svc,
		activity: activity,
		teacher:  teacher,
		student:  student,
		exam:     exam,
		choice:   exam.Questions[0],
		correct:  exam.Questions[0].Options[0],
		essay:    exam.Questions[1],
		opened:   opened,
	}
}

func (f attemptFixture) answers() dto.SubmitAttemptRequest {
	return dto.SubmitAttemptRequest{Answers: []dto.AnswerSubmission{
		{QuestionID: f.choice.ID, SelectedOptionID: &f.correct.ID},
		{QuestionID: f.essay.ID, TextAnswer: "A function calling itself until a base case."},
	}}
}

func (f attemptFixture) essayAnswerID(t *testing.T, attempt dto.AttemptResponse) uint {
	t.Helper()
	for _, answer := range attempt.Answers {
		if answer.QuestionID == f.essay.ID {
			return answer.ID
		}
	}
	t.Fatalf("essay answer missing from attempt %d", attempt.ID)
	return 0
}

func TestAttemptLifecycleSubmitAndGrade(t *testing.T) {
	f := newAttemptFixture(t, nil, 0)
	ctx := context.Background()

	attempt, err := f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.NoError(t, err)
	require.Equal(t, models.AttemptInProgress, attempt.Status)
	require.NotNil(t, attempt.Deadline)
	require.True(t, f.opened.Add(30*time.Minute).Equal(*attempt.Deadline))

	_, err = f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.ErrorIs(t, err, ErrDuplicateAttempt)

	submitted, err := f.svc.Submit(ctx, principalOf(f.student), attempt.ID, f.answers())
	require.NoError(t, err)
	require.Equal(t, models.AttemptSubmitted, submitted.Status)
	require.NotNil(t, submitted.Score)
	require.Equal(t, 5, *submitted.Score)
	require.Equal(t, 1, submitted.PendingAnswers)
	require.False(t, submitted.IsPassed)

	_, err = f.svc.Submit(ctx, principalOf(f.student), attempt.ID, f.answers())
	require.ErrorIs(t, err, ErrAttemptAlreadySubmitted)

	essayID := f.essayAnswerID(t, submitted)

	_, err = f.svc.GradeAnswer(ctx, principalOf(f.teacher), essayID, dto.GradeAnswerRequest{Marks: 6})
	require.ErrorIs(t, err, ErrValidation)

	graded, err := f.svc.GradeAnswer(ctx, principalOf(f.teacher), essayID, dto.GradeAnswerRequest{Marks: 3})
	require.NoError(t, err)
	require.Equal(t, models.AttemptGraded, graded.Status)
	require.Equal(t, 8, *graded.Score)
	require.True(t, graded.IsPassed)
	require.Zero(t, graded.PendingAnswers)

	require.Contains(t, f.activity.actions(), ActionAttemptSubmitted)
}

func TestAttemptSubmitAfterDeadlineIsRejected(t *testing.T) {
	f := newAttemptFixture(t, nil, 0)
	ctx := context.Background()

	attempt, err := f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return f.opened.Add(31 * time.Minute) }
	_, err = f.svc.Submit(ctx, principalOf(f.student), attempt.ID, f.answers())
	require.ErrorIs(t, err, ErrSubmissionWindowClosed)
}

func TestAttemptDeadlineIsEarlierOfDurationAndExamEnd(t *testing.T) {
	f := newAttemptFixture(t, nil, 0)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.NoError(t, err)
	f.svc.now = func() time.Time { return f.opened.Add(30 * time.Minute) }
	_, err = f.svc.Submit(ctx, principalOf(f.student), first.ID, f.answers())
	require.NoError(t, err)

	lateStart := f.exam.EndTime.Add(-15 * time.Minute)
	f.svc.now = func() time.Time { return lateStart }
	second, err := f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.NoError(t, err)
	require.True(t, f.exam.EndTime.Equal(*second.Deadline))

	f.svc.now = func() time.Time { return f.exam.EndTime.Add(time.Minute) }
	_, err = f.svc.Submit(ctx, principalOf(f.student), second.ID, f.answers())
	require.ErrorIs(t, err, ErrSubmissionWindowClosed)
}

func TestAttemptStartRequiresEnrollmentAndOpenWindow(t *testing.T) {
	f := newAttemptFixture(t, nil, 0)
	ctx := context.Background()

	outsider := createUser(t, f.db, "outsider", models.RoleStudent)
	_, err := f.svc.Start(ctx, principalOf(outsider), f.exam.ID)
	require.ErrorIs(t, err, ErrNotEnrolled)

	_, err = f.svc.Start(ctx, principalOf(f.teacher), f.exam.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	f.svc.now = func() time.Time { return f.opened.Add(2 * time.Hour) }
	_, err = f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.ErrorIs(t, err, ErrExamNotAvailable)
}

func TestAttemptLimitCountsFinishedAttempts(t *testing.T) {
	f := newAttemptFixture(t, nil, 1)
	ctx := context.Background()

	attempt, err := f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, principalOf(f.student), attempt.ID, f.answers())
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.ErrorIs(t, err, ErrAttemptLimitReached)
}

func TestAttemptGradingGuards(t *testing.T) {
	f := newAttemptFixture(t, nil, 0)
	ctx := context.Background()

	attempt, err := f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.NoError(t, err)
	submitted, err := f.svc.Submit(ctx, principalOf(f.student), attempt.ID, f.answers())
	require.NoError(t, err)

	var choiceAnswerID uint
	for _, answer := range submitted.Answers {
		if answer.QuestionID == f.choice.ID {
			choiceAnswerID = answer.ID
		}
	}
	_, err = f.svc.GradeAnswer(ctx, principalOf(f.teacher), choiceAnswerID, dto.GradeAnswerRequest{Marks: 1})
	require.ErrorIs(t, err, ErrAnswerNotGradable)

	stranger := createUser(t, f.db, "stranger", models.RoleTeacher)
	_, err = f.svc.GradeAnswer(ctx, principalOf(stranger), f.essayAnswerID(t, submitted), dto.GradeAnswerRequest{Marks: 1})
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.SuggestGrade(ctx, principalOf(f.teacher), f.essayAnswerID(t, submitted))
	require.ErrorIs(t, err, ErrSuggestionsDisabled)
}

func TestAttemptSuggestGradeUsesGrader(t *testing.T) {
	grader := &stubGrader{result: ai.GradingResult{Marks: 4, Confidence: 0.8, Feedback: "Solid"}}
	f := newAttemptFixture(t, grader, 0)
	ctx := context.Background()

	attempt, err := f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.NoError(t, err)
	submitted, err := f.svc.Submit(ctx, principalOf(f.student), attempt.ID, f.answers())
	require.NoError(t, err)

	suggestion, err := f.svc.SuggestGrade(ctx, principalOf(f.teacher), f.essayAnswerID(t, submitted))
	require.NoError(t, err)
	require.Equal(t, 4, suggestion.SuggestedMarks)
	require.Equal(t, 5, suggestion.MaxMarks)
	require.Equal(t, "Midterm", grader.input.ExamTitle)
	require.Equal(t, "Award marks for clear reasoning.", grader.input.Rubric)

	grader.err = errors.New("upstream unavailable")
	_, err = f.svc.SuggestGrade(ctx, principalOf(f.teacher), f.essayAnswerID(t, submitted))
	require.ErrorIs(t, err, ErrUnexpected)
}

func TestAttemptSubmitRejectsAnswersOutsideTheExam(t *testing.T) {
	f := newAttemptFixture(t, nil, 0)
	ctx := context.Background()

	attempt, err := f.svc.Start(ctx, principalOf(f.student), f.exam.ID)
	require.NoError(t, err)

	cases := map[string][]dto.AnswerSubmission{
		"unknown question": {{QuestionID: 9999, TextAnswer: "?"}},
		"answered twice": {
			{QuestionID: f.essay.ID, TextAnswer: "first"},
			{QuestionID: f.essay.ID, TextAnswer: "second"},
		},
		"option on essay": {{QuestionID: f.essay.ID, SelectedOptionID: &f.correct.ID}},
	}
	for name, answers := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, principalOf(f.student), attempt.ID, dto.SubmitAttemptRequest{Answers: answers})
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	submitted, err := f.svc.Submit(ctx, principalOf(f.student), attempt.ID, f.answers())
	require.NoError(t, err)
	require.Equal(t, 5, *submitted.Score)
	require.Equal(t, []string{ActionAttemptSubmitted}, f.activity.actions())
}
