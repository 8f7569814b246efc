package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
)

const questionBank = `{"questions": [
	{"question_text": "Is Go statically typed?", "question_type": "true_false", "marks": 2, "order": 1,
	 "options": [{"option_text": "Yes", "is_correct": true}, {"option_text": "No"}]},
	{"question_text": "Describe channel direction", "question_type": "essay", "marks": 8, "order": 2}
]}`

func TestExamHandlerAttemptFlow(t *testing.T) {
	stack := newTestStack(t)
	teacher := stack.seedUser(t, "teacher", models.RoleTeacher)
	student := stack.seedUser(t, "student", models.RoleStudent)
	teacherToken := stack.token(t, teacher)
	studentToken := stack.token(t, student)

	resp := stack.do(t, http.MethodPost, "/api/v1/courses", teacherToken, coursePayload("Concurrency"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var course dto.CourseResponse
	decodeEnvelope(t, resp, &course)

	now := time.Now().UTC()
	resp = stack.do(t, http.MethodPost, "/api/v1/exams", teacherToken, map[string]interface{}{
		"course_id":        course.ID,
		"title":            "Midterm",
		"duration_minutes": 30,
		"total_marks":      10,
		"passing_marks":    5,
		"start_time":       now.Add(-time.Hour),
		"end_time":         now.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var exam dto.ExamResponse
	decodeEnvelope(t, resp, &exam)
	require.Equal(t, models.ExamStateActive, exam.State)

	resp = stack.do(t, http.MethodPost, "/api/v1/exams/"+itoa(exam.ID)+"/questions/import", teacherToken, []byte(`{"questions": "nope"}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/exams/"+itoa(exam.ID)+"/questions/import", teacherToken, []byte(questionBank))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var questions []dto.QuestionResponse
	decodeEnvelope(t, resp, &questions)
	require.Len(t, questions, 2)

	resp = stack.do(t, http.MethodGet, "/api/v1/exams/"+itoa(exam.ID), studentToken, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/courses/"+itoa(course.ID)+"/enroll", studentToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/exams/"+itoa(exam.ID), studentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var visible dto.ExamResponse
	decodeEnvelope(t, resp, &visible)
	require.Len(t, visible.Questions, 2)
	var trueFalse, essay dto.QuestionResponse
	for _, question := range visible.Questions {
		for _, option := range question.Options {
			require.Nil(t, option.IsCorrect)
		}
		if question.QuestionType == models.QuestionTrueFalse {
			trueFalse = question
		} else {
			essay = question
		}
	}
	require.Len(t, trueFalse.Options, 2)

	resp = stack.do(t, http.MethodPost, "/api/v1/exams/"+itoa(exam.ID)+"/attempts", studentToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var attempt dto.AttemptResponse
	decodeEnvelope(t, resp, &attempt)
	require.Equal(t, models.AttemptInProgress, attempt.Status)

	resp = stack.do(t, http.MethodPost, "/api/v1/exams/"+itoa(exam.ID)+"/attempts", studentToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var correctOption uint
	for _, option := range trueFalse.Options {
		if option.Text == "Yes" {
			correctOption = option.ID
		}
	}
	resp = stack.do(t, http.MethodPost, "/api/v1/attempts/"+itoa(attempt.ID)+"/submit", studentToken, dto.SubmitAttemptRequest{
		Answers: []dto.AnswerSubmission{
			{QuestionID: trueFalse.ID, SelectedOptionID: &correctOption},
			{QuestionID: essay.ID, TextAnswer: "Send-only and receive-only channel types."},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var submitted dto.AttemptResponse
	decodeEnvelope(t, resp, &submitted)
	require.Equal(t, models.AttemptSubmitted, submitted.Status)
	require.Equal(t, 2, *submitted.Score)
	require.Equal(t, 1, submitted.PendingAnswers)

	var essayAnswer uint
	for _, answer := range submitted.Answers {
		if answer.QuestionID == essay.ID {
			essayAnswer = answer.ID
		}
	}
	require.NotZero(t, essayAnswer)

	resp = stack.do(t, http.MethodPost, "/api/v1/answers/"+itoa(essayAnswer)+"/grade", studentToken, dto.GradeAnswerRequest{Marks: 8})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/answers/"+itoa(essayAnswer)+"/suggest", teacherToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/answers/"+itoa(essayAnswer)+"/grade", teacherToken, dto.GradeAnswerRequest{Marks: 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var graded dto.AttemptResponse
	decodeEnvelope(t, resp, &graded)
	require.Equal(t, models.AttemptGraded, graded.Status)
	require.Equal(t, 6, *graded.Score)
	require.True(t, graded.IsPassed)

	resp = stack.do(t, http.MethodGet, "/api/v1/attempts/me", studentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []dto.AttemptResponse
	decodeEnvelope(t, resp, &mine)
	require.Len(t, mine, 1)

	resp = stack.do(t, http.MethodGet, "/api/v1/exams?status=archived", teacherToken, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExamHandlerQuestionEditsAndDelete(t *testing.T) {
	stack := newTestStack(t)
	teacher := stack.seedUser(t, "teacher", models.RoleTeacher)
	student := stack.seedUser(t, "student", models.RoleStudent)
	teacherToken := stack.token(t, teacher)
	studentToken := stack.token(t, student)

	resp := stack.do(t, http.MethodPost, "/api/v1/courses", teacherToken, coursePayload("Networking"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var course dto.CourseResponse
	decodeEnvelope(t, resp, &course)

	now := time.Now().UTC()
	resp = stack.do(t, http.MethodPost, "/api/v1/exams", teacherToken, map[string]interface{}{
		"course_id":        course.ID,
		"title":            "Quiz",
		"duration_minutes": 15,
		"total_marks":      10,
		"passing_marks":    5,
		"start_time":       now.Add(-time.Hour),
		"end_time":         now.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var exam dto.ExamResponse
	decodeEnvelope(t, resp, &exam)

	resp = stack.do(t, http.MethodPost, "/api/v1/exams/"+itoa(exam.ID)+"/questions/import", teacherToken, []byte(questionBank))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var questions []dto.QuestionResponse
	decodeEnvelope(t, resp, &questions)
	require.Len(t, questions, 2)

	rewrite := map[string]interface{}{
		"question_text": "What does TCP guarantee?",
		"question_type": "short_answer",
		"marks":         2,
	}
	resp = stack.do(t, http.MethodPut, "/api/v1/questions/"+itoa(questions[0].ID), studentToken, rewrite)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = stack.do(t, http.MethodPut, "/api/v1/questions/"+itoa(questions[0].ID), teacherToken, rewrite)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rewritten dto.QuestionResponse
	decodeEnvelope(t, resp, &rewritten)
	require.Equal(t, "short_answer", rewritten.QuestionType)
	require.Empty(t, rewritten.Options)

	rewrite["marks"] = 9
	resp = stack.do(t, http.MethodPut, "/api/v1/questions/"+itoa(questions[0].ID), teacherToken, rewrite)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = stack.do(t, http.MethodDelete, "/api/v1/questions/"+itoa(questions[1].ID), teacherToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/courses/"+itoa(course.ID)+"/enroll", studentToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = stack.do(t, http.MethodPost, "/api/v1/exams/"+itoa(exam.ID)+"/attempts", studentToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = stack.do(t, http.MethodDelete, "/api/v1/questions/"+itoa(questions[0].ID), teacherToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = stack.do(t, http.MethodDelete, "/api/v1/exams/"+itoa(exam.ID), teacherToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/exams", teacherToken, map[string]interface{}{
		"course_id":        course.ID,
		"title":            "Draft",
		"duration_minutes": 15,
		"total_marks":      10,
		"start_time":       now.Add(24 * time.Hour),
		"end_time":         now.Add(25 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var draft dto.ExamResponse
	decodeEnvelope(t, resp, &draft)

	resp = stack.do(t, http.MethodDelete, "/api/v1/exams/"+itoa(draft.ID), studentToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = stack.do(t, http.MethodDelete, "/api/v1/exams/"+itoa(draft.ID), teacherToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = stack.do(t, http.MethodGet, "/api/v1/exams/"+itoa(draft.ID), teacherToken, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
