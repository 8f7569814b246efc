package dto

import (
	"time"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// ExamCreateRequest describes a new exam.
type ExamCreateRequest struct {
	CourseID        uint      `json:"course_id" validate:"required"`
	Title           string    `json:"title" validate:"required,max=200"`
	Description     string    `json:"description"`
	Instructions    string    `json:"instructions"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gte=1"`
	TotalMarks      int       `json:"total_marks" validate:"required,gte=1"`
	PassingMarks    int       `json:"passing_marks" validate:"gte=0,ltefield=TotalMarks"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	EndTime         time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	IsActive        *bool     `json:"is_active"`
}

// ExamUpdateRequest patches exam attributes. Cross-field rules are checked after merging.
type ExamUpdateRequest struct {
	Title           *string    `json:"title" validate:"omitempty,max=200"`
	Description     *string    `json:"description"`
	Instructions    *string    `json:"instructions"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,gte=1"`
	TotalMarks      *int       `json:"total_marks" validate:"omitempty,gte=1"`
	PassingMarks    *int       `json:"passing_marks" validate:"omitempty,gte=0"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	IsActive        *bool      `json:"is_active"`
}

// ExamListRequest filters exams. Status is one of upcoming, active or ended.
type ExamListRequest struct {
	CourseID uint
	Status   string
}

// QuestionOptionRequest is one option of a choice question.
type QuestionOptionRequest struct {
	Text      string `json:"option_text" validate:"required,max=500"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order" validate:"gte=0"`
}

// QuestionCreateRequest adds a question to an exam.
type QuestionCreateRequest struct {
	Text         string                  `json:"question_text" validate:"required"`
	QuestionType string                  `json:"question_type" validate:"required,oneof=multiple_choice true_false short_answer essay"`
	Marks        int                     `json:"marks" validate:"required,gte=1"`
	Order        int                     `json:"order" validate:"gte=0"`
	Options      []QuestionOptionRequest `json:"options" validate:"omitempty,dive"`
}

// ExamResponse serialises an exam. Questions are included on detail views.
type ExamResponse struct {
	ID              uint               `json:"id"`
	CourseID        uint               `json:"course_id"`
	CourseTitle     string             `json:"course_title,omitempty"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Instructions    string             `json:"instructions"`
	DurationMinutes int                `json:"duration_minutes"`
	TotalMarks      int                `json:"total_marks"`
	PassingMarks    int                `json:"passing_marks"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         time.Time          `json:"end_time"`
	IsActive        bool               `json:"is_active"`
	State           string             `json:"state"`
	QuestionCount   int                `json:"question_count"`
	Questions       []QuestionResponse `json:"questions,omitempty"`
	CreatedBy       uint               `json:"created_by"`
}

// NewExamResponse converts an exam. When revealAnswers is false, correct flags are omitted.
func NewExamResponse(exam models.Exam, now time.Time, revealAnswers bool) ExamResponse {
	response := ExamResponse{
		ID:              exam.ID,
		CourseID:        exam.CourseID,
		Title:           exam.Title,
		Description:     exam.Description,
		Instructions:    exam.Instructions,
		DurationMinutes: exam.DurationMinutes,
		TotalMarks:      exam.TotalMarks,
		PassingMarks:    exam.PassingMarks,
		StartTime:       exam.StartTime,
		EndTime:         exam.EndTime,
		IsActive:        exam.IsActive,
		State:           exam.StateAt(now),
		QuestionCount:   len(exam.Questions),
		CreatedBy:       exam.CreatedBy,
	}
	if exam.Course != nil {
		response.CourseTitle = exam.Course.Title
	}
	for _, question := range exam.Questions {
		response.Questions = append(response.Questions, NewQuestionResponse(question, revealAnswers))
	}
	return response
}

// QuestionResponse serialises a question.
type QuestionResponse struct {
	ID           uint                     `json:"id"`
	Text         string                   `json:"question_text"`
	QuestionType string                   `json:"question_type"`
	Marks        int                      `json:"marks"`
	Order        int                      `json:"order"`
	Options      []QuestionOptionResponse `json:"options,omitempty"`
}

// QuestionOptionResponse serialises an option; IsCorrect is nil when hidden.
type QuestionOptionResponse struct {
	ID        uint   `json:"id"`
	Text      string `json:"option_text"`
	Order     int    `json:"order"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
}

// NewQuestionResponse converts a question.
func NewQuestionResponse(question models.Question, revealAnswers bool) QuestionResponse {
	response := QuestionResponse{
		ID:           question.ID,
		Text:         question.Text,
		QuestionType: question.QuestionType,
		Marks:        question.Marks,
		Order:        question.Order,
	}
	for _, option := range question.Options {
		item := QuestionOptionResponse{ID: option.ID, Text: option.Text, Order: option.Order}
		if revealAnswers {
			correct := option.IsCorrect
			item.IsCorrect = &correct
		}
		response.Options = append(response.Options, item)
	}
	return response
}

// AnswerSubmission is one answer inside a submit payload.
type AnswerSubmission struct {
	QuestionID       uint   `json:"question_id" validate:"required"`
	SelectedOptionID *uint  `json:"selected_option_id"`
	TextAnswer       string `json:"text_answer" validate:"omitempty,max=20000"`
}

// SubmitAttemptRequest carries all answers of an attempt.
type SubmitAttemptRequest struct {
	Answers []AnswerSubmission `json:"answers" validate:"dive"`
}

// GradeAnswerRequest scores a free-text answer.
type GradeAnswerRequest struct {
	Marks int `json:"marks" validate:"gte=0"`
}

// AttemptResponse serialises an attempt.
type AttemptResponse struct {
	ID               uint             `json:"id"`
	ExamID           uint             `json:"exam_id"`
	StudentID        uint             `json:"student_id"`
	Status           string           `json:"status"`
	StartedAt        time.Time        `json:"started_at"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	SubmittedAt      *time.Time       `json:"submitted_at"`
	GradedAt         *time.Time       `json:"graded_at"`
	Score            *int             `json:"score"`
	IsPassed         bool             `json:"is_passed"`
	TimeTakenSeconds *int64           `json:"time_taken_seconds"`
	PendingAnswers   int              `json:"pending_answers"`
	Answers          []AnswerResponse `json:"answers,omitempty"`
}

// AnswerResponse serialises an answer.
type AnswerResponse struct {
	ID               uint   `json:"id"`
	QuestionID       uint   `json:"question_id"`
	SelectedOptionID *uint  `json:"selected_option_id"`
	TextAnswer       string `json:"text_answer,omitempty"`
	MarksObtained    *int   `json:"marks_obtained"`
	IsCorrect        *bool  `json:"is_correct"`
}

// NewAttemptResponse converts an attempt and its answers.
func NewAttemptResponse(attempt models.ExamAttempt) AttemptResponse {
	response := AttemptResponse{
		ID:          attempt.ID,
		ExamID:      attempt.ExamID,
		StudentID:   attempt.StudentID,
		Status:      attempt.Status,
		StartedAt:   attempt.StartedAt,
		SubmittedAt: attempt.SubmittedAt,
		GradedAt:    attempt.GradedAt,
		Score:       attempt.Score,
		IsPassed:    attempt.IsPassed,
	}
	if attempt.Exam != nil && attempt.Status == models.AttemptInProgress {
		deadline := attempt.Exam.Deadline(attempt.StartedAt)
		response.Deadline = &deadline
	}
	if taken := attempt.TimeTaken(); taken != nil {
		seconds := int64(taken.Seconds())
		response.TimeTakenSeconds = &seconds
	}
	for _, answer := range attempt.Answers {
		if answer.MarksObtained == nil {
			response.PendingAnswers++
		}
		response.Answers = append(response.Answers, AnswerResponse{
			ID:               answer.ID,
			QuestionID:       answer.QuestionID,
			SelectedOptionID: answer.SelectedOptionID,
			TextAnswer:       answer.TextAnswer,
			MarksObtained:    answer.MarksObtained,
			IsCorrect:        answer.IsCorrect,
		})
	}
	return response
}

// NewAttemptResponseSlice converts a slice of attempts.
func NewAttemptResponseSlice(attempts []models.ExamAttempt) []AttemptResponse {
	responses := make([]AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, NewAttemptResponse(attempt))
	}
	return responses
}

// GradingSuggestionResponse is an advisory score for a free-text answer.
type GradingSuggestionResponse struct {
	AnswerID       uint    `json:"answer_id"`
	SuggestedMarks int     `json:"suggested_marks"`
	MaxMarks       int     `json:"max_marks"`
	Confidence     float64 `json:"confidence"`
	Feedback       string  `json:"feedback"`
}
