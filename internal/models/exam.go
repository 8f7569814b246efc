package models

import "time"

// Exam availability states relative to a reference time.
const (
	ExamStateUpcoming = "upcoming"
	ExamStateActive   = "active"
	ExamStateEnded    = "ended"
)

// Question types.
const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionTrueFalse      = "true_false"
	QuestionShortAnswer    = "short_answer"
	QuestionEssay          = "essay"
)

// Attempt statuses.
const (
	AttemptInProgress = "in_progress"
	AttemptSubmitted  = "submitted"
	AttemptGraded     = "graded"
	AttemptExpired    = "expired"
)

// Exam is a timed assessment attached to a course.
type Exam struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CourseID        uint       `gorm:"not null;index" json:"course_id"`
	Course          *Course    `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Title           string     `gorm:"size:200;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	Instructions    string     `gorm:"type:text" json:"instructions"`
	DurationMinutes int        `gorm:"not null" json:"duration_minutes"`
	TotalMarks      int        `gorm:"not null" json:"total_marks"`
	PassingMarks    int        `gorm:"not null" json:"passing_marks"`
	StartTime       time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime         time.Time  `gorm:"not null;index" json:"end_time"`
	IsActive        bool       `gorm:"not null" json:"is_active"`
	CreatedBy       uint       `gorm:"not null" json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Questions       []Question `gorm:"constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

// StateAt reports whether the exam window has opened or closed at the given time.
func (e Exam) StateAt(now time.Time) string {
	switch {
	case now.Before(e.StartTime):
		return ExamStateUpcoming
	case now.After(e.EndTime):
		return ExamStateEnded
	default:
		return ExamStateActive
	}
}

// Deadline is the latest instant an attempt started at startedAt may be submitted.
func (e Exam) Deadline(startedAt time.Time) time.Time {
	limit := startedAt.Add(time.Duration(e.DurationMinutes) * time.Minute)
	if e.EndTime.Before(limit) {
		return e.EndTime
	}
	return limit
}

// Question belongs to an exam's question bank.
type Question struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	ExamID       uint             `gorm:"not null;index" json:"exam_id"`
	Text         string           `gorm:"type:text;not null" json:"question_text"`
	QuestionType string           `gorm:"size:20;not null" json:"question_type"`
	Marks        int              `gorm:"not null" json:"marks"`
	Order        int              `gorm:"column:sort_order;not null" json:"order"`
	CreatedAt    time.Time        `json:"created_at"`
	Options      []QuestionOption `gorm:"constraint:OnDelete:CASCADE" json:"options,omitempty"`
}

// AutoGradable reports whether answers can be scored from the option flags.
func (q Question) AutoGradable() bool {
	return q.QuestionType == QuestionMultipleChoice || q.QuestionType == QuestionTrueFalse
}

// QuestionOption is one selectable answer of a choice question.
type QuestionOption struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"not null;index" json:"question_id"`
	Text       string `gorm:"size:500;not null" json:"option_text"`
	IsCorrect  bool   `gorm:"not null" json:"is_correct"`
	Order      int    `gorm:"column:sort_order;not null" json:"order"`
}

// ExamAttempt is a student's timed run at an exam. Only one may be in progress per pair.
type ExamAttempt struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StudentID   uint       `gorm:"not null;index;uniqueIndex:idx_attempt_live,where:status = 'in_progress'" json:"student_id"`
	ExamID      uint       `gorm:"not null;index;uniqueIndex:idx_attempt_live,where:status = 'in_progress'" json:"exam_id"`
	Exam        *Exam      `gorm:"foreignKey:ExamID" json:"exam,omitempty"`
	Status      string     `gorm:"size:20;not null;index" json:"status"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at"`
	Score       *int       `json:"score"`
	IsPassed    bool       `gorm:"not null" json:"is_passed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Answers     []Answer   `gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

// TimeTaken returns the elapsed time between start and submission.
func (a ExamAttempt) TimeTaken() *time.Duration {
	if a.SubmittedAt == nil {
		return nil
	}
	elapsed := a.SubmittedAt.Sub(a.StartedAt)
	return &elapsed
}

// Answer holds a response to one question within an attempt.
type Answer struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	AttemptID        uint       `gorm:"not null;uniqueIndex:idx_attempt_question" json:"attempt_id"`
	QuestionID       uint       `gorm:"not null;uniqueIndex:idx_attempt_question" json:"question_id"`
	Question         *Question  `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
	SelectedOptionID *uint      `json:"selected_option_id"`
	TextAnswer       string     `gorm:"type:text" json:"text_answer"`
	MarksObtained    *int       `json:"marks_obtained"`
	IsCorrect        *bool      `json:"is_correct"`
	GradedBy         *uint      `json:"graded_by"`
	AnsweredAt       time.Time  `json:"answered_at"`
	GradedAt         *time.Time `json:"graded_at"`
}
