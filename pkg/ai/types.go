package ai

import "context"

// GradingInput contains what a grader needs to score one free-text answer.
type GradingInput struct {
	ExamTitle     string
	Question      string
	QuestionType  string
	MaxMarks      int
	StudentAnswer string
	Rubric        string
}

// GradingResult is the advisory score returned by a grader. It is never persisted.
type GradingResult struct {
	Marks      int     `json:"marks"`
	Confidence float64 `json:"confidence"`
	Feedback   string  `json:"feedback"`
}

// Grader suggests marks for free-text exam answers.
type Grader interface {
	Suggest(ctx context.Context, input GradingInput) (GradingResult, error)
}
