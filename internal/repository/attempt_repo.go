package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// AttemptStart describes a request to open a new attempt.
type AttemptStart struct {
	StudentID   uint
	ExamID      uint
	MaxAttempts int
	Now         time.Time
}

// AnswerInput is one submitted answer before grading.
type AnswerInput struct {
	QuestionID       uint
	SelectedOptionID *uint
	TextAnswer       string
}

// AttemptSubmission carries the answers for a submit call.
type AttemptSubmission struct {
	AttemptID uint
	Answers   []AnswerInput
	Now       time.Time
}

// AnswerGrade is a manual score for a free-text answer.
type AnswerGrade struct {
	AnswerID uint
	Marks    int
	GradedBy uint
	Now      time.Time
}

// AttemptFilter narrows attempt listings.
type AttemptFilter struct {
	ExamID    uint
	StudentID uint
}

// AttemptRepository persists exam attempts and their answers.
type AttemptRepository interface {
	Start(ctx context.Context, params AttemptStart) (models.ExamAttempt, error)
	Submit(ctx context.Context, params AttemptSubmission) (models.ExamAttempt, error)
	GradeAnswer(ctx context.Context, params AnswerGrade) (models.Answer, models.ExamAttempt, error)
	GetByID(ctx context.Context, id uint) (models.ExamAttempt, error)
	GetWithAnswers(ctx context.Context, id uint) (models.ExamAttempt, error)
	GetAnswer(ctx context.Context, id uint) (models.Answer, error)
	List(ctx context.Context, filter AttemptFilter) ([]models.ExamAttempt, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository instantiates a GORM-backed repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

// Start serialises on the exam row, retires attempts whose deadline has passed and then
// inserts the new in-progress attempt.
func (r *attemptRepository) Start(ctx context.Context, params AttemptStart) (models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exam models.Exam
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&exam, params.ExamID).Error; err != nil {
			return err
		}

		var live []models.ExamAttempt
		if err := tx.Where("student_id = ? AND exam_id = ? AND status = ?", params.StudentID, params.ExamID, models.AttemptInProgress).
			Find(&live).Error; err != nil {
			return err
		}
		for _, existing := range live {
			if params.Now.After(exam.Deadline(existing.StartedAt)) {
				if err := tx.Model(&models.ExamAttempt{}).
					Where("id = ? AND status = ?", existing.ID, models.AttemptInProgress).
					Update("status", models.AttemptExpired).Error; err != nil {
					return err
				}
				continue
			}
			return ErrDuplicateActive
		}

		if params.MaxAttempts > 0 {
			var used int64
			if err := tx.Model(&models.ExamAttempt{}).
				Where("student_id = ? AND exam_id = ?", params.StudentID, params.ExamID).
				Count(&used).Error; err != nil {
				return err
			}
			if used >= int64(params.MaxAttempts) {
				return ErrAttemptLimit
			}
		}

		attempt = models.ExamAttempt{
			StudentID: params.StudentID,
			ExamID:    params.ExamID,
			Status:    models.AttemptInProgress,
			StartedAt: params.Now,
		}
		if err := tx.Omit("Exam", "Answers").Create(&attempt).Error; err != nil {
			if IsUniqueViolation(err) {
				return ErrDuplicateActive
			}
			return err
		}
		attempt.Exam = &exam
		return nil
	})
	if err != nil {
		return models.ExamAttempt{}, err
	}
	return attempt, nil
}

// Submit grades choice answers and closes the attempt. The status flip is conditional so
// only one of several concurrent submits writes anything.
func (r *attemptRepository) Submit(ctx context.Context, params AttemptSubmission) (models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&attempt, params.AttemptID).Error; err != nil {
			return err
		}
		if attempt.Status != models.AttemptInProgress {
			return ErrStaleState
		}

		var exam models.Exam
		if err := tx.Preload("Questions.Options").First(&exam, attempt.ExamID).Error; err != nil {
			return err
		}
		if params.Now.After(exam.Deadline(attempt.StartedAt)) {
			return ErrDeadlinePassed
		}

		questions, err := checkAnswers(exam, params.Answers)
		if err != nil {
			return err
		}

		result := tx.Model(&models.ExamAttempt{}).
			Where("id = ? AND status = ?", attempt.ID, models.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":       models.AttemptSubmitted,
				"submitted_at": params.Now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		for _, input := range params.Answers {
			question := questions[input.QuestionID]
			answer := models.Answer{
				AttemptID:        attempt.ID,
				QuestionID:       question.ID,
				SelectedOptionID: input.SelectedOptionID,
				TextAnswer:       input.TextAnswer,
				AnsweredAt:       params.Now,
			}
			if question.AutoGradable() {
				correct := optionIsCorrect(question, input.SelectedOptionID)
				marks := 0
				if correct {
					marks = question.Marks
				}
				answer.IsCorrect = &correct
				answer.MarksObtained = &marks
				answer.GradedAt = &params.Now
			}
			if err := tx.Omit("Question").Create(&answer).Error; err != nil {
				return err
			}
		}

		return finaliseAttempt(tx, &attempt, exam, params.Now)
	})
	if err != nil {
		return models.ExamAttempt{}, err
	}
	return attempt, nil
}

// InvalidAnswerError rejects a submission whose answers do not fit the exam.
type InvalidAnswerError struct {
	QuestionID uint
	Reason     string
}

func (e *InvalidAnswerError) Error() string {
	return fmt.Sprintf("answer for question %d: %s", e.QuestionID, e.Reason)
}

// checkAnswers indexes the exam questions and rejects unknown questions, repeated answers
// and options that belong to another question.
func checkAnswers(exam models.Exam, inputs []AnswerInput) (map[uint]models.Question, error) {
	questions := make(map[uint]models.Question, len(exam.Questions))
	for _, question := range exam.Questions {
		questions[question.ID] = question
	}

	seen := make(map[uint]struct{}, len(inputs))
	for _, input := range inputs {
		question, ok := questions[input.QuestionID]
		if !ok {
			return nil, &InvalidAnswerError{QuestionID: input.QuestionID, Reason: "question is not part of this exam"}
		}
		if _, dup := seen[input.QuestionID]; dup {
			return nil, &InvalidAnswerError{QuestionID: input.QuestionID, Reason: "question answered more than once"}
		}
		seen[input.QuestionID] = struct{}{}

		if input.SelectedOptionID == nil {
			continue
		}
		if !question.AutoGradable() {
			return nil, &InvalidAnswerError{QuestionID: input.QuestionID, Reason: "question does not take a selected option"}
		}
		if !hasOption(question, *input.SelectedOptionID) {
			return nil, &InvalidAnswerError{QuestionID: input.QuestionID, Reason: "selected option does not belong to the question"}
		}
	}
	return questions, nil
}

func hasOption(question models.Question, optionID uint) bool {
	for _, option := range question.Options {
		if option.ID == optionID {
			return true
		}
	}
	return false
}

// GradeAnswer stores a manual score and recomputes the attempt totals.
func (r *attemptRepository) GradeAnswer(ctx context.Context, params AnswerGrade) (models.Answer, models.ExamAttempt, error) {
	var (
		answer  models.Answer
		attempt models.ExamAttempt
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Question").First(&answer, params.AnswerID).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&attempt, answer.AttemptID).Error; err != nil {
			return err
		}
		if attempt.Status == models.AttemptInProgress || attempt.Status == models.AttemptExpired {
			return ErrStaleState
		}

		grader := params.GradedBy
		answer.MarksObtained = &params.Marks
		answer.GradedBy = &grader
		answer.GradedAt = &params.Now
		if err := tx.Model(&models.Answer{}).Where("id = ?", answer.ID).Updates(map[string]interface{}{
			"marks_obtained": params.Marks,
			"graded_by":      grader,
			"graded_at":      params.Now,
		}).Error; err != nil {
			return err
		}

		var exam models.Exam
		if err := tx.First(&exam, attempt.ExamID).Error; err != nil {
			return err
		}
		return finaliseAttempt(tx, &attempt, exam, params.Now)
	})
	if err != nil {
		return models.Answer{}, models.ExamAttempt{}, err
	}
	return answer, attempt, nil
}

// finaliseAttempt sums graded marks and marks the attempt graded once nothing is pending.
func finaliseAttempt(tx *gorm.DB, attempt *models.ExamAttempt, exam models.Exam, now time.Time) error {
	var totals struct {
		Score   int64
		Pending int64
	}
	if err := tx.Model(&models.Answer{}).
		Select("COALESCE(SUM(marks_obtained), 0) AS score, COALESCE(SUM(CASE WHEN marks_obtained IS NULL THEN 1 ELSE 0 END), 0) AS pending").
		Where("attempt_id = ?", attempt.ID).
		Scan(&totals).Error; err != nil {
		return err
	}

	score := int(totals.Score)
	updates := map[string]interface{}{
		"score":     score,
		"is_passed": score >= exam.PassingMarks,
	}
	status := models.AttemptSubmitted
	if totals.Pending == 0 {
		status = models.AttemptGraded
		updates["graded_at"] = now
		attempt.GradedAt = &now
	}
	updates["status"] = status

	if err := tx.Model(&models.ExamAttempt{}).Where("id = ?", attempt.ID).Updates(updates).Error; err != nil {
		return err
	}

	attempt.Score = &score
	attempt.IsPassed = score >= exam.PassingMarks
	attempt.Status = status
	if attempt.SubmittedAt == nil {
		attempt.SubmittedAt = &now
	}
	attempt.Exam = &exam
	return nil
}

func optionIsCorrect(question models.Question, selected *uint) bool {
	if selected == nil {
		return false
	}
	for _, option := range question.Options {
		if option.ID == *selected {
			return option.IsCorrect
		}
	}
	return false
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := r.db.WithContext(ctx).Preload("Exam.Course").First(&attempt, id).Error; err != nil {
		return models.ExamAttempt{}, err
	}
	return attempt, nil
}

func (r *attemptRepository) GetWithAnswers(ctx context.Context, id uint) (models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	err := r.db.WithContext(ctx).
		Preload("Exam").
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("question_id ASC") }).
		First(&attempt, id).Error
	if err != nil {
		return models.ExamAttempt{}, err
	}
	return attempt, nil
}

func (r *attemptRepository) GetAnswer(ctx context.Context, id uint) (models.Answer, error) {
	var answer models.Answer
	if err := r.db.WithContext(ctx).Preload("Question").First(&answer, id).Error; err != nil {
		return models.Answer{}, err
	}
	return answer, nil
}

func (r *attemptRepository) List(ctx context.Context, filter AttemptFilter) ([]models.ExamAttempt, error) {
	query := r.db.WithContext(ctx).Model(&models.ExamAttempt{}).Preload("Answers")
	if filter.ExamID != 0 {
		query = query.Where("exam_id = ?", filter.ExamID)
	}
	if filter.StudentID != 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}

	var attempts []models.ExamAttempt
	if err := query.Order("started_at DESC").Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
