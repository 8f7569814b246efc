package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// ExamFilter narrows exam listings. Status is evaluated against Now.
type ExamFilter struct {
	CourseID   uint
	CourseIDs  []uint
	Status     string
	ActiveOnly bool
	Now        time.Time
}

// ErrExamHasAttempts blocks structural changes to an exam students have already sat.
var ErrExamHasAttempts = errors.New("exam already has attempts")

// MarksExceededError reports question marks that would not fit the exam total.
type MarksExceededError struct {
	Allocated int64
	Total     int
}

func (e *MarksExceededError) Error() string {
	return fmt.Sprintf("question marks (%d) exceed the exam total of %d", e.Allocated, e.Total)
}

// ExamRepository persists exams and their question banks.
type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id uint) (models.Exam, error)
	GetWithQuestions(ctx context.Context, id uint) (models.Exam, error)
	List(ctx context.Context, filter ExamFilter) ([]models.Exam, error)
	Delete(ctx context.Context, id uint) error
	AddQuestions(ctx context.Context, examID uint, questions []models.Question) ([]models.Question, error)
	ReplaceQuestion(ctx context.Context, question models.Question) (models.Question, error)
	DeleteQuestion(ctx context.Context, id uint) error
	GetQuestion(ctx context.Context, id uint) (models.Question, error)
	HasAttempt(ctx context.Context, examID, studentID uint) (bool, error)
}

type examRepository struct {
	db *gorm.DB
}

// NewExamRepository instantiates a GORM-backed repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) Create(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Omit("Course", "Questions").Create(exam).Error
}

// Update saves exam attributes once the new total still covers the allocated question marks.
func (r *examRepository) Update(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockExam(tx, exam.ID); err != nil {
			return err
		}
		allocated, err := allocatedMarks(tx, exam.ID, 0)
		if err != nil {
			return err
		}
		if allocated > int64(exam.TotalMarks) {
			return &MarksExceededError{Allocated: allocated, Total: exam.TotalMarks}
		}
		return tx.Model(&models.Exam{}).Where("id = ?", exam.ID).Updates(map[string]interface{}{
			"title":            exam.Title,
			"description":      exam.Description,
			"instructions":     exam.Instructions,
			"duration_minutes": exam.DurationMinutes,
			"total_marks":      exam.TotalMarks,
			"passing_marks":    exam.PassingMarks,
			"start_time":       exam.StartTime,
			"end_time":         exam.EndTime,
			"is_active":        exam.IsActive,
		}).Error
	})
}

// Delete removes an exam and its question bank while no attempt references it.
func (r *examRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockExam(tx, id); err != nil {
			return err
		}
		if err := ensureNoAttempts(tx, id); err != nil {
			return err
		}
		questionIDs := tx.Model(&models.Question{}).Select("id").Where("exam_id = ?", id)
		if err := tx.Where("question_id IN (?)", questionIDs).Delete(&models.QuestionOption{}).Error; err != nil {
			return err
		}
		if err := tx.Where("exam_id = ?", id).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Exam{}, id).Error
	})
}

func (r *examRepository) GetByID(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).Preload("Course").First(&exam, id).Error; err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) GetWithQuestions(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	err := r.db.WithContext(ctx).
		Preload("Course").
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC").Order("id ASC") }).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC").Order("id ASC") }).
		First(&exam, id).Error
	if err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) List(ctx context.Context, filter ExamFilter) ([]models.Exam, error) {
	query := r.db.WithContext(ctx).Model(&models.Exam{}).Preload("Course")

	if filter.CourseID != 0 {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.CourseIDs != nil {
		query = query.Where("course_id IN ?", filter.CourseIDs)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	now := filter.Now
	switch filter.Status {
	case models.ExamStateUpcoming:
		query = query.Where("start_time > ?", now)
	case models.ExamStateActive:
		query = query.Where("start_time <= ? AND end_time >= ?", now, now)
	case models.ExamStateEnded:
		query = query.Where("end_time < ?", now)
	}

	var exams []models.Exam
	if err := query.Order("start_time ASC").Find(&exams).Error; err != nil {
		return nil, err
	}
	return exams, nil
}

// AddQuestions inserts questions with their options atomically. The exam row is locked so
// concurrent additions cannot together overrun total_marks.
func (r *examRepository) AddQuestions(ctx context.Context, examID uint, questions []models.Question) ([]models.Question, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exam, err := lockExam(tx, examID)
		if err != nil {
			return err
		}
		allocated, err := allocatedMarks(tx, examID, 0)
		if err != nil {
			return err
		}
		for _, question := range questions {
			allocated += int64(question.Marks)
		}
		if allocated > int64(exam.TotalMarks) {
			return &MarksExceededError{Allocated: allocated, Total: exam.TotalMarks}
		}

		for i := range questions {
			questions[i].ExamID = examID
			options := questions[i].Options
			questions[i].Options = nil
			if err := tx.Create(&questions[i]).Error; err != nil {
				return err
			}
			if err := createOptions(tx, questions[i].ID, options); err != nil {
				return err
			}
			questions[i].Options = options
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// ReplaceQuestion overwrites a question and its options. Questions are frozen once the exam has attempts.
func (r *examRepository) ReplaceQuestion(ctx context.Context, question models.Question) (models.Question, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Question
		if err := tx.First(&current, question.ID).Error; err != nil {
			return err
		}
		exam, err := lockExam(tx, current.ExamID)
		if err != nil {
			return err
		}
		if err := ensureNoAttempts(tx, exam.ID); err != nil {
			return err
		}
		allocated, err := allocatedMarks(tx, exam.ID, current.ID)
		if err != nil {
			return err
		}
		allocated += int64(question.Marks)
		if allocated > int64(exam.TotalMarks) {
			return &MarksExceededError{Allocated: allocated, Total: exam.TotalMarks}
		}

		if err := tx.Model(&models.Question{}).Where("id = ?", current.ID).Updates(map[string]interface{}{
			"text":          question.Text,
			"question_type": question.QuestionType,
			"marks":         question.Marks,
			"sort_order":    question.Order,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", current.ID).Delete(&models.QuestionOption{}).Error; err != nil {
			return err
		}
		options := question.Options
		if err := createOptions(tx, current.ID, options); err != nil {
			return err
		}

		question.ExamID = current.ExamID
		question.CreatedAt = current.CreatedAt
		question.Options = options
		return nil
	})
	if err != nil {
		return models.Question{}, err
	}
	return question, nil
}

// DeleteQuestion removes a question while the exam has no attempts.
func (r *examRepository) DeleteQuestion(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var question models.Question
		if err := tx.First(&question, id).Error; err != nil {
			return err
		}
		if _, err := lockExam(tx, question.ExamID); err != nil {
			return err
		}
		if err := ensureNoAttempts(tx, question.ExamID); err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", id).Delete(&models.QuestionOption{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Question{}, id).Error
	})
}

func (r *examRepository) GetQuestion(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).Preload("Options").First(&question, id).Error; err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (r *examRepository) HasAttempt(ctx context.Context, examID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Count(&count).Error
	return count > 0, err
}

func lockExam(tx *gorm.DB, id uint) (models.Exam, error) {
	var exam models.Exam
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&exam, id).Error
	return exam, err
}

// allocatedMarks sums question marks of an exam, leaving out one question when excludeID is set.
func allocatedMarks(tx *gorm.DB, examID, excludeID uint) (int64, error) {
	query := tx.Model(&models.Question{}).Select("COALESCE(SUM(marks), 0)").Where("exam_id = ?", examID)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var total int64
	err := query.Row().Scan(&total)
	return total, err
}

func ensureNoAttempts(tx *gorm.DB, examID uint) error {
	var attempts int64
	if err := tx.Model(&models.ExamAttempt{}).Where("exam_id = ?", examID).Count(&attempts).Error; err != nil {
		return err
	}
	if attempts > 0 {
		return ErrExamHasAttempts
	}
	return nil
}

func createOptions(tx *gorm.DB, questionID uint, options []models.QuestionOption) error {
	for i := range options {
		options[i].ID = 0
		options[i].QuestionID = questionID
		if err := tx.Create(&options[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
