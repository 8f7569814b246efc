package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// ProgressRecord is one weekly upsert together with the completion rule to apply.
type ProgressRecord struct {
	Progress            *models.StudentProgress
	DurationWeeks       int
	CompletionThreshold int
	Now                 time.Time
}

// ProgressFilter narrows progress listings.
type ProgressFilter struct {
	CourseID  uint
	StudentID uint
	CourseIDs []uint
}

// ProgressSummary is the raw aggregate of a course's enrollments.
type ProgressSummary struct {
	TotalStudents     int64
	CompletedStudents int64
	AvgCompletion     float64
	Weekly            []WeeklyAverage
}

// WeeklyAverage is the mean overall score of one week.
type WeeklyAverage struct {
	WeekNumber int
	Average    float64
	Students   int64
}

// ProgressRepository persists weekly progress and keeps enrollment completion in step.
type ProgressRepository interface {
	Record(ctx context.Context, record ProgressRecord) (models.Enrollment, error)
	List(ctx context.Context, filter ProgressFilter) ([]models.StudentProgress, error)
	Summary(ctx context.Context, courseID uint) (ProgressSummary, error)
}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository instantiates a GORM-backed repository.
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

// Record upserts the week and recomputes completion under a lock on the enrollment row.
func (r *progressRepository) Record(ctx context.Context, record ProgressRecord) (models.Enrollment, error) {
	progress := record.Progress
	var enrollment models.Enrollment

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("student_id = ? AND course_id = ? AND is_active = ?", progress.StudentID, progress.CourseID, true).
			First(&enrollment).Error; err != nil {
			return err
		}

		var existing models.StudentProgress
		err := tx.Where("student_id = ? AND course_id = ? AND week_number = ?", progress.StudentID, progress.CourseID, progress.WeekNumber).
			First(&existing).Error
		switch {
		case err == nil:
			progress.ID = existing.ID
			progress.CreatedAt = existing.CreatedAt
			if err := tx.Save(progress).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(progress).Error; err != nil {
				return err
			}
		default:
			return err
		}

		var passed int64
		if err := tx.Model(&models.StudentProgress{}).
			Where("student_id = ? AND course_id = ? AND week_number <= ? AND overall_score >= ?",
				progress.StudentID, progress.CourseID, record.DurationWeeks, record.CompletionThreshold).
			Count(&passed).Error; err != nil {
			return err
		}

		percentage := models.CompletionPercentage(passed, record.DurationWeeks)
		updates := map[string]interface{}{"completion_percentage": percentage}
		switch {
		case percentage >= 100 && enrollment.CompletedAt == nil:
			updates["completed_at"] = record.Now
			enrollment.CompletedAt = &record.Now
		case percentage < 100 && enrollment.CompletedAt != nil:
			updates["completed_at"] = nil
			enrollment.CompletedAt = nil
		}

		if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).Updates(updates).Error; err != nil {
			return err
		}
		enrollment.CompletionPercentage = percentage
		return nil
	})
	if err != nil {
		return models.Enrollment{}, err
	}

	return enrollment, nil
}

func (r *progressRepository) List(ctx context.Context, filter ProgressFilter) ([]models.StudentProgress, error) {
	query := r.db.WithContext(ctx).Model(&models.StudentProgress{})
	if filter.CourseID != 0 {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.StudentID != 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.CourseIDs != nil {
		query = query.Where("course_id IN ?", filter.CourseIDs)
	}

	var rows []models.StudentProgress
	if err := query.Order("course_id ASC").Order("student_id ASC").Order("week_number ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *progressRepository) Summary(ctx context.Context, courseID uint) (ProgressSummary, error) {
	db := r.db.WithContext(ctx)
	var summary ProgressSummary

	type enrollmentAggregate struct {
		Total     int64
		Completed int64
		Average   float64
	}
	var aggregate enrollmentAggregate
	if err := db.Model(&models.Enrollment{}).
		Select("COUNT(*) AS total, COUNT(completed_at) AS completed, COALESCE(AVG(completion_percentage), 0) AS average").
		Where("course_id = ? AND is_active = ?", courseID, true).
		Scan(&aggregate).Error; err != nil {
		return ProgressSummary{}, err
	}
	summary.TotalStudents = aggregate.Total
	summary.CompletedStudents = aggregate.Completed
	summary.AvgCompletion = aggregate.Average

	if err := db.Model(&models.StudentProgress{}).
		Select("week_number, AVG(overall_score) AS average, COUNT(*) AS students").
		Where("course_id = ?", courseID).
		Group("week_number").
		Order("week_number ASC").
		Scan(&summary.Weekly).Error; err != nil {
		return ProgressSummary{}, err
	}

	return summary, nil
}
