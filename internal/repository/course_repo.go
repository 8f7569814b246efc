package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// CourseFilter describes catalog filters and pagination.
type CourseFilter struct {
	Search     string
	Difficulty string
	TeacherID  uint
	ActiveOnly bool
	Page       int
	PageSize   int
}

// CourseRepository defines persistence operations for courses and their weekly outlines.
type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, id uint, changes map[string]interface{}) (models.Course, error)
	Delete(ctx context.Context, id uint) error
	GetByID(ctx context.Context, id uint) (models.Course, error)
	GetDetailed(ctx context.Context, id uint) (models.Course, error)
	List(ctx context.Context, filter CourseFilter) ([]models.Course, int64, error)
	Stats(ctx context.Context, courseIDs ...uint) (map[uint]models.CourseStats, error)
	CreateWeek(ctx context.Context, week *models.WeeklyDetail) error
	UpdateWeek(ctx context.Context, week *models.WeeklyDetail) error
	GetWeek(ctx context.Context, courseID uint, weekNumber int) (models.WeeklyDetail, error)
	DeleteWeek(ctx context.Context, courseID uint, weekNumber int) error
	ListWeeks(ctx context.Context, courseID uint) ([]models.WeeklyDetail, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates a GORM-backed repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

// countActiveEnrollments is the single source of a course's enrolled_students_count.
func countActiveEnrollments(db *gorm.DB, courseID uint) (int64, error) {
	var count int64
	err := db.Model(&models.Enrollment{}).
		Where("course_id = ? AND is_active = ?", courseID, true).
		Count(&count).Error
	return count, err
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Omit("Teacher", "WeeklyDetails").Create(course).Error
}

// Update writes only the given columns. The course row is locked first so a lowered
// max_students is checked against the same active count concurrent enrollments see.
func (r *courseRepository) Update(ctx context.Context, id uint, changes map[string]interface{}) (models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&course, id).Error; err != nil {
			return err
		}
		if limit, ok := changes["max_students"].(int); ok {
			enrolled, err := countActiveEnrollments(tx, course.ID)
			if err != nil {
				return err
			}
			if int64(limit) < enrolled {
				return ErrCapacityBelowActive
			}
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&models.Course{}).Where("id = ?", course.ID).Updates(changes).Error; err != nil {
			return err
		}
		return tx.First(&course, course.ID).Error
	})
	if err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", id).Delete(&models.WeeklyDetail{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Course{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) GetDetailed(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).
		Preload("Teacher").
		Preload("WeeklyDetails", func(db *gorm.DB) *gorm.DB { return db.Order("week_number ASC") }).
		First(&course, id).Error
	if err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) List(ctx context.Context, filter CourseFilter) ([]models.Course, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Course{})

	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}
	if filter.TeacherID != 0 {
		query = query.Where("teacher_id = ?", filter.TeacherID)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var courses []models.Course
	if err := paginate(query, filter.Page, filter.PageSize).Preload("Teacher").Order("created_at DESC").Order("id DESC").Find(&courses).Error; err != nil {
		return nil, 0, err
	}

	return courses, total, nil
}

func (r *courseRepository) Stats(ctx context.Context, courseIDs ...uint) (map[uint]models.CourseStats, error) {
	stats := make(map[uint]models.CourseStats, len(courseIDs))
	if len(courseIDs) == 0 {
		return stats, nil
	}
	for _, id := range courseIDs {
		stats[id] = models.CourseStats{CourseID: id}
	}

	type countRow struct {
		CourseID uint
		Total    int64
	}
	var counts []countRow
	if err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Select("course_id, COUNT(*) AS total").
		Where("course_id IN ? AND is_active = ?", courseIDs, true).
		Group("course_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, row := range counts {
		entry := stats[row.CourseID]
		entry.EnrolledCount = row.Total
		stats[row.CourseID] = entry
	}

	type ratingRow struct {
		CourseID uint
		Average  float64
	}
	var ratings []ratingRow
	if err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Select("course_id, AVG(rating) AS average").
		Where("course_id IN ? AND is_active = ? AND rating IS NOT NULL", courseIDs, true).
		Group("course_id").
		Scan(&ratings).Error; err != nil {
		return nil, err
	}
	for _, row := range ratings {
		entry := stats[row.CourseID]
		average := row.Average
		entry.AverageRating = &average
		stats[row.CourseID] = entry
	}

	return stats, nil
}

func (r *courseRepository) CreateWeek(ctx context.Context, week *models.WeeklyDetail) error {
	return r.db.WithContext(ctx).Create(week).Error
}

func (r *courseRepository) UpdateWeek(ctx context.Context, week *models.WeeklyDetail) error {
	return r.db.WithContext(ctx).Save(week).Error
}

func (r *courseRepository) GetWeek(ctx context.Context, courseID uint, weekNumber int) (models.WeeklyDetail, error) {
	var week models.WeeklyDetail
	if err := r.db.WithContext(ctx).
		Where("course_id = ? AND week_number = ?", courseID, weekNumber).
		First(&week).Error; err != nil {
		return models.WeeklyDetail{}, err
	}
	return week, nil
}

func (r *courseRepository) DeleteWeek(ctx context.Context, courseID uint, weekNumber int) error {
	result := r.db.WithContext(ctx).
		Where("course_id = ? AND week_number = ?", courseID, weekNumber).
		Delete(&models.WeeklyDetail{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *courseRepository) ListWeeks(ctx context.Context, courseID uint) ([]models.WeeklyDetail, error) {
	var weeks []models.WeeklyDetail
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("week_number ASC").
		Find(&weeks).Error; err != nil {
		return nil, err
	}
	return weeks, nil
}
