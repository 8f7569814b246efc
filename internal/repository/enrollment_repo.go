package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// EnrollParams describes one enrollment request. FeeTemplate, when set, is completed with the
// course fee and written in the same transaction if the fee is positive.
type EnrollParams struct {
	StudentID   uint
	CourseID    uint
	Now         time.Time
	FeeTemplate *models.FeeTransaction
}

// EnrollmentRepository persists enrollments and guards the capacity invariant.
type EnrollmentRepository interface {
	Enroll(ctx context.Context, params EnrollParams) (models.Enrollment, *models.FeeTransaction, error)
	Withdraw(ctx context.Context, studentID, courseID uint, now time.Time) (models.Enrollment, error)
	GetActive(ctx context.Context, studentID, courseID uint) (models.Enrollment, error)
	IsActivelyEnrolled(ctx context.Context, studentID, courseID uint) (bool, error)
	ActiveCourseIDs(ctx context.Context, studentID uint) ([]uint, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID uint, activeOnly bool) ([]models.Enrollment, error)
	Rate(ctx context.Context, studentID, courseID uint, rating int, review string) (models.Enrollment, error)
	CountActive(ctx context.Context, courseID uint) (int64, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates a GORM-backed repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

// Enroll locks the course row before reading the active count so concurrent requests
// cannot both observe a free seat.
func (r *enrollmentRepository) Enroll(ctx context.Context, params EnrollParams) (models.Enrollment, *models.FeeTransaction, error) {
	var (
		enrollment models.Enrollment
		fee        *models.FeeTransaction
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course models.Course
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&course, params.CourseID).Error; err != nil {
			return err
		}
		if !course.IsActive {
			return ErrCourseClosed
		}

		var existing int64
		if err := tx.Model(&models.Enrollment{}).
			Where("student_id = ? AND course_id = ? AND is_active = ?", params.StudentID, params.CourseID, true).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateActive
		}

		enrolled, err := countActiveEnrollments(tx, course.ID)
		if err != nil {
			return err
		}
		if enrolled >= int64(course.MaxStudents) {
			return ErrCourseFull
		}

		enrollment = models.Enrollment{
			StudentID:  params.StudentID,
			CourseID:   params.CourseID,
			EnrolledAt: params.Now,
			IsActive:   true,
		}
		if err := tx.Omit("Student", "Course").Create(&enrollment).Error; err != nil {
			if IsUniqueViolation(err) {
				return ErrDuplicateActive
			}
			return err
		}

		if params.FeeTemplate != nil && course.Fee.IsPositive() {
			record := *params.FeeTemplate
			record.StudentID = params.StudentID
			record.CourseID = &course.ID
			record.Amount = course.Fee
			if err := tx.Omit("Student").Create(&record).Error; err != nil {
				return err
			}
			fee = &record
		}

		enrollment.Course = &course
		return nil
	})
	if err != nil {
		return models.Enrollment{}, nil, err
	}

	return enrollment, fee, nil
}

func (r *enrollmentRepository) Withdraw(ctx context.Context, studentID, courseID uint, now time.Time) (models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("student_id = ? AND course_id = ? AND is_active = ?", studentID, courseID, true).
			First(&enrollment).Error; err != nil {
			return err
		}

		result := tx.Model(&models.Enrollment{}).
			Where("id = ? AND is_active = ?", enrollment.ID, true).
			Updates(map[string]interface{}{"is_active": false, "withdrawn_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		enrollment.IsActive = false
		enrollment.WithdrawnAt = &now
		return nil
	})
	if err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *enrollmentRepository) GetActive(ctx context.Context, studentID, courseID uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND is_active = ?", studentID, courseID, true).
		First(&enrollment).Error; err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *enrollmentRepository) IsActivelyEnrolled(ctx context.Context, studentID, courseID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND is_active = ?", studentID, courseID, true).
		Count(&count).Error
	return count > 0, err
}

func (r *enrollmentRepository) ActiveCourseIDs(ctx context.Context, studentID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ? AND is_active = ?", studentID, true).
		Pluck("course_id", &ids).Error
	return ids, err
}

func (r *enrollmentRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.db.WithContext(ctx).
		Preload("Course").
		Where("student_id = ?", studentID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *enrollmentRepository) ListByCourse(ctx context.Context, courseID uint, activeOnly bool) ([]models.Enrollment, error) {
	query := r.db.WithContext(ctx).Preload("Student").Where("course_id = ?", courseID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var enrollments []models.Enrollment
	if err := query.Order("enrolled_at ASC").Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *enrollmentRepository) Rate(ctx context.Context, studentID, courseID uint, rating int, review string) (models.Enrollment, error) {
	enrollment, err := r.GetActive(ctx, studentID, courseID)
	if err != nil {
		return models.Enrollment{}, err
	}

	if err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", enrollment.ID).
		Updates(map[string]interface{}{"rating": rating, "review": review}).Error; err != nil {
		return models.Enrollment{}, err
	}

	enrollment.Rating = &rating
	enrollment.Review = review
	return enrollment, nil
}

func (r *enrollmentRepository) CountActive(ctx context.Context, courseID uint) (int64, error) {
	return countActiveEnrollments(r.db.WithContext(ctx), courseID)
}
