package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// CourseEnrollmentCount ranks a course by its active enrollments.
type CourseEnrollmentCount struct {
	CourseID      uint
	Title         string
	EnrolledCount int64
}

// AdminAnalyticsRepository supplies data for administrator analytics dashboards.
type AdminAnalyticsRepository interface {
	CountUsers(ctx context.Context, until time.Time, role models.Role) (int64, error)
	CountCourses(ctx context.Context, until time.Time, activeOnly bool) (int64, error)
	SumCompletedRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	CountEnrollments(ctx context.Context, from, to time.Time) (int64, error)
	CountActiveEnrollmentsAt(ctx context.Context, at time.Time) (int64, error)
	CountTransactions(ctx context.Context, from, to time.Time) (int64, error)
	PopularCourses(ctx context.Context, limit int) ([]CourseEnrollmentCount, error)
	RecentEnrollments(ctx context.Context, limit int) ([]models.Enrollment, error)
	RecentTransactions(ctx context.Context, limit int) ([]models.FeeTransaction, error)
	RecentCourses(ctx context.Context, limit int) ([]models.Course, error)
}

type adminAnalyticsRepository struct {
	db *gorm.DB
}

// NewAdminAnalyticsRepository constructs the analytics repository.
func NewAdminAnalyticsRepository(db *gorm.DB) AdminAnalyticsRepository {
	return &adminAnalyticsRepository{db: db}
}

// CountUsers counts accounts created up to until. An empty role counts every role.
func (r *adminAnalyticsRepository) CountUsers(ctx context.Context, until time.Time, role models.Role) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{}).Where("created_at <= ?", until)
	if role != "" {
		query = query.Where("role = ?", role)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *adminAnalyticsRepository) CountCourses(ctx context.Context, until time.Time, activeOnly bool) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Course{}).Where("created_at <= ?", until)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *adminAnalyticsRepository) SumCompletedRevenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return sumCompleted(r.db.WithContext(ctx), from, to)
}

func (r *adminAnalyticsRepository) CountEnrollments(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("enrolled_at >= ? AND enrolled_at < ?", from, to).
		Count(&count).Error
	return count, err
}

// CountActiveEnrollmentsAt counts enrollments that had started and were not yet withdrawn at the instant.
func (r *adminAnalyticsRepository) CountActiveEnrollmentsAt(ctx context.Context, at time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("enrolled_at <= ?", at).
		Where("withdrawn_at IS NULL OR withdrawn_at > ?", at).
		Count(&count).Error
	return count, err
}

func (r *adminAnalyticsRepository) CountTransactions(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FeeTransaction{}).
		Where("transaction_date >= ? AND transaction_date < ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *adminAnalyticsRepository) PopularCourses(ctx context.Context, limit int) ([]CourseEnrollmentCount, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []CourseEnrollmentCount
	err := r.db.WithContext(ctx).
		Table("courses").
		Select("courses.id AS course_id, courses.title AS title, COUNT(enrollments.id) AS enrolled_count").
		Joins("LEFT JOIN enrollments ON enrollments.course_id = courses.id AND enrollments.is_active = ?", true).
		Group("courses.id, courses.title").
		Order("enrolled_count DESC").
		Order("courses.id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *adminAnalyticsRepository) RecentEnrollments(ctx context.Context, limit int) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.WithContext(ctx).
		Preload("Student").
		Preload("Course").
		Order("enrolled_at DESC").
		Limit(limit).
		Find(&enrollments).Error
	return enrollments, err
}

func (r *adminAnalyticsRepository) RecentTransactions(ctx context.Context, limit int) ([]models.FeeTransaction, error) {
	var transactions []models.FeeTransaction
	err := r.db.WithContext(ctx).
		Preload("Student").
		Order("transaction_date DESC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}

func (r *adminAnalyticsRepository) RecentCourses(ctx context.Context, limit int) ([]models.Course, error) {
	var courses []models.Course
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&courses).Error
	return courses, err
}
