package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

const (
	defaultTimeRange    = "30d"
	popularCoursesLimit = 5
	recentActivityLimit = 15
)

var timeRanges = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// Recent activity item types.
const (
	RecentEnrollment  = "enrollment"
	RecentTransaction = "transaction"
	RecentCourse      = "course"
)

// AdminAnalyticsService aggregates platform statistics for the admin dashboard.
type AdminAnalyticsService interface {
	GetStats(ctx context.Context, principal policy.Principal, timeRange string) (dto.AdminStatsResponse, error)
	GetAnalytics(ctx context.Context, principal policy.Principal, timeRange string) (dto.AdminAnalyticsResponse, error)
	RecentActivity(ctx context.Context, principal policy.Principal) ([]dto.RecentActivityItem, error)
}

type adminAnalyticsService struct {
	repo   repository.AdminAnalyticsRepository
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewAdminAnalyticsService constructs the analytics service. Figures are computed on every call.
func NewAdminAnalyticsService(repo repository.AdminAnalyticsRepository, logger zerolog.Logger) AdminAnalyticsService {
	return &adminAnalyticsService{
		repo:   repo,
		logger: logger.With().Str("component", "admin_analytics_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/eduportal-api/internal/service/admin_analytics"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ParseTimeRange resolves 7d, 30d or 90d. Empty input selects 30d.
func ParseTimeRange(raw string) (string, time.Duration, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		key = defaultTimeRange
	}
	span, ok := timeRanges[key]
	if !ok {
		return "", 0, validationError("time_range must be one of 7d, 30d or 90d")
	}
	return key, span, nil
}

func (s *adminAnalyticsService) GetStats(ctx context.Context, principal policy.Principal, timeRange string) (dto.AdminStatsResponse, error) {
	if err := authorize(policy.CanViewAnalytics(principal)); err != nil {
		return dto.AdminStatsResponse{}, err
	}
	key, window, err := ParseTimeRange(timeRange)
	if err != nil {
		return dto.AdminStatsResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "analytics.stats", trace.WithAttributes(attribute.String("analytics.range", key)))
	defer span.End()

	now := s.now()
	from := now.Add(-window)
	stats := dto.AdminStatsResponse{TimeRange: key, GeneratedAt: now}

	fail := func(step string, err error) (dto.AdminStatsResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, step+"_failed")
		return dto.AdminStatsResponse{}, unexpected("admin stats: "+step, err)
	}

	if stats.TotalUsers, err = s.repo.CountUsers(ctx, now, ""); err != nil {
		return fail("count_users", err)
	}
	if stats.TotalStudents, err = s.repo.CountUsers(ctx, now, models.RoleStudent); err != nil {
		return fail("count_students", err)
	}
	if stats.TotalTeachers, err = s.repo.CountUsers(ctx, now, models.RoleTeacher); err != nil {
		return fail("count_teachers", err)
	}
	if stats.TotalCourses, err = s.repo.CountCourses(ctx, now, false); err != nil {
		return fail("count_courses", err)
	}
	if stats.ActiveCourses, err = s.repo.CountCourses(ctx, now, true); err != nil {
		return fail("count_active_courses", err)
	}
	if stats.TotalRevenue, err = s.repo.SumCompletedRevenue(ctx, time.Time{}, time.Time{}); err != nil {
		return fail("sum_revenue", err)
	}
	if stats.RecentEnrollments, err = s.repo.CountEnrollments(ctx, from, now); err != nil {
		return fail("count_enrollments", err)
	}
	if stats.RecentTransactions, err = s.repo.CountTransactions(ctx, from, now); err != nil {
		return fail("count_transactions", err)
	}

	popular, err := s.repo.PopularCourses(ctx, popularCoursesLimit)
	if err != nil {
		return fail("popular_courses", err)
	}
	stats.PopularCourses = make([]dto.PopularCourse, 0, len(popular))
	for _, course := range popular {
		stats.PopularCourses = append(stats.PopularCourses, dto.PopularCourse{
			CourseID:      course.CourseID,
			Title:         course.Title,
			EnrolledCount: course.EnrolledCount,
		})
	}
	return stats, nil
}

// windowFigures holds the raw values measured for one window.
type windowFigures struct {
	users       int64
	courses     int64
	revenue     decimal.Decimal
	enrollments int64
	retention   float64
}

// GetAnalytics compares the window ending now with the window of equal length before it.
func (s *adminAnalyticsService) GetAnalytics(ctx context.Context, principal policy.Principal, timeRange string) (dto.AdminAnalyticsResponse, error) {
	if err := authorize(policy.CanViewAnalytics(principal)); err != nil {
		return dto.AdminAnalyticsResponse{}, err
	}
	key, window, err := ParseTimeRange(timeRange)
	if err != nil {
		return dto.AdminAnalyticsResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "analytics.compare", trace.WithAttributes(attribute.String("analytics.range", key)))
	defer span.End()

	now := s.now()
	start := now.Add(-window)

	current, err := s.measure(ctx, start, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "current_window_failed")
		return dto.AdminAnalyticsResponse{}, unexpected("admin analytics", err)
	}
	previous, err := s.measure(ctx, start.Add(-window), start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "previous_window_failed")
		return dto.AdminAnalyticsResponse{}, unexpected("admin analytics", err)
	}

	return dto.AdminAnalyticsResponse{
		TimeRange:              key,
		WindowStart:            start,
		WindowEnd:              now,
		TotalUsers:             current.users,
		TotalUsersChange:       pctChange(float64(current.users), float64(previous.users)),
		ActiveCourses:          current.courses,
		ActiveCoursesChange:    pctChange(float64(current.courses), float64(previous.courses)),
		TotalRevenue:           current.revenue,
		TotalRevenueChange:     pctChange(current.revenue.InexactFloat64(), previous.revenue.InexactFloat64()),
		TotalEnrollments:       current.enrollments,
		TotalEnrollmentsChange: pctChange(float64(current.enrollments), float64(previous.enrollments)),
		RetentionRate:          round2(current.retention),
		RetentionRateChange:    pctChange(current.retention, previous.retention),
		GeneratedAt:            now,
	}, nil
}

func (s *adminAnalyticsService) measure(ctx context.Context, from, to time.Time) (windowFigures, error) {
	var figures windowFigures
	var err error

	if figures.users, err = s.repo.CountUsers(ctx, to, ""); err != nil {
		return windowFigures{}, err
	}
	if figures.courses, err = s.repo.CountCourses(ctx, to, true); err != nil {
		return windowFigures{}, err
	}
	if figures.revenue, err = s.repo.SumCompletedRevenue(ctx, from, to); err != nil {
		return windowFigures{}, err
	}
	if figures.enrollments, err = s.repo.CountEnrollments(ctx, from, to); err != nil {
		return windowFigures{}, err
	}

	activeAtStart, err := s.repo.CountActiveEnrollmentsAt(ctx, from)
	if err != nil {
		return windowFigures{}, err
	}
	activeAtEnd, err := s.repo.CountActiveEnrollmentsAt(ctx, to)
	if err != nil {
		return windowFigures{}, err
	}
	if activeAtStart > 0 {
		figures.retention = float64(activeAtEnd) / float64(activeAtStart) * 100
	}
	return figures, nil
}

// RecentActivity merges the newest enrollments, transactions and courses into one timeline.
func (s *adminAnalyticsService) RecentActivity(ctx context.Context, principal policy.Principal) ([]dto.RecentActivityItem, error) {
	if err := authorize(policy.CanViewAnalytics(principal)); err != nil {
		return nil, err
	}

	enrollments, err := s.repo.RecentEnrollments(ctx, recentActivityLimit)
	if err != nil {
		return nil, unexpected("recent enrollments", err)
	}
	transactions, err := s.repo.RecentTransactions(ctx, recentActivityLimit)
	if err != nil {
		return nil, unexpected("recent transactions", err)
	}
	courses, err := s.repo.RecentCourses(ctx, recentActivityLimit)
	if err != nil {
		return nil, unexpected("recent courses", err)
	}

	items := make([]dto.RecentActivityItem, 0, len(enrollments)+len(transactions)+len(courses))
	for _, enrollment := range enrollments {
		student, course := "A student", "a course"
		if enrollment.Student != nil {
			student = enrollment.Student.FullName()
		}
		if enrollment.Course != nil {
			course = enrollment.Course.Title
		}
		items = append(items, dto.RecentActivityItem{
			Type:        RecentEnrollment,
			Description: fmt.Sprintf("%s enrolled in %s", student, course),
			Timestamp:   enrollment.EnrolledAt,
			EntityID:    enrollment.ID,
		})
	}
	for _, txn := range transactions {
		payer := "A student"
		if txn.Student != nil {
			payer = txn.Student.FullName()
		}
		items = append(items, dto.RecentActivityItem{
			Type:        RecentTransaction,
			Description: fmt.Sprintf("%s: %s %s payment (%s)", payer, txn.Amount.StringFixed(2), txn.TransactionType, txn.PaymentStatus),
			Timestamp:   txn.TransactionDate,
			EntityID:    txn.ID,
		})
	}
	for _, course := range courses {
		items = append(items, dto.RecentActivityItem{
			Type:        RecentCourse,
			Description: fmt.Sprintf("Course %q was created", course.Title),
			Timestamp:   course.CreatedAt,
			EntityID:    course.ID,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > recentActivityLimit {
		items = items[:recentActivityLimit]
	}
	return items, nil
}

// pctChange is (current - previous) / previous * 100 rounded to two decimals, or 0 without a baseline.
func pctChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return round2((current - previous) / previous * 100)
}
