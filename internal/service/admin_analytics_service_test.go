package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

var analyticsNow = time.Date(2024, time.June, 30, 12, 0, 0, 0, time.UTC)

type fakeAnalyticsRepo struct {
	usersAt       map[time.Time]int64
	coursesAt     map[time.Time]int64
	activeAt      map[time.Time]int64
	revenueFrom   map[time.Time]decimal.Decimal
	enrollFrom    map[time.Time]int64
	totalRevenue  decimal.Decimal
	popular       []repository.CourseEnrollmentCount
	enrollments   []models.Enrollment
	transactions  []models.FeeTransaction
	courses       []models.Course
	lastPopularN  int
	studentsCount int64
}

func (f *fakeAnalyticsRepo) CountUsers(_ context.Context, until time.Time, role models.Role) (int64, error) {
	if role == models.RoleStudent {
		return f.studentsCount, nil
	}
	return f.usersAt[until], nil
}

func (f *fakeAnalyticsRepo) CountCourses(_ context.Context, until time.Time, _ bool) (int64, error) {
	return f.coursesAt[until], nil
}

func (f *fakeAnalyticsRepo) SumCompletedRevenue(_ context.Context, from, _ time.Time) (decimal.Decimal, error) {
	if from.IsZero() {
		return f.totalRevenue, nil
	}
	return f.revenueFrom[from], nil
}

func (f *fakeAnalyticsRepo) CountEnrollments(_ context.Context, from, _ time.Time) (int64, error) {
	return f.enrollFrom[from], nil
}

func (f *fakeAnalyticsRepo) CountActiveEnrollmentsAt(_ context.Context, at time.Time) (int64, error) {
	return f.activeAt[at], nil
}

func (f *fakeAnalyticsRepo) CountTransactions(context.Context, time.Time, time.Time) (int64, error) {
	return int64(len(f.transactions)), nil
}

func (f *fakeAnalyticsRepo) PopularCourses(_ context.Context, limit int) ([]repository.CourseEnrollmentCount, error) {
	f.lastPopularN = limit
	return f.popular, nil
}

func (f *fakeAnalyticsRepo) RecentEnrollments(context.Context, int) ([]models.Enrollment, error) {
	return f.enrollments, nil
}

func (f *fakeAnalyticsRepo) RecentTransactions(context.Context, int) ([]models.FeeTransaction, error) {
	return f.transactions, nil
}

func (f *fakeAnalyticsRepo) RecentCourses(context.Context, int) ([]models.Course, error) {
	return f.courses, nil
}

func newTestAnalytics(repo repository.AdminAnalyticsRepository) *adminAnalyticsService {
	svc := NewAdminAnalyticsService(repo, testLogger()).(*adminAnalyticsService)
	svc.now = func() time.Time { return analyticsNow }
	return svc
}

var analyticsAdmin = policy.Principal{ID: 1, Role: models.RoleAdmin}

func TestParseTimeRange(t *testing.T) {
	key, span, err := ParseTimeRange("")
	require.NoError(t, err)
	require.Equal(t, "30d", key)
	require.Equal(t, 30*24*time.Hour, span)

	key, span, err = ParseTimeRange(" 7D ")
	require.NoError(t, err)
	require.Equal(t, "7d", key)
	require.Equal(t, 7*24*time.Hour, span)

	_, _, err = ParseTimeRange("1y")
	require.ErrorIs(t, err, ErrValidation)
}

func TestPctChange(t *testing.T) {
	require.Equal(t, 0.0, pctChange(10, 0))
	require.Equal(t, 50.0, pctChange(15, 10))
	require.Equal(t, -33.33, pctChange(20, 30))
}

func TestAdminAnalyticsComparesWindows(t *testing.T) {
	week := 7 * 24 * time.Hour
	start := analyticsNow.Add(-week)
	prevStart := start.Add(-week)

	repo := &fakeAnalyticsRepo{
		usersAt:     map[time.Time]int64{analyticsNow: 120, start: 100},
		coursesAt:   map[time.Time]int64{analyticsNow: 10, start: 8},
		activeAt:    map[time.Time]int64{analyticsNow: 90, start: 100, prevStart: 50},
		revenueFrom: map[time.Time]decimal.Decimal{start: decimal.NewFromInt(150)},
		enrollFrom:  map[time.Time]int64{start: 30, prevStart: 20},
	}
	svc := newTestAnalytics(repo)

	report, err := svc.GetAnalytics(context.Background(), analyticsAdmin, "7d")
	require.NoError(t, err)
	require.Equal(t, "7d", report.TimeRange)
	require.Equal(t, start, report.WindowStart)
	require.Equal(t, int64(120), report.TotalUsers)
	require.Equal(t, 20.0, report.TotalUsersChange)
	require.Equal(t, 25.0, report.ActiveCoursesChange)
	require.True(t, report.TotalRevenue.Equal(decimal.NewFromInt(150)))
	require.Equal(t, 0.0, report.TotalRevenueChange)
	require.Equal(t, 50.0, report.TotalEnrollmentsChange)
	require.Equal(t, 90.0, report.RetentionRate)
	require.Equal(t, -55.0, report.RetentionRateChange)
}

func TestAdminAnalyticsRejectsNonAdmins(t *testing.T) {
	svc := newTestAnalytics(&fakeAnalyticsRepo{})

	_, err := svc.GetStats(context.Background(), policy.Principal{ID: 4, Role: models.RoleTeacher}, "30d")
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.GetAnalytics(context.Background(), analyticsAdmin, "2w")
	require.ErrorIs(t, err, ErrValidation)
}

func TestAdminStatsUsesAllTimeRevenue(t *testing.T) {
	repo := &fakeAnalyticsRepo{
		usersAt:       map[time.Time]int64{analyticsNow: 12},
		coursesAt:     map[time.Time]int64{analyticsNow: 3},
		totalRevenue:  decimal.RequireFromString("420.50"),
		studentsCount: 9,
		popular:       []repository.CourseEnrollmentCount{{CourseID: 2, Title: "Go", EnrolledCount: 7}},
	}
	svc := newTestAnalytics(repo)

	stats, err := svc.GetStats(context.Background(), analyticsAdmin, "")
	require.NoError(t, err)
	require.Equal(t, "30d", stats.TimeRange)
	require.Equal(t, int64(12), stats.TotalUsers)
	require.Equal(t, int64(9), stats.TotalStudents)
	require.Equal(t, "420.5", stats.TotalRevenue.String())
	require.Equal(t, popularCoursesLimit, repo.lastPopularN)
	require.Len(t, stats.PopularCourses, 1)
	require.Equal(t, int64(7), stats.PopularCourses[0].EnrolledCount)
}

func TestRecentActivityMergesNewestFirst(t *testing.T) {
	repo := &fakeAnalyticsRepo{
		enrollments: []models.Enrollment{{
			ID:         1,
			EnrolledAt: analyticsNow.Add(-2 * time.Hour),
			Student:    &models.User{Username: "ana", FirstName: "Ana", LastName: "Diaz"},
			Course:     &models.Course{Title: "Algebra"},
		}},
		transactions: []models.FeeTransaction{{
			ID:              2,
			Amount:          decimal.NewFromInt(50),
			TransactionType: models.TransactionCourse,
			PaymentStatus:   models.PaymentCompleted,
			TransactionDate: analyticsNow.Add(-time.Hour),
		}},
		courses: []models.Course{{ID: 3, Title: "Physics", CreatedAt: analyticsNow.Add(-3 * time.Hour)}},
	}
	svc := newTestAnalytics(repo)

	items, err := svc.RecentActivity(context.Background(), analyticsAdmin)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, RecentTransaction, items[0].Type)
	require.Equal(t, RecentEnrollment, items[1].Type)
	require.Equal(t, "Ana Diaz enrolled in Algebra", items[1].Description)
	require.Equal(t, RecentCourse, items[2].Type)
}
