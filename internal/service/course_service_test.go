package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

func newCourseService(db *gorm.DB, activity ActivityRecorder) CourseService {
	return NewCourseService(
		repository.NewCourseRepository(db),
		repository.NewEnrollmentRepository(db),
		repository.NewUserRepository(db),
		activity,
		testValidator(),
		testLogger(),
	)
}

func courseRequest(title string) dto.CourseCreateRequest {
	return dto.CourseCreateRequest{
		Title:         title,
		Description:   "An introduction",
		Difficulty:    models.DifficultyBeginner,
		DurationWeeks: 6,
		Fee:           decimal.RequireFromString("49.999"),
		MaxStudents:   2,
	}
}

func TestCourseCreateOwnership(t *testing.T) {
	db := setupServiceDB(t)
	admin := createUser(t, db, "admin", models.RoleAdmin)
	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	other := createUser(t, db, "other", models.RoleTeacher)
	student := createUser(t, db, "student", models.RoleStudent)
	activity := &recordingActivity{}
	svc := newCourseService(db, activity)
	ctx := context.Background()

	course, err := svc.Create(ctx, principalOf(teacher), courseRequest("Go Basics"))
	require.NoError(t, err)
	require.Equal(t, teacher.ID, course.TeacherID)
	require.True(t, course.Fee.Equal(decimal.RequireFromString("50")))
	require.Equal(t, int64(2), course.AvailableSeats)

	foreign := courseRequest("Not mine")
	foreign.TeacherID = other.ID
	_, err = svc.Create(ctx, principalOf(teacher), foreign)
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Create(ctx, principalOf(student), courseRequest("Student course"))
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Create(ctx, principalOf(admin), courseRequest("No teacher"))
	require.ErrorIs(t, err, ErrValidation)

	assigned := courseRequest("Assigned")
	assigned.TeacherID = student.ID
	_, err = svc.Create(ctx, principalOf(admin), assigned)
	require.ErrorIs(t, err, ErrValidation)

	negative := courseRequest("Negative")
	negative.Fee = decimal.NewFromInt(-5)
	_, err = svc.Create(ctx, principalOf(teacher), negative)
	require.ErrorIs(t, err, ErrValidation)

	assigned.TeacherID = other.ID
	created, err := svc.Create(ctx, principalOf(admin), assigned)
	require.NoError(t, err)
	require.Equal(t, other.ID, created.TeacherID)

	title := "Go Fundamentals"
	_, err = svc.Update(ctx, principalOf(other), course.ID, dto.CourseUpdateRequest{Title: &title})
	require.ErrorIs(t, err, ErrPermissionDenied)
	updated, err := svc.Update(ctx, principalOf(teacher), course.ID, dto.CourseUpdateRequest{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)

	require.Equal(t, []string{ActionCourseCreated, ActionCourseCreated}, activity.actions())
}

func TestCourseCapacityAndDeletionGuards(t *testing.T) {
	db := setupServiceDB(t)
	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	alice := createUser(t, db, "alice", models.RoleStudent)
	bob := createUser(t, db, "bob", models.RoleStudent)
	svc := newCourseService(db, nil)
	ctx := context.Background()

	course, err := svc.Create(ctx, principalOf(teacher), courseRequest("Databases"))
	require.NoError(t, err)
	for _, student := range []models.User{alice, bob} {
		require.NoError(t, db.Create(&models.Enrollment{StudentID: student.ID, CourseID: course.ID, EnrolledAt: time.Now().UTC(), IsActive: true}).Error)
	}

	one := 1
	_, err = svc.Update(ctx, principalOf(teacher), course.ID, dto.CourseUpdateRequest{MaxStudents: &one})
	require.ErrorIs(t, err, ErrConflict)

	detail, err := svc.Get(ctx, course.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), detail.EnrolledStudentsCount)
	require.Zero(t, detail.AvailableSeats)

	require.ErrorIs(t, svc.Delete(ctx, principalOf(teacher), course.ID), ErrConflict)

	roster, err := svc.ListStudents(ctx, principalOf(teacher), course.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	_, err = svc.ListStudents(ctx, principalOf(alice), course.ID)
	require.ErrorIs(t, err, ErrPermissionDenied)

	empty, err := svc.Create(ctx, principalOf(teacher), courseRequest("Empty"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, principalOf(teacher), empty.ID))
	_, err = svc.Get(ctx, empty.ID)
	require.ErrorIs(t, err, ErrCourseNotFound)
}

func TestCourseWeeksAndRatings(t *testing.T) {
	db := setupServiceDB(t)
	teacher := createUser(t, db, "teacher", models.RoleTeacher)
	student := createUser(t, db, "student", models.RoleStudent)
	svc := newCourseService(db, nil)
	ctx := context.Background()

	course, err := svc.Create(ctx, principalOf(teacher), courseRequest("Networks"))
	require.NoError(t, err)

	week := dto.WeeklyDetailRequest{WeekNumber: 1, Title: "Intro", Description: "Layers", TopicsCovered: "OSI"}
	_, err = svc.AddWeek(ctx, principalOf(teacher), course.ID, week)
	require.NoError(t, err)
	_, err = svc.AddWeek(ctx, principalOf(teacher), course.ID, week)
	require.ErrorIs(t, err, ErrWeekExists)

	beyond := week
	beyond.WeekNumber = 7
	_, err = svc.AddWeek(ctx, principalOf(teacher), course.ID, beyond)
	require.ErrorIs(t, err, ErrValidation)

	week.Title = "Introduction"
	replaced, err := svc.UpdateWeek(ctx, principalOf(teacher), course.ID, 1, week)
	require.NoError(t, err)
	require.Equal(t, "Introduction", replaced.Title)

	_, err = svc.UpdateWeek(ctx, principalOf(teacher), course.ID, 3, week)
	require.ErrorIs(t, err, ErrWeekNotFound)

	weeks, err := svc.ListWeeks(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	require.NoError(t, svc.DeleteWeek(ctx, principalOf(teacher), course.ID, 1))
	require.ErrorIs(t, svc.DeleteWeek(ctx, principalOf(teacher), course.ID, 1), ErrWeekNotFound)

	_, err = svc.Rate(ctx, principalOf(student), course.ID, dto.CourseRatingRequest{Rating: 4})
	require.ErrorIs(t, err, ErrNotEnrolled)
	_, err = svc.Rate(ctx, principalOf(teacher), course.ID, dto.CourseRatingRequest{Rating: 4})
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, db.Create(&models.Enrollment{StudentID: student.ID, CourseID: course.ID, EnrolledAt: time.Now().UTC(), IsActive: true}).Error)
	_, err = svc.Rate(ctx, principalOf(student), course.ID, dto.CourseRatingRequest{Rating: 6})
	require.ErrorIs(t, err, ErrValidation)
	rated, err := svc.Rate(ctx, principalOf(student), course.ID, dto.CourseRatingRequest{Rating: 4, Review: "Clear"})
	require.NoError(t, err)
	require.Equal(t, 4, *rated.Rating)

	detail, err := svc.Get(ctx, course.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.AverageRating)
	require.InDelta(t, 4.0, *detail.AverageRating, 0.001)

	listing, err := svc.List(ctx, dto.CourseListRequest{Search: "netw", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)
	require.Equal(t, int64(1), listing.Pagination.TotalItems)
}
