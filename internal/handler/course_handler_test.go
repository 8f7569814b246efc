package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
)

func coursePayload(title string) map[string]interface{} {
	return map[string]interface{}{
		"title":          title,
		"description":    "Fundamentals with weekly labs",
		"difficulty":     "beginner",
		"duration_weeks": 4,
		"fee":            "25.00",
		"max_students":   2,
	}
}

func TestCourseHandlerEnrollmentFlow(t *testing.T) {
	stack := newTestStack(t)
	teacher := stack.seedUser(t, "teacher", models.RoleTeacher)
	student := stack.seedUser(t, "student", models.RoleStudent)
	teacherToken := stack.token(t, teacher)
	studentToken := stack.token(t, student)

	resp := stack.do(t, http.MethodPost, "/api/v1/courses", studentToken, coursePayload("Intro to Go"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/courses", teacherToken, coursePayload("Intro to Go"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var course dto.CourseResponse
	decodeEnvelope(t, resp, &course)
	require.Equal(t, teacher.ID, course.TeacherID)
	require.EqualValues(t, 2, course.AvailableSeats)

	resp = stack.do(t, http.MethodPost, "/api/v1/courses/"+itoa(course.ID)+"/enroll", studentToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var enrollment dto.EnrollmentResponse
	decodeEnvelope(t, resp, &enrollment)
	require.Equal(t, student.ID, enrollment.StudentID)
	require.Equal(t, models.EnrollmentStateActive, enrollment.State)

	resp = stack.do(t, http.MethodPost, "/api/v1/courses/"+itoa(course.ID)+"/enroll", studentToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/courses?page_size=10", studentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var courses []dto.CourseResponse
	body := decodeEnvelope(t, resp, &courses)
	require.Len(t, courses, 1)
	require.EqualValues(t, 1, courses[0].EnrolledStudentsCount)
	require.JSONEq(t, `{"page":1,"page_size":10,"total_items":1,"total_pages":1}`, string(body.Meta))

	resp = stack.do(t, http.MethodGet, "/api/v1/enrollments/me", studentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []dto.EnrollmentResponse
	decodeEnvelope(t, resp, &mine)
	require.Len(t, mine, 1)
	require.Equal(t, "Intro to Go", mine[0].CourseTitle)

	resp = stack.do(t, http.MethodPost, "/api/v1/courses/"+itoa(course.ID)+"/weeks", teacherToken, map[string]interface{}{
		"week_number":    1,
		"title":          "Toolchain",
		"description":    "Modules and packages",
		"topics_covered": "go mod, packages",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/progress", teacherToken, map[string]interface{}{
		"student_id":            student.ID,
		"course_id":             course.ID,
		"week_number":           1,
		"attendance_percentage": 100,
		"assignment_score":      80,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recorded dto.ProgressRecordResponse
	decodeEnvelope(t, resp, &recorded)
	require.Equal(t, 25, recorded.Enrollment.CompletionPercentage)

	resp = stack.do(t, http.MethodPost, "/api/v1/progress", studentToken, map[string]interface{}{
		"student_id":  student.ID,
		"course_id":   course.ID,
		"week_number": 2,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/courses/"+itoa(course.ID)+"/students", studentToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/courses/"+itoa(course.ID)+"/withdraw", studentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeEnvelope(t, resp, &enrollment)
	require.Equal(t, models.EnrollmentStateWithdrawn, enrollment.State)
}

func TestCourseHandlerRejectsMalformedRequests(t *testing.T) {
	stack := newTestStack(t)
	teacher := stack.seedUser(t, "teacher", models.RoleTeacher)
	token := stack.token(t, teacher)

	resp := stack.do(t, http.MethodGet, "/api/v1/courses/abc", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/courses/999", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/courses?page=zero", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	invalid := coursePayload("Go")
	invalid["difficulty"] = "expert"
	resp = stack.do(t, http.MethodPost, "/api/v1/courses", token, invalid)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeEnvelope(t, resp, nil)
	require.Equal(t, "min", body.Details["Title"])
	require.Equal(t, "oneof", body.Details["Difficulty"])

	resp = stack.do(t, http.MethodPost, "/api/v1/courses", token, []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
