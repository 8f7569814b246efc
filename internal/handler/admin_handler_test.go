package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
)

func TestAdminStatsContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("testdata", "admin_stats.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	stack := newTestStack(t)
	admin := stack.seedUser(t, "admin", models.RoleAdmin)
	teacher := stack.seedUser(t, "teacher", models.RoleTeacher)
	student := stack.seedUser(t, "student", models.RoleStudent)
	adminToken := stack.token(t, admin)

	resp := stack.do(t, http.MethodPost, "/api/v1/courses", stack.token(t, teacher), coursePayload("Data Structures"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var course dto.CourseResponse
	decodeEnvelope(t, resp, &course)

	resp = stack.do(t, http.MethodPost, "/api/v1/courses/"+itoa(course.ID)+"/enroll", stack.token(t, student), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = stack.do(t, http.MethodPost, "/api/v1/transactions", adminToken, map[string]interface{}{
		"student_id":       student.ID,
		"course_id":        course.ID,
		"transaction_type": "course",
		"amount":           "40",
		"payment_method":   "cash",
		"payment_status":   "completed",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/admin/stats?range=7d", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))

	var envelope struct {
		Data dto.AdminStatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	stats := envelope.Data
	require.EqualValues(t, 3, stats.TotalUsers)
	require.EqualValues(t, 1, stats.TotalStudents)
	require.EqualValues(t, 1, stats.ActiveCourses)
	require.EqualValues(t, 1, stats.RecentEnrollments)
	require.Equal(t, "40", stats.TotalRevenue.String())
	require.Len(t, stats.PopularCourses, 1)
	require.Equal(t, "Data Structures", stats.PopularCourses[0].Title)
}

func TestAdminRoutesGuarded(t *testing.T) {
	stack := newTestStack(t)
	admin := stack.seedUser(t, "admin", models.RoleAdmin)
	teacher := stack.seedUser(t, "teacher", models.RoleTeacher)
	student := stack.seedUser(t, "student", models.RoleStudent)
	adminToken := stack.token(t, admin)

	resp := stack.do(t, http.MethodGet, "/api/v1/admin/stats", stack.token(t, teacher), nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/admin/stats", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/admin/analytics?range=1y", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/admin/analytics", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report dto.AdminAnalyticsResponse
	decodeEnvelope(t, resp, &report)
	require.Equal(t, "30d", report.TimeRange)
	require.EqualValues(t, 3, report.TotalUsers)

	resp = stack.do(t, http.MethodPost, "/api/v1/transactions", adminToken, map[string]interface{}{
		"student_id":       student.ID,
		"transaction_type": "other",
		"amount":           "10",
		"payment_method":   "online",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = stack.do(t, http.MethodGet, "/api/v1/admin/activity?action=transaction_recorded&page_size=5", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logs []dto.AdminActivityResponse
	body := decodeEnvelope(t, resp, &logs)
	require.Len(t, logs, 1)
	require.Equal(t, admin.ID, logs[0].ActorID)
	require.JSONEq(t, `{"page":1,"page_size":5,"total_items":1,"total_pages":1}`, string(body.Meta))

	resp = stack.do(t, http.MethodGet, "/api/v1/admin/activity?actor_id=x", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
