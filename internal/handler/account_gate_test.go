package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/models"
)

func TestSensitiveRoutesRecheckStoredAccount(t *testing.T) {
	stack := newTestStack(t)
	admin := stack.seedUser(t, "registrar", models.RoleAdmin)
	demoted := stack.seedUser(t, "bursar", models.RoleAdmin)
	removed := stack.seedUser(t, "auditor", models.RoleAdmin)
	adminToken := stack.token(t, admin)
	demotedToken := stack.token(t, demoted)
	removedToken := stack.token(t, removed)

	require.Equal(t, http.StatusOK, stack.do(t, http.MethodGet, "/api/v1/users", adminToken, nil).StatusCode)
	require.Equal(t, http.StatusOK, stack.do(t, http.MethodGet, "/api/v1/admin/stats", demotedToken, nil).StatusCode)

	require.NoError(t, stack.db.Model(&models.User{}).Where("id = ?", admin.ID).Update("is_active", false).Error)
	resp := stack.do(t, http.MethodGet, "/api/v1/users", adminToken, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "account is inactive", decodeEnvelope(t, resp, nil).Message)
	require.Equal(t, http.StatusUnauthorized, stack.do(t, http.MethodPost, "/api/v1/transactions", adminToken, map[string]interface{}{}).StatusCode)

	require.NoError(t, stack.db.Model(&models.User{}).Where("id = ?", demoted.ID).Update("role", models.RoleTeacher).Error)
	require.Equal(t, http.StatusForbidden, stack.do(t, http.MethodGet, "/api/v1/admin/stats", demotedToken, nil).StatusCode)
	require.Equal(t, http.StatusForbidden, stack.do(t, http.MethodGet, "/api/v1/users", demotedToken, nil).StatusCode)
	require.Equal(t, http.StatusForbidden, stack.do(t, http.MethodPost, "/api/v1/salaries", demotedToken, map[string]interface{}{}).StatusCode)

	require.NoError(t, stack.db.Delete(&models.User{}, removed.ID).Error)
	require.Equal(t, http.StatusUnauthorized, stack.do(t, http.MethodGet, "/api/v1/admin/stats", removedToken, nil).StatusCode)
}
