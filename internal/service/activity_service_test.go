package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type memoryActivityRepo struct {
	entries []models.ActivityLog
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksSensitiveMetadata(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		ActorRole:  "Admin",
		Action:     "Enrolled",
		EntityType: "enrollment",
		EntityID:   uintPtr(5),
		Metadata: map[string]interface{}{
			"email":     "student@example.com",
			"course_id": 3,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["email"])
	require.Equal(t, 3, entry.Metadata["course_id"])
	require.Equal(t, "admin", entry.ActorRole)
	require.Equal(t, "enrolled", entry.Action)
}

func TestActivityServiceListRequiresAdmin(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	_, err := svc.List(context.Background(), policy.Principal{ID: 2, Role: models.RoleTeacher}, dto.AdminActivityListRequest{})
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Record(context.Background(), ActivityEntry{ActorID: 1, Action: "withdrawn", EntityType: "enrollment"})
	require.NoError(t, err)

	list, err := svc.List(context.Background(), policy.Principal{ID: 1, Role: models.RoleAdmin}, dto.AdminActivityListRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, "system", list.Items[0].ActorRole)
	require.Equal(t, int64(1), list.Pagination.TotalItems)
}
