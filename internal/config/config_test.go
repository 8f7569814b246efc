package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("EDUPORTAL_JWT_SECRET", "access")
	t.Setenv("EDUPORTAL_JWT_REFRESH_SECRET", "refresh")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "EduPortal API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, 25, cfg.MaterialMaxUploadMB)
	require.Equal(t, 30*time.Second, cfg.NotificationKeepAlive)
	require.Equal(t, DefaultProgressPolicy(), cfg.Progress)
	require.Zero(t, cfg.Exam.MaxAttempts)
	require.True(t, cfg.Finance.CaptureEnrollmentFees)
	require.Equal(t, "*", cfg.CORSAllowOrigins)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("EDUPORTAL_JWT_SECRET", "access")
	t.Setenv("EDUPORTAL_JWT_REFRESH_SECRET", "refresh")
	t.Setenv("EDUPORTAL_APP_PORT", ":9090")
	t.Setenv("EDUPORTAL_PROGRESS_WEIGHTS_QUIZ", "2")
	t.Setenv("EDUPORTAL_PROGRESS_COMPLETION_THRESHOLD", "70")
	t.Setenv("EDUPORTAL_EXAM_MAX_ATTEMPTS", "-3")
	t.Setenv("EDUPORTAL_FINANCE_CAPTURE_ENROLLMENT_FEES", "false")
	t.Setenv("EDUPORTAL_MATERIALS_MAX_UPLOAD_MB", "0")
	t.Setenv("EDUPORTAL_CORS_ALLOW_ORIGINS", "https://portal.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, 2.0, cfg.Progress.QuizWeight)
	require.Equal(t, 70, cfg.Progress.CompletionThreshold)
	require.Zero(t, cfg.Exam.MaxAttempts)
	require.False(t, cfg.Finance.CaptureEnrollmentFees)
	require.Equal(t, 25, cfg.MaterialMaxUploadMB)
	require.Equal(t, "https://portal.example.com", cfg.CORSAllowOrigins)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("EDUPORTAL_JWT_SECRET", "")
	t.Setenv("EDUPORTAL_JWT_REFRESH_SECRET", "")
	_, err := Load()
	require.ErrorContains(t, err, "jwt secrets")

	t.Setenv("EDUPORTAL_JWT_SECRET", "access")
	t.Setenv("EDUPORTAL_JWT_REFRESH_SECRET", "refresh")
	t.Setenv("EDUPORTAL_JWT_ACCESS_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "invalid jwt.access_ttl")

	t.Setenv("EDUPORTAL_JWT_ACCESS_TTL", "15m")
	t.Setenv("EDUPORTAL_PROGRESS_COMPLETION_THRESHOLD", "101")
	_, err = Load()
	require.ErrorContains(t, err, "threshold")
}

func TestProgressPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultProgressPolicy().Validate())
	require.Error(t, ProgressPolicy{AttendanceWeight: -1, QuizWeight: 2}.Validate())
	require.Error(t, ProgressPolicy{}.Validate())
}
