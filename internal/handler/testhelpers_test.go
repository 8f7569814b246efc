package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/config"
	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/handler"
	"github.com/noah-isme/eduportal-api/internal/middleware"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/repository"
	"github.com/noah-isme/eduportal-api/internal/router"
	"github.com/noah-isme/eduportal-api/internal/service"
)

const testPassword = "password123"

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
	Meta    json.RawMessage   `json:"meta"`
}

type memoryStorage struct{}

func (memoryStorage) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	return "https://files.test/" + name, nil
}

type testStack struct {
	app           *fiber.App
	db            *gorm.DB
	auth          service.AuthService
	notifications service.NotificationService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:handler_%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	cfg := config.Config{
		AppName:          "EduPortal Test",
		AppEnv:           "test",
		JWTSecret:        "handler-access-secret",
		JWTRefreshSecret: "handler-refresh-secret",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
		Progress:         config.DefaultProgressPolicy(),
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	examRepo := repository.NewExamRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)

	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	authService := service.NewAuthService(userRepo, validate, service.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}, logger)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, userRepo, activityService, true, logger)
	progressService := service.NewProgressService(progressRepo, courseRepo, cfg.Progress, validate, logger)
	examService, err := service.NewExamService(examRepo, courseRepo, enrollmentRepo, validate, logger)
	require.NoError(t, err)
	attemptService := service.NewAttemptService(attemptRepo, examRepo, enrollmentRepo, activityService, nil, 0, validate, logger)
	notificationService := service.NewNotificationService(repository.NewNotificationRepository(db), activityService, nil, nil, "", validate, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:         handler.NewAuthHandler(authService, nil, logger),
		UserHandler:         handler.NewUserHandler(service.NewUserService(userRepo, validate, logger), logger),
		CourseHandler:       handler.NewCourseHandler(service.NewCourseService(courseRepo, enrollmentRepo, userRepo, activityService, validate, logger), enrollmentService, progressService, logger),
		EnrollmentHandler:   handler.NewEnrollmentHandler(enrollmentService, progressService, logger),
		MaterialHandler:     handler.NewMaterialHandler(service.NewMaterialService(repository.NewMaterialRepository(db), courseRepo, enrollmentRepo, memoryStorage{}, 1, validate, logger), logger),
		ExamHandler:         handler.NewExamHandler(examService, attemptService, logger),
		AttemptHandler:      handler.NewAttemptHandler(attemptService, logger),
		FinanceHandler:      handler.NewFinanceHandler(service.NewFinanceService(repository.NewFinanceRepository(db), userRepo, activityService, validate, logger), logger),
		AdminHandler:        handler.NewAdminHandler(service.NewAdminAnalyticsService(repository.NewAdminAnalyticsRepository(db), logger), activityService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, 50*time.Millisecond),
		Accounts:            userRepo,
		Health:              handler.HealthDependencies{DB: db},
	})

	return &testStack{app: app, db: db, auth: authService, notifications: notificationService}
}

func (s *testStack) seedUser(t *testing.T, username string, role models.Role) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		FirstName:    strings.ToUpper(username[:1]) + username[1:],
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, s.db.Create(&user).Error)
	return user
}

func (s *testStack) token(t *testing.T, user models.User) string {
	t.Helper()
	tokens, err := s.auth.Login(context.Background(), dto.LoginRequest{Username: user.Username, Password: testPassword})
	require.NoError(t, err)
	return tokens.AccessToken
}

func (s *testStack) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, ok := body.([]byte)
		if !ok {
			var err error
			raw, err = json.Marshal(body)
			require.NoError(t, err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func decodeEnvelope(t *testing.T, resp *http.Response, data interface{}) envelope {
	t.Helper()
	var body envelope
	decodeResponse(t, resp, &body)
	if data != nil && len(body.Data) > 0 {
		require.NoError(t, json.Unmarshal(body.Data, data))
	}
	return body
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
