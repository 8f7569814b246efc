package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eduportal-api/internal/config"
	"github.com/noah-isme/eduportal-api/internal/database"
	"github.com/noah-isme/eduportal-api/internal/handler"
	"github.com/noah-isme/eduportal-api/internal/middleware"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/observability"
	"github.com/noah-isme/eduportal-api/internal/repository"
	"github.com/noah-isme/eduportal-api/internal/router"
	"github.com/noah-isme/eduportal-api/internal/service"
	"github.com/noah-isme/eduportal-api/pkg/ai"
	cloud "github.com/noah-isme/eduportal-api/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "eduportal-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, notifications stay node-local")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, skipping cross-node fan-out")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	var storage service.FileStorage
	store, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("material file uploads disabled")
	} else {
		storage = store
	}

	var grader ai.Grader
	if cfg.OpenAIAPIKey != "" {
		openAIGrader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("grading suggestions disabled")
		} else {
			grader = openAIGrader
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	examRepo := repository.NewExamRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	financeRepo := repository.NewFinanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	analyticsRepo := repository.NewAdminAnalyticsRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	authService := service.NewAuthService(userRepo, validate, service.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}, logger)
	userService := service.NewUserService(userRepo, validate, logger)
	courseService := service.NewCourseService(courseRepo, enrollmentRepo, userRepo, activityService, validate, logger)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, userRepo, activityService, cfg.Finance.CaptureEnrollmentFees, logger)
	progressService := service.NewProgressService(progressRepo, courseRepo, cfg.Progress, validate, logger)
	materialService := service.NewMaterialService(materialRepo, courseRepo, enrollmentRepo, storage, cfg.MaterialMaxUploadMB, validate, logger)
	examService, err := service.NewExamService(examRepo, courseRepo, enrollmentRepo, validate, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to compile question bank schema")
	}
	attemptService := service.NewAttemptService(attemptRepo, examRepo, enrollmentRepo, activityService, grader, cfg.Exam.MaxAttempts, validate, logger)
	financeService := service.NewFinanceService(financeRepo, userRepo, activityService, validate, logger)
	analyticsService := service.NewAdminAnalyticsService(analyticsRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, activityService, redisClient, natsConn, cfg.RealtimeChannel, validate, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notificationService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.MaterialMaxUploadMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:         handler.NewAuthHandler(authService, middleware.RateLimit("login", cfg.LoginRateLimit, cfg.LoginRateWindow), logger),
		UserHandler:         handler.NewUserHandler(userService, logger),
		CourseHandler:       handler.NewCourseHandler(courseService, enrollmentService, progressService, logger),
		EnrollmentHandler:   handler.NewEnrollmentHandler(enrollmentService, progressService, logger),
		MaterialHandler:     handler.NewMaterialHandler(materialService, logger),
		ExamHandler:         handler.NewExamHandler(examService, attemptService, logger),
		AttemptHandler:      handler.NewAttemptHandler(attemptService, logger),
		FinanceHandler:      handler.NewFinanceHandler(financeService, logger),
		AdminHandler:        handler.NewAdminHandler(analyticsService, activityService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.NotificationKeepAlive),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		Accounts:            userRepo,
		Health:              handler.HealthDependencies{DB: db, Redis: redisClient, NATS: natsConn},
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("http server listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, cancel, logger)
}

func waitForShutdown(app *fiber.App, stopWorkers context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
