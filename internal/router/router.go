package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/eduportal-api/internal/config"
	"github.com/noah-isme/eduportal-api/internal/handler"
	"github.com/noah-isme/eduportal-api/internal/middleware"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler         *handler.AuthHandler
	UserHandler         *handler.UserHandler
	CourseHandler       *handler.CourseHandler
	EnrollmentHandler   *handler.EnrollmentHandler
	MaterialHandler     *handler.MaterialHandler
	ExamHandler         *handler.ExamHandler
	AttemptHandler      *handler.AttemptHandler
	FinanceHandler      *handler.FinanceHandler
	AdminHandler        *handler.AdminHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
	// Accounts, when set, re-checks is_active and role from storage on account, grading, finance and admin routes.
	Accounts            middleware.AccountLookup
	Health              handler.HealthDependencies
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Health))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}
	sensitive := func(gates ...fiber.Handler) []fiber.Handler {
		handlers := []fiber.Handler{jwtMiddleware}
		if deps.Accounts != nil {
			handlers = append(handlers, middleware.ActiveAccount(deps.Accounts))
		}
		return append(handlers, gates...)
	}

	if deps.AuthHandler != nil {
		auth := api.Group("/auth")
		deps.AuthHandler.RegisterPublic(auth)
		deps.AuthHandler.RegisterProtected(auth.Group("", jwtMiddleware))
	}

	if deps.UserHandler != nil {
		deps.UserHandler.Register(api.Group("/users", sensitive(middleware.RequireRole(models.RoleAdmin))...))
	}

	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(api.Group("/courses", jwtMiddleware))
	}

	if deps.EnrollmentHandler != nil {
		deps.EnrollmentHandler.RegisterEnrollments(api.Group("/enrollments", jwtMiddleware))
		deps.EnrollmentHandler.RegisterProgress(api.Group("/progress", jwtMiddleware))
	}

	if deps.MaterialHandler != nil {
		deps.MaterialHandler.Register(api.Group("/materials", jwtMiddleware))
	}

	if deps.ExamHandler != nil {
		deps.ExamHandler.Register(api.Group("/exams", jwtMiddleware))
		deps.ExamHandler.RegisterQuestions(api.Group("/questions", jwtMiddleware))
	}

	if deps.AttemptHandler != nil {
		deps.AttemptHandler.RegisterAttempts(api.Group("/attempts", jwtMiddleware))
		deps.AttemptHandler.RegisterAnswers(api.Group("/answers", sensitive(middleware.RequireRole(models.RoleAdmin, models.RoleTeacher))...))
	}

	if deps.FinanceHandler != nil {
		deps.FinanceHandler.RegisterTransactions(api.Group("/transactions", sensitive()...))
		deps.FinanceHandler.RegisterSalaries(api.Group("/salaries", sensitive()...))
	}

	if deps.AdminHandler != nil {
		deps.AdminHandler.Register(api.Group("/admin", sensitive(middleware.RequireRole(models.RoleAdmin))...))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware))
	}
}
