package middleware_test

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduportal-api/internal/middleware"
	"github.com/noah-isme/eduportal-api/internal/models"
)

func TestRequireRoleAcrossEduPortalRoles(t *testing.T) {
	cases := []struct {
		name    string
		role    interface{}
		allowed []models.Role
		status  int
	}{
		{name: "admin on admin routes", role: "admin", allowed: []models.Role{models.RoleAdmin}, status: fiber.StatusOK},
		{name: "teacher on admin routes", role: "teacher", allowed: []models.Role{models.RoleAdmin}, status: fiber.StatusForbidden},
		{name: "student on admin routes", role: "student", allowed: []models.Role{models.RoleAdmin}, status: fiber.StatusForbidden},
		{name: "admin on staff routes", role: "admin", allowed: []models.Role{models.RoleAdmin, models.RoleTeacher}, status: fiber.StatusOK},
		{name: "teacher on staff routes", role: "teacher", allowed: []models.Role{models.RoleAdmin, models.RoleTeacher}, status: fiber.StatusOK},
		{name: "student on staff routes", role: "student", allowed: []models.Role{models.RoleAdmin, models.RoleTeacher}, status: fiber.StatusForbidden},
		{name: "mixed case claim", role: " Teacher ", allowed: []models.Role{models.RoleTeacher}, status: fiber.StatusOK},
		{name: "typed role local", role: models.RoleStudent, allowed: []models.Role{models.RoleStudent}, status: fiber.StatusOK},
		{name: "mixed case allow list", role: "admin", allowed: []models.Role{models.Role("ADMIN")}, status: fiber.StatusOK},
		{name: "unknown claim", role: "superuser", allowed: []models.Role{models.RoleAdmin}, status: fiber.StatusForbidden},
		{name: "missing claim", role: nil, allowed: []models.Role{models.RoleAdmin}, status: fiber.StatusForbidden},
		{name: "unknown role in allow list", role: "superuser", allowed: []models.Role{models.Role("superuser")}, status: fiber.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				if tc.role != nil {
					c.Locals("user_role", tc.role)
				}
				return c.Next()
			})
			app.Use(middleware.RequireRole(tc.allowed...))
			app.Get("/", func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp := perform(t, app)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
