package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// RequireRole admits callers whose role is one of roles. Roles outside admin, teacher and student are ignored.
func RequireRole(roles ...models.Role) fiber.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		if normalized := models.ParseRole(string(role)); normalized.Valid() {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := roleFromLocals(c)
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// roleFromLocals reads the caller role stored by JWTProtected. Anything unparseable yields the empty role.
func roleFromLocals(c *fiber.Ctx) models.Role {
	switch v := c.Locals("user_role").(type) {
	case models.Role:
		return models.ParseRole(string(v))
	case string:
		return models.ParseRole(v)
	case fmt.Stringer:
		return models.ParseRole(v.String())
	default:
		return ""
	}
}
