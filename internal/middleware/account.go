package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// AccountLookup loads the stored account behind an access token.
type AccountLookup interface {
	GetByID(ctx context.Context, id uint) (models.User, error)
}

// ActiveAccount re-reads the caller's account so that deactivations and role changes apply
// before the access token expires. It must run after JWTProtected.
func ActiveAccount(accounts AccountLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("user_id").(uint)
		if !ok || userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		user, err := accounts.GetByID(c.UserContext(), userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusUnauthorized, "account no longer exists")
		}
		if err != nil {
			return utils.SendError(c, fiber.StatusInternalServerError, "unable to verify account")
		}
		if !user.IsActive {
			return utils.SendError(c, fiber.StatusUnauthorized, "account is inactive")
		}

		user.NormalizeRole()
		if !user.Role.Valid() {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		c.Locals("user_role", string(user.Role))
		return c.Next()
	}
}
