package auth

import (
	"errors"
	"strings"

	"optica-backend/internal/database"
	"optica-backend/internal/identity"
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// JWTMiddleware authenticates the bearer token and attaches the caller's
// identity to the request. Roles and the active flag are read from the
// database, so deactivation and role changes apply to tokens already issued.
func JWTMiddleware(ti *TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
		}

		claims, err := ti.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		user, err := FindUserByID(database.DB, claims.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "account no longer exists")
			}
			return err
		}
		if !user.Active {
			return fiber.NewError(fiber.StatusForbidden, "account is disabled")
		}

		identity.Set(c, IdentityFromUser(user))
		return c.Next()
	}
}

// RequireRole lets the request through when the caller holds at least one of
// the allowed roles.
func RequireRole(allowed ...models.RoleName) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := identity.Require(c)
		if err != nil {
			return err
		}
		if !id.HasAnyRole(allowed...) {
			return fiber.NewError(fiber.StatusForbidden, "insufficient role for this action")
		}
		return c.Next()
	}
}
