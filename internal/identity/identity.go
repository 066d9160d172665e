// Package identity carries the authenticated caller through a request.
package identity

import (
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const localsKey = "identity"

type Identity struct {
	UserID   uint
	Name     string
	Email    string
	Roles    []string
	BranchID *uint
}

func (i *Identity) HasRole(role models.RoleName) bool {
	for _, r := range i.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the role sets intersect.
func (i *Identity) HasAnyRole(roles ...models.RoleName) bool {
	for _, r := range roles {
		if i.HasRole(r) {
			return true
		}
	}
	return false
}

// PrimaryRole is the most privileged role held, or "" when none.
func (i *Identity) PrimaryRole() models.RoleName {
	for _, r := range models.RolePriority {
		if i.HasRole(r) {
			return r
		}
	}
	return ""
}

func Set(c *fiber.Ctx, id *Identity) {
	c.Locals(localsKey, id)
}

// From returns the caller attached by the auth middleware.
func From(c *fiber.Ctx) (*Identity, bool) {
	id, ok := c.Locals(localsKey).(*Identity)
	return id, ok && id != nil
}

// Require is From for handlers mounted behind the auth middleware.
func Require(c *fiber.Ctx) (*Identity, error) {
	id, ok := From(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

// IncludeInactive reports whether soft-deleted rows should be listed: the
// caller asked for them with ?include_inactive=true and holds one of roles.
func IncludeInactive(c *fiber.Ctx, roles ...models.RoleName) bool {
	if !c.QueryBool("include_inactive") {
		return false
	}
	id, ok := From(c)
	return ok && id.HasAnyRole(roles...)
}
