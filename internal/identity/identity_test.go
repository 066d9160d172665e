package identity

import (
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gofiber/fiber/v2"

	"optica-backend/internal/models"
)

func TestRoles(t *testing.T) {
	c := qt.New(t)

	id := &Identity{Roles: []string{"client", "optometrist"}}
	c.Assert(id.HasRole(models.RoleClient), qt.IsTrue)
	c.Assert(id.HasRole(models.RoleAdmin), qt.IsFalse)
	c.Assert(id.HasAnyRole(models.RoleAdmin, models.RoleOptometrist), qt.IsTrue)
	c.Assert(id.HasAnyRole(models.RoleAdmin, models.RoleVendor), qt.IsFalse)
	c.Assert(id.PrimaryRole(), qt.Equals, models.RoleOptometrist)

	c.Assert((&Identity{}).PrimaryRole(), qt.Equals, models.RoleName(""))
}

func TestRequireAndIncludeInactive(t *testing.T) {
	tests := []struct {
		name       string
		caller     *Identity
		query      string
		wantStatus int
		wantAll    bool
	}{
		{"anonymous", nil, "?include_inactive=true", 401, false},
		{"admin asks", &Identity{UserID: 1, Roles: []string{"admin"}}, "?include_inactive=true", 200, true},
		{"admin default", &Identity{UserID: 1, Roles: []string{"admin"}}, "", 200, false},
		{"client asks", &Identity{UserID: 2, Roles: []string{"client"}}, "?include_inactive=true", 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			var gotAll bool

			app := fiber.New()
			app.Get("/", func(ctx *fiber.Ctx) error {
				if tt.caller != nil {
					Set(ctx, tt.caller)
				}
				if _, err := Require(ctx); err != nil {
					return err
				}
				gotAll = IncludeInactive(ctx, models.RoleAdmin)
				return ctx.SendStatus(200)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
			c.Assert(err, qt.IsNil)
			c.Assert(resp.StatusCode, qt.Equals, tt.wantStatus)
			c.Assert(gotAll, qt.Equals, tt.wantAll)
		})
	}
}
