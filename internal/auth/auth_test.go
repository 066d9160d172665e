package auth_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"optica-backend/internal/auth"
	"optica-backend/internal/httpx"
	"optica-backend/internal/identity"
	"optica-backend/internal/models"
	"optica-backend/internal/testutil"

	qt "github.com/frankban/quicktest"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	auth.Cost = bcrypt.MinCost
}

func newApp(t *testing.T) (*fiber.App, *gorm.DB) {
	db := testutil.NewDB(t)
	ti := testutil.Issuer()

	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
	app.Post("/register", auth.RegisterHandler(ti))
	app.Post("/login", auth.LoginHandler(ti))

	protected := app.Group("", auth.JWTMiddleware(ti))
	protected.Get("/me", auth.MeHandler())
	protected.Put("/password", auth.ChangePasswordHandler())
	protected.Get("/admin-only", auth.RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return httpx.OK(c, "hi")
	})
	protected.Get("/staff", auth.RequireRole(models.RoleAdmin, models.RoleVendor), func(c *fiber.Ctx) error {
		return httpx.OK(c, "hi")
	})

	// guard mounted without authentication
	app.Get("/unguarded", auth.RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return httpx.OK(c, "hi")
	})
	return app, db
}

func TestRegisterAssignsClientRoleOnly(t *testing.T) {
	c := qt.New(t)
	app, db := newApp(t)

	resp, env := testutil.Do(t, app, "POST", "/register", map[string]any{
		"name":     "Ana",
		"email":    "  Ana@Example.com ",
		"password": "secret123",
		"roles":    []string{"admin"},
	}, "")
	c.Assert(resp.StatusCode, qt.Equals, fiber.StatusCreated)
	c.Assert(env.OK, qt.IsTrue)

	var out auth.TokenResponse
	env.Decode(t, &out)
	c.Assert(out.Token, qt.Not(qt.Equals), "")
	c.Assert(out.User.Email, qt.Equals, "ana@example.com")
	c.Assert(out.User.Roles, qt.DeepEquals, []string{"client"})
	c.Assert(out.User.HasPassword, qt.IsTrue)

	user, err := auth.FindUserByEmail(db, "ana@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(user.RoleNames(), qt.DeepEquals, []string{"client"})

	var logs []models.AuditLog
	c.Assert(db.Where("action = ?", models.AuditActionRegister).Find(&logs).Error, qt.IsNil)
	c.Assert(logs, qt.HasLen, 1)
	c.Assert(*logs[0].UserID, qt.Equals, user.ID)
	c.Assert(logs[0].EntityType, qt.Equals, "user")
}

func TestRegisterValidation(t *testing.T) {
	app, db := newApp(t)
	testutil.CreateUser(t, db, "taken@example.com", "password1", models.RoleClient)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantField  string
	}{
		{"missing email", map[string]any{"name": "A", "password": "secret123"}, 400, "email"},
		{"bad email", map[string]any{"name": "A", "email": "nope", "password": "secret123"}, 400, "email"},
		{"short password", map[string]any{"name": "A", "email": "a@b.co", "password": "short"}, 400, "password"},
		{"duplicate", map[string]any{"name": "A", "email": "TAKEN@example.com", "password": "secret123"}, 409, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			resp, env := testutil.Do(t, app, "POST", "/register", tt.body, "")
			c.Assert(resp.StatusCode, qt.Equals, tt.wantStatus)
			c.Assert(env.OK, qt.IsFalse)
			if tt.wantField != "" {
				c.Assert(env.Details[tt.wantField], qt.Not(qt.Equals), "")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	app, db := newApp(t)
	testutil.CreateUser(t, db, "vendor@example.com", "password1", models.RoleVendor)

	disabled := testutil.CreateUser(t, db, "off@example.com", "password1", models.RoleClient)
	qt.Assert(t, db.Model(disabled).Update("active", false).Error, qt.IsNil)

	oauthOnly := models.User{Name: "G", Email: "g@example.com", Active: true}
	qt.Assert(t, db.Create(&oauthOnly).Error, qt.IsNil)

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
	}{
		{"ok", "Vendor@Example.com", "password1", 200},
		{"wrong password", "vendor@example.com", "password2", 401},
		{"unknown email", "nobody@example.com", "password1", 401},
		{"inactive", "off@example.com", "password1", 403},
		{"oauth only", "g@example.com", "anything1", 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			resp, env := testutil.Do(t, app, "POST", "/login", map[string]string{
				"email": tt.email, "password": tt.password,
			}, "")
			c.Assert(resp.StatusCode, qt.Equals, tt.wantStatus)
			c.Assert(env.OK, qt.Equals, tt.wantStatus == 200)
		})
	}

	c := qt.New(t)
	user, err := auth.FindUserByEmail(db, "vendor@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(user.LastLoginAt, qt.Not(qt.IsNil))

	var count int64
	db.Model(&models.AuditLog{}).Where("action = ? AND user_id = ?", models.AuditActionLogin, user.ID).Count(&count)
	c.Assert(count, qt.Equals, int64(1))
}

func TestAuthenticationAndRoleGuard(t *testing.T) {
	app, db := newApp(t)
	admin := testutil.CreateUser(t, db, "admin@example.com", "password1", models.RoleAdmin)
	vendor := testutil.CreateUser(t, db, "vendor@example.com", "password1", models.RoleVendor)
	client := testutil.CreateUser(t, db, "client@example.com", "password1", models.RoleClient)

	expired, err := auth.NewTokenIssuer(testutil.JWTSecret, -time.Minute, "optica-test").GenerateToken(admin)
	qt.Assert(t, err, qt.IsNil)
	forged, err := auth.NewTokenIssuer(strings.Repeat("x", 32), time.Hour, "optica-test").GenerateToken(admin)
	qt.Assert(t, err, qt.IsNil)

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
	}{
		{"no token", "/me", "", 401},
		{"garbage token", "/me", "not-a-jwt", 401},
		{"expired token", "/me", expired, 401},
		{"wrong secret", "/me", forged, 401},
		{"me", "/me", testutil.Token(t, client), 200},
		{"client on admin route", "/admin-only", testutil.Token(t, client), 403},
		{"admin on admin route", "/admin-only", testutil.Token(t, admin), 200},
		{"vendor on staff route", "/staff", testutil.Token(t, vendor), 200},
		{"vendor on admin route", "/admin-only", testutil.Token(t, vendor), 403},
		{"guard without identity", "/unguarded", "", 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			resp, _ := testutil.Do(t, app, "GET", tt.path, nil, tt.token)
			c.Assert(resp.StatusCode, qt.Equals, tt.wantStatus)
		})
	}
}

func TestMalformedAuthorizationHeader(t *testing.T) {
	c := qt.New(t)
	app, _ := newApp(t)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, err := app.Test(req)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 401)
}

func TestMe(t *testing.T) {
	c := qt.New(t)
	app, db := newApp(t)

	branch := models.Branch{Name: "Centro", City: "Lima", Active: true}
	c.Assert(db.Create(&branch).Error, qt.IsNil)
	u := testutil.CreateUser(t, db, "opto@example.com", "password1", models.RoleOptometrist)
	c.Assert(db.Model(u).Update("branch_id", branch.ID).Error, qt.IsNil)

	resp, env := testutil.Do(t, app, "GET", "/me", nil, testutil.Token(t, u))
	c.Assert(resp.StatusCode, qt.Equals, 200)

	var me auth.UserResponse
	env.Decode(t, &me)
	c.Assert(me.Email, qt.Equals, "opto@example.com")
	c.Assert(me.Roles, qt.DeepEquals, []string{"optometrist"})
	c.Assert(me.Branch, qt.Not(qt.IsNil))
	c.Assert(me.Branch.Name, qt.Equals, "Centro")
}

func TestChangePassword(t *testing.T) {
	c := qt.New(t)
	app, db := newApp(t)
	u := testutil.CreateUser(t, db, "c@example.com", "password1", models.RoleClient)
	tok := testutil.Token(t, u)

	resp, _ := testutil.Do(t, app, "PUT", "/password", map[string]string{"current": "wrong-one", "new": "password2"}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 400)

	resp, _ = testutil.Do(t, app, "PUT", "/password", map[string]string{"current": "password1", "new": "password2"}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 200)

	resp, _ = testutil.Do(t, app, "POST", "/login", map[string]string{"email": "c@example.com", "password": "password2"}, "")
	c.Assert(resp.StatusCode, qt.Equals, 200)

	// OAuth-only accounts may set a first password
	g := models.User{Name: "G", Email: "g@example.com", Active: true}
	c.Assert(db.Create(&g).Error, qt.IsNil)
	resp, _ = testutil.Do(t, app, "PUT", "/password", map[string]string{"new": "password3"}, testutil.Token(t, &g))
	c.Assert(resp.StatusCode, qt.Equals, 200)
}

func TestTokenRoundTrip(t *testing.T) {
	c := qt.New(t)
	branchID := uint(7)
	u := &models.User{
		ID:       3,
		Name:     "Ana",
		Email:    "ana@example.com",
		BranchID: &branchID,
		Roles:    []models.Role{{Name: models.RoleVendor}, {Name: models.RoleOptometrist}},
	}

	ti := testutil.Issuer()
	tok, err := ti.GenerateToken(u)
	c.Assert(err, qt.IsNil)

	claims, err := ti.ParseToken(tok)
	c.Assert(err, qt.IsNil)
	c.Assert(claims.UserID, qt.Equals, uint(3))
	c.Assert(claims.Roles, qt.DeepEquals, []string{"vendor", "optometrist"})
	c.Assert(*claims.BranchID, qt.Equals, uint(7))
	c.Assert(claims.Issuer, qt.Equals, "optica-test")

	id := claims.Identity()
	c.Assert(id.HasRole(models.RoleVendor), qt.IsTrue)
	c.Assert(id.PrimaryRole(), qt.Equals, models.RoleVendor)

	_, err = auth.NewTokenIssuer(testutil.JWTSecret, time.Hour, "someone-else").ParseToken(tok)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestIdentityFromClaims(t *testing.T) {
	c := qt.New(t)
	claims := &auth.JWTCustomClaims{UserID: 1, Roles: []string{"client"}}
	var got *identity.Identity = claims.Identity()
	c.Assert(got.HasAnyRole(models.RoleAdmin, models.RoleClient), qt.IsTrue)
	c.Assert(got.HasAnyRole(models.RoleAdmin), qt.IsFalse)
}

func TestPasswordHashing(t *testing.T) {
	c := qt.New(t)
	hash, err := auth.HashPassword("password1")
	c.Assert(err, qt.IsNil)
	c.Assert(auth.CheckPassword(hash, "password1"), qt.IsTrue)
	c.Assert(auth.CheckPassword(hash, "password2"), qt.IsFalse)
	c.Assert(auth.CheckPassword("not-a-hash", "password1"), qt.IsFalse)
}
