package server_test

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"optica-backend/internal/auth"
	"optica-backend/internal/database"
	"optica-backend/internal/models"
	"optica-backend/internal/server"
	"optica-backend/internal/testutil"

	qt "github.com/frankban/quicktest"
)

func TestHealth(t *testing.T) {
	c := qt.New(t)
	app, _ := testutil.NewServer(t)

	resp, env := testutil.Do(t, app, "GET", "/health", nil, "")
	c.Assert(resp.StatusCode, qt.Equals, 200)
	c.Assert(env.OK, qt.IsTrue)
	c.Assert(resp.Header.Get("X-Request-ID"), qt.Not(qt.Equals), "")
}

func TestHealthWithoutDatabase(t *testing.T) {
	c := qt.New(t)
	app, _ := testutil.NewServer(t)
	database.DB = nil // restored by the NewDB cleanup

	resp, env := testutil.Do(t, app, "GET", "/health", nil, "")
	c.Assert(resp.StatusCode, qt.Equals, 503)
	c.Assert(env.OK, qt.IsFalse)
}

func TestUnknownRoute(t *testing.T) {
	c := qt.New(t)
	app, _ := testutil.NewServer(t)

	resp, env := testutil.Do(t, app, "GET", "/nope", nil, "")
	c.Assert(resp.StatusCode, qt.Equals, 404)
	c.Assert(env.Error, qt.Equals, "route not found")
}

// TestAccessMatrix checks the guard on every route family: 401 without a
// token, 403 for a role outside the route's set.
func TestAccessMatrix(t *testing.T) {
	app, db := testutil.NewServer(t)
	admin := testutil.CreateUser(t, db, "admin@example.com", "password1", models.RoleAdmin)
	vendor := testutil.CreateUser(t, db, "vendor@example.com", "password1", models.RoleVendor)
	opto := testutil.CreateUser(t, db, "opto@example.com", "password1", models.RoleOptometrist)
	client := testutil.CreateUser(t, db, "client@example.com", "password1", models.RoleClient)

	tokens := map[string]string{
		"anon":   "",
		"admin":  testutil.Token(t, admin),
		"vendor": testutil.Token(t, vendor),
		"opto":   testutil.Token(t, opto),
		"client": testutil.Token(t, client),
	}

	tests := []struct {
		method string
		path   string
		body   any
		want   map[string]int
	}{
		{"GET", "/api/users", nil, map[string]int{"anon": 401, "admin": 200, "vendor": 403, "opto": 403, "client": 403}},
		{"GET", "/api/roles", nil, map[string]int{"anon": 401, "admin": 200, "vendor": 403, "client": 403}},
		{"GET", "/api/audit-logs", nil, map[string]int{"anon": 401, "admin": 200, "vendor": 403, "client": 403}},
		{"GET", "/api/branches", nil, map[string]int{"anon": 401, "admin": 200, "vendor": 200, "opto": 200, "client": 200}},
		{"GET", "/api/products", nil, map[string]int{"anon": 401, "admin": 200, "vendor": 200, "opto": 200, "client": 200}},
		{"GET", "/api/colors", nil, map[string]int{"anon": 401, "client": 200}},
		{"GET", "/api/brands", nil, map[string]int{"anon": 401, "client": 200}},
		{"POST", "/api/branches", map[string]string{}, map[string]int{"anon": 401, "vendor": 403, "client": 403, "admin": 400}},
		{"POST", "/api/colors", map[string]string{}, map[string]int{"vendor": 403, "admin": 400}},
		{"POST", "/api/products", map[string]string{}, map[string]int{"anon": 401, "client": 403, "opto": 403, "vendor": 400, "admin": 400}},
		{"DELETE", "/api/products/999", nil, map[string]int{"client": 403, "vendor": 404}},
		{"GET", "/api/dashboard", nil, map[string]int{"anon": 401, "admin": 200, "vendor": 200, "opto": 200, "client": 200}},
		{"GET", "/api/auth/me", nil, map[string]int{"anon": 401, "client": 200}},
	}

	for _, tt := range tests {
		for who, want := range tt.want {
			t.Run(tt.method+" "+tt.path+" as "+who, func(t *testing.T) {
				c := qt.New(t)
				resp, _ := testutil.Do(t, app, tt.method, tt.path, tt.body, tokens[who])
				c.Assert(resp.StatusCode, qt.Equals, want)
			})
		}
	}
}

// TestIssuedTokensFollowAccountChanges checks that role changes and
// deactivation apply to tokens issued before the change.
func TestIssuedTokensFollowAccountChanges(t *testing.T) {
	c := qt.New(t)
	app, db := testutil.NewServer(t)
	root := testutil.CreateUser(t, db, "root@example.com", "password1", models.RoleAdmin)
	other := testutil.CreateUser(t, db, "other@example.com", "password1", models.RoleAdmin)
	rootTok := testutil.Token(t, root)
	otherTok := testutil.Token(t, other)

	resp, _ := testutil.Do(t, app, "GET", "/api/users", nil, otherTok)
	c.Assert(resp.StatusCode, qt.Equals, 200)

	path := fmt.Sprintf("/api/users/%d", other.ID)
	resp, env := testutil.Do(t, app, "PUT", path+"/roles", map[string]any{"roles": []string{"client"}}, rootTok)
	c.Assert(resp.StatusCode, qt.Equals, 200, qt.Commentf("%s", env.Error))

	resp, _ = testutil.Do(t, app, "GET", "/api/users", nil, otherTok)
	c.Assert(resp.StatusCode, qt.Equals, 403)
	resp, _ = testutil.Do(t, app, "POST", "/api/branches", map[string]string{"name": "Norte"}, otherTok)
	c.Assert(resp.StatusCode, qt.Equals, 403)
	resp, _ = testutil.Do(t, app, "GET", "/api/auth/me", nil, otherTok)
	c.Assert(resp.StatusCode, qt.Equals, 200)

	resp, _ = testutil.Do(t, app, "DELETE", path, nil, rootTok)
	c.Assert(resp.StatusCode, qt.Equals, 200)

	resp, _ = testutil.Do(t, app, "GET", "/api/auth/me", nil, otherTok)
	c.Assert(resp.StatusCode, qt.Equals, 403)
	resp, _ = testutil.Do(t, app, "POST", "/api/users", map[string]any{
		"name": "Backdoor", "email": "backdoor@example.com", "password": "password1", "roles": []string{"admin"},
	}, otherTok)
	c.Assert(resp.StatusCode, qt.Equals, 403)

	ghost := testutil.CreateUser(t, db, "ghost@example.com", "password1", models.RoleAdmin)
	ghostTok := testutil.Token(t, ghost)
	c.Assert(db.Exec("DELETE FROM user_roles WHERE user_id = ?", ghost.ID).Error, qt.IsNil)
	c.Assert(db.Delete(&models.User{}, ghost.ID).Error, qt.IsNil)
	resp, _ = testutil.Do(t, app, "GET", "/api/auth/me", nil, ghostTok)
	c.Assert(resp.StatusCode, qt.Equals, 401)
}

func TestRegisterLoginFlow(t *testing.T) {
	c := qt.New(t)
	app, _ := testutil.NewServer(t)

	resp, env := testutil.Do(t, app, "POST", "/api/auth/register", map[string]any{
		"name": "Lucía", "email": "lucia@example.com", "password": "password1", "roles": []string{"admin"},
	}, "")
	c.Assert(resp.StatusCode, qt.Equals, 201)

	resp, env = testutil.Do(t, app, "POST", "/api/auth/login", map[string]string{
		"email": "lucia@example.com", "password": "password1",
	}, "")
	c.Assert(resp.StatusCode, qt.Equals, 200)
	var out struct {
		Token string `json:"token"`
	}
	env.Decode(t, &out)

	// a self-registered account cannot reach admin routes
	resp, _ = testutil.Do(t, app, "GET", "/api/users", nil, out.Token)
	c.Assert(resp.StatusCode, qt.Equals, 403)

	resp, _ = testutil.Do(t, app, "GET", "/api/auth/me", nil, out.Token)
	c.Assert(resp.StatusCode, qt.Equals, 200)
}

func TestCORSPreflight(t *testing.T) {
	c := qt.New(t)
	cfg := testutil.Config()
	cfg.CORSOrigins = []string{"http://localhost:5173"}
	testutil.NewDB(t)
	app := server.New(cfg, auth.Providers{})

	req := httptest.NewRequest("OPTIONS", "/api/products", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := app.Test(req)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 204)
	c.Assert(resp.Header.Get("Access-Control-Allow-Origin"), qt.Equals, "http://localhost:5173")
}
