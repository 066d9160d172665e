package admin_test

import (
	"fmt"
	"testing"

	"optica-backend/internal/admin"
	"optica-backend/internal/auth"
	"optica-backend/internal/httpx"
	"optica-backend/internal/models"
	"optica-backend/internal/testutil"

	qt "github.com/frankban/quicktest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	auth.Cost = bcrypt.MinCost
}

func auditCount(t *testing.T, db *gorm.DB, entityType string, action models.AuditAction) int64 {
	t.Helper()
	var n int64
	qt.Assert(t, db.Model(&models.AuditLog{}).
		Where("entity_type = ? AND action = ?", entityType, action).
		Count(&n).Error, qt.IsNil)
	return n
}

func TestBranchCRUD(t *testing.T) {
	c := qt.New(t)
	app, db := testutil.NewServer(t)
	adminTok := testutil.Token(t, testutil.CreateUser(t, db, "admin@example.com", "password1", models.RoleAdmin))
	clientTok := testutil.Token(t, testutil.CreateUser(t, db, "client@example.com", "password1", models.RoleClient))

	resp, env := testutil.Do(t, app, "POST", "/api/branches", map[string]string{
		"name": " Miraflores ", "city": "Lima", "email": "MIRA@optica.pe",
	}, adminTok)
	c.Assert(resp.StatusCode, qt.Equals, 201)
	var b admin.BranchResponse
	env.Decode(t, &b)
	c.Assert(b.Name, qt.Equals, "Miraflores")
	c.Assert(b.Email, qt.Equals, "mira@optica.pe")
	c.Assert(b.Active, qt.IsTrue)

	resp, _ = testutil.Do(t, app, "POST", "/api/branches", map[string]string{"name": "Miraflores"}, adminTok)
	c.Assert(resp.StatusCode, qt.Equals, 409)

	path := fmt.Sprintf("/api/branches/%d", b.ID)
	resp, env = testutil.Do(t, app, "PUT", path, map[string]string{"phone": "01-555"}, adminTok)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	env.Decode(t, &b)
	c.Assert(b.Phone, qt.Equals, "01-555")
	c.Assert(b.City, qt.Equals, "Lima")

	resp, _ = testutil.Do(t, app, "PUT", path, map[string]string{"name": "  "}, adminTok)
	c.Assert(resp.StatusCode, qt.Equals, 400)

	resp, _ = testutil.Do(t, app, "DELETE", path, nil, adminTok)
	c.Assert(resp.StatusCode, qt.Equals, 200)

	// soft deleted: row kept, hidden from default lists and from non-admins
	var stored models.Branch
	c.Assert(db.First(&stored, b.ID).Error, qt.IsNil)
	c.Assert(stored.Active, qt.IsFalse)

	var list []admin.BranchResponse
	_, env = testutil.Do(t, app, "GET", "/api/branches", nil, clientTok)
	env.Decode(t, &list)
	c.Assert(list, qt.HasLen, 0)

	_, env = testutil.Do(t, app, "GET", "/api/branches?include_inactive=true", nil, clientTok)
	env.Decode(t, &list)
	c.Assert(list, qt.HasLen, 0)

	_, env = testutil.Do(t, app, "GET", "/api/branches?include_inactive=true", nil, adminTok)
	env.Decode(t, &list)
	c.Assert(list, qt.HasLen, 1)

	resp, _ = testutil.Do(t, app, "GET", path, nil, clientTok)
	c.Assert(resp.StatusCode, qt.Equals, 404)
	resp, _ = testutil.Do(t, app, "GET", path, nil, adminTok)
	c.Assert(resp.StatusCode, qt.Equals, 200)

	resp, _ = testutil.Do(t, app, "GET", "/api/branches/abc", nil, adminTok)
	c.Assert(resp.StatusCode, qt.Equals, 400)
	resp, _ = testutil.Do(t, app, "GET", "/api/branches/999", nil, adminTok)
	c.Assert(resp.StatusCode, qt.Equals, 404)

	c.Assert(auditCount(t, db, "branch", models.AuditActionCreate), qt.Equals, int64(1))
	c.Assert(auditCount(t, db, "branch", models.AuditActionUpdate), qt.Equals, int64(1))
	c.Assert(auditCount(t, db, "branch", models.AuditActionDelete), qt.Equals, int64(1))
}

func TestUserManagement(t *testing.T) {
	c := qt.New(t)
	app, db := testutil.NewServer(t)
	me := testutil.CreateUser(t, db, "admin@example.com", "password1", models.RoleAdmin)
	tok := testutil.Token(t, me)

	branch := models.Branch{Name: "Centro", Active: true}
	c.Assert(db.Create(&branch).Error, qt.IsNil)

	resp, env := testutil.Do(t, app, "POST", "/api/users", map[string]any{
		"name": "Vera", "email": "Vera@Optica.pe", "password": "password1",
		"roles": []string{"vendor", "optometrist"}, "branch_id": branch.ID,
	}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 201)
	var u auth.UserResponse
	env.Decode(t, &u)
	c.Assert(u.Email, qt.Equals, "vera@optica.pe")
	c.Assert(u.Roles, qt.HasLen, 2)
	c.Assert(u.Branch.Name, qt.Equals, "Centro")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"duplicate email", map[string]any{"name": "X", "email": "vera@optica.pe", "password": "password1", "roles": []string{"client"}}, 409},
		{"unknown role", map[string]any{"name": "X", "email": "x@optica.pe", "password": "password1", "roles": []string{"wizard"}}, 400},
		{"no roles", map[string]any{"name": "X", "email": "x@optica.pe", "password": "password1"}, 400},
		{"missing branch", map[string]any{"name": "X", "email": "x@optica.pe", "password": "password1", "roles": []string{"client"}, "branch_id": 999}, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := testutil.Do(t, app, "POST", "/api/users", tt.body, tok)
			qt.Assert(t, resp.StatusCode, qt.Equals, tt.want)
		})
	}

	path := fmt.Sprintf("/api/users/%d", u.ID)
	resp, env = testutil.Do(t, app, "PUT", path, map[string]any{"phone": "999", "clear_branch": true}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	env.Decode(t, &u)
	c.Assert(u.Phone, qt.Equals, "999")
	c.Assert(u.BranchID, qt.IsNil)

	resp, env = testutil.Do(t, app, "PUT", path+"/roles", map[string]any{"roles": []string{"client"}}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	env.Decode(t, &u)
	c.Assert(u.Roles, qt.DeepEquals, []string{"client"})

	// list with filters
	var page httpx.Paginated[auth.UserResponse]
	_, env = testutil.Do(t, app, "GET", "/api/users?role=client", nil, tok)
	env.Decode(t, &page)
	c.Assert(page.Pagination.Total, qt.Equals, int64(1))
	c.Assert(page.Items[0].ID, qt.Equals, u.ID)

	_, env = testutil.Do(t, app, "GET", "/api/users?q=VERA", nil, tok)
	env.Decode(t, &page)
	c.Assert(page.Pagination.Total, qt.Equals, int64(1))

	resp, _ = testutil.Do(t, app, "DELETE", path, nil, tok)
	c.Assert(resp.StatusCode, qt.Equals, 200)

	_, env = testutil.Do(t, app, "GET", "/api/users", nil, tok)
	env.Decode(t, &page)
	c.Assert(page.Pagination.Total, qt.Equals, int64(1)) // only the admin

	_, env = testutil.Do(t, app, "GET", "/api/users?include_inactive=true", nil, tok)
	env.Decode(t, &page)
	c.Assert(page.Pagination.Total, qt.Equals, int64(2))

	// deactivated users cannot log in
	resp, _ = testutil.Do(t, app, "POST", "/api/auth/login", map[string]string{"email": "vera@optica.pe", "password": "password1"}, "")
	c.Assert(resp.StatusCode, qt.Equals, 403)

	c.Assert(auditCount(t, db, "user", models.AuditActionCreate), qt.Equals, int64(1))
	c.Assert(auditCount(t, db, "user", models.AuditActionDelete), qt.Equals, int64(1))
	c.Assert(auditCount(t, db, "user_roles", models.AuditActionUpdate), qt.Equals, int64(1))
}

func TestAdminCannotLockThemselvesOut(t *testing.T) {
	c := qt.New(t)
	app, db := testutil.NewServer(t)
	me := testutil.CreateUser(t, db, "admin@example.com", "password1", models.RoleAdmin)
	tok := testutil.Token(t, me)
	path := fmt.Sprintf("/api/users/%d", me.ID)

	resp, _ := testutil.Do(t, app, "DELETE", path, nil, tok)
	c.Assert(resp.StatusCode, qt.Equals, 400)

	resp, _ = testutil.Do(t, app, "PUT", path, map[string]any{"active": false}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 400)

	resp, _ = testutil.Do(t, app, "PUT", path+"/roles", map[string]any{"roles": []string{"vendor"}}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 400)

	var stored models.User
	c.Assert(db.First(&stored, me.ID).Error, qt.IsNil)
	c.Assert(stored.Active, qt.IsTrue)
}

func TestRoleManagement(t *testing.T) {
	c := qt.New(t)
	app, db := testutil.NewServer(t)
	tok := testutil.Token(t, testutil.CreateUser(t, db, "admin@example.com", "password1", models.RoleAdmin))

	var roles []admin.RoleResponse
	_, env := testutil.Do(t, app, "GET", "/api/roles", nil, tok)
	env.Decode(t, &roles)
	c.Assert(roles, qt.HasLen, 4)
	for _, r := range roles {
		c.Assert(r.IsSystem, qt.IsTrue)
		if r.Name == models.RoleAdmin {
			c.Assert(r.UserCount, qt.Equals, int64(1))
		}
	}

	resp, env := testutil.Do(t, app, "POST", "/api/roles", map[string]string{"name": " Receptionist ", "description": "Front desk"}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 201)
	var role admin.RoleResponse
	env.Decode(t, &role)
	c.Assert(role.Name, qt.Equals, models.RoleName("receptionist"))
	c.Assert(role.IsSystem, qt.IsFalse)

	resp, _ = testutil.Do(t, app, "POST", "/api/roles", map[string]string{"name": "receptionist"}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 409)

	var adminRole models.Role
	c.Assert(db.Where("name = ?", models.RoleAdmin).First(&adminRole).Error, qt.IsNil)
	adminPath := fmt.Sprintf("/api/roles/%d", adminRole.ID)

	resp, _ = testutil.Do(t, app, "PUT", adminPath, map[string]string{"name": "superuser"}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 400)
	resp, _ = testutil.Do(t, app, "PUT", adminPath, map[string]string{"description": "Everything"}, tok)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	resp, _ = testutil.Do(t, app, "DELETE", adminPath, nil, tok)
	c.Assert(resp.StatusCode, qt.Equals, 400)

	// assigned custom roles cannot be deleted
	u := testutil.CreateUser(t, db, "desk@example.com", "password1", models.RoleName("receptionist"))
	rolePath := fmt.Sprintf("/api/roles/%d", role.ID)
	resp, _ = testutil.Do(t, app, "DELETE", rolePath, nil, tok)
	c.Assert(resp.StatusCode, qt.Equals, 409)

	c.Assert(db.Model(u).Association("Roles").Clear(), qt.IsNil)
	resp, _ = testutil.Do(t, app, "DELETE", rolePath, nil, tok)
	c.Assert(resp.StatusCode, qt.Equals, 200)
	resp, _ = testutil.Do(t, app, "GET", rolePath, nil, tok)
	c.Assert(resp.StatusCode, qt.Equals, 404)

	c.Assert(auditCount(t, db, "role", models.AuditActionDelete), qt.Equals, int64(1))
}
