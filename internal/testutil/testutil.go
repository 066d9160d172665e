// Package testutil holds helpers shared by package tests.
package testutil

import (
	"strings"
	"testing"

	"optica-backend/internal/database"
	"optica-backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const JWTSecret = "test-secret-test-secret-test-secret!"

// NewDB opens a private in-memory sqlite database, migrates and seeds it,
// and installs it as database.DB for the duration of the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open("sqlite", "file:"+name+"?mode=memory&cache=shared", false)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.SeedRoles(db); err != nil {
		t.Fatalf("seed: %v", err)
	}

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

// CreateUser inserts an active user with the given password and roles.
func CreateUser(t testing.TB, db *gorm.DB, email, password string, roles ...models.RoleName) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h := string(hash)

	var rs []models.Role
	if len(roles) > 0 {
		if err := db.Where("name IN ?", roles).Find(&rs).Error; err != nil {
			t.Fatalf("roles: %v", err)
		}
	}

	u := &models.User{
		Name:         strings.Split(email, "@")[0],
		Email:        email,
		PasswordHash: &h,
		Active:       true,
		Roles:        rs,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
