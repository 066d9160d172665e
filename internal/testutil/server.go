package testutil

import (
	"testing"

	"optica-backend/internal/auth"
	"optica-backend/internal/config"
	"optica-backend/internal/server"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const AppName = "optica-test"

// Config is a valid configuration for tests; tokens from Token verify against it.
func Config() *config.Config {
	return &config.Config{
		AppName:           AppName,
		DBDriver:          "sqlite",
		JWTSecret:         JWTSecret,
		JWTExpiryHours:    1,
		FrontendURL:       "http://front.test",
		LowStockThreshold: 5,
	}
}

// NewServer returns the full application backed by a fresh database.
func NewServer(t testing.TB) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := NewDB(t)
	return server.New(Config(), auth.Providers{}), db
}
