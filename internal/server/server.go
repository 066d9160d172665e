// Package server assembles the HTTP application.
package server

import (
	"strings"
	"time"

	"optica-backend/internal/admin"
	"optica-backend/internal/audit"
	"optica-backend/internal/auth"
	"optica-backend/internal/config"
	"optica-backend/internal/dashboard"
	"optica-backend/internal/database"
	"optica-backend/internal/httpx"
	"optica-backend/internal/inventory"
	"optica-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// New builds the fiber app with every route mounted. database.DB must be set.
func New(cfg *config.Config, providers auth.Providers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: httpx.ErrorHandler,
		BodyLimit:    10 << 20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.Debug}))
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(RequestLogger(zap.L().Named("http")))
	app.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	app.Get("/health", HealthHandler())

	ti := auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.JWTExpiryHours)*time.Hour, cfg.AppName)
	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register", auth.RegisterHandler(ti))
	api.Post("/auth/login", auth.LoginHandler(ti))
	api.Get("/auth/oauth/:provider", auth.OAuthRedirectHandler(providers))
	api.Get("/auth/oauth/:provider/callback", auth.OAuthCallbackHandler(providers, ti, cfg.FrontendURL))

	// Protected
	protected := api.Group("", auth.JWTMiddleware(ti))
	adminOnly := auth.RequireRole(models.RoleAdmin)
	productWriters := auth.RequireRole(models.RoleAdmin, models.RoleVendor)

	protected.Get("/auth/me", auth.MeHandler())
	protected.Put("/auth/password", auth.ChangePasswordHandler())
	protected.Get("/dashboard", dashboard.DashboardHandler(cfg.LowStockThreshold))

	// Users & roles
	users := protected.Group("/users", adminOnly)
	users.Get("/", admin.ListUsersHandler())
	users.Post("/", admin.CreateUserHandler())
	users.Get("/:id", admin.GetUserHandler())
	users.Put("/:id", admin.UpdateUserHandler())
	users.Delete("/:id", admin.DeleteUserHandler())
	users.Put("/:id/roles", admin.SetUserRolesHandler())

	roles := protected.Group("/roles", adminOnly)
	roles.Get("/", admin.ListRolesHandler())
	roles.Post("/", admin.CreateRoleHandler())
	roles.Get("/:id", admin.GetRoleHandler())
	roles.Put("/:id", admin.UpdateRoleHandler())
	roles.Delete("/:id", admin.DeleteRoleHandler())

	// Branches
	protected.Get("/branches", admin.ListBranchesHandler())
	protected.Get("/branches/:id", admin.GetBranchHandler())
	protected.Post("/branches", adminOnly, admin.CreateBranchHandler())
	protected.Put("/branches/:id", adminOnly, admin.UpdateBranchHandler())
	protected.Delete("/branches/:id", adminOnly, admin.DeleteBranchHandler())

	// Catalog
	protected.Get("/colors", inventory.ListColorsHandler())
	protected.Get("/colors/:id", inventory.GetColorHandler())
	protected.Post("/colors", adminOnly, inventory.CreateColorHandler())
	protected.Put("/colors/:id", adminOnly, inventory.UpdateColorHandler())
	protected.Delete("/colors/:id", adminOnly, inventory.DeleteColorHandler())

	protected.Get("/brands", inventory.ListBrandsHandler())
	protected.Get("/brands/:id", inventory.GetBrandHandler())
	protected.Post("/brands", adminOnly, inventory.CreateBrandHandler())
	protected.Put("/brands/:id", adminOnly, inventory.UpdateBrandHandler())
	protected.Delete("/brands/:id", adminOnly, inventory.DeleteBrandHandler())

	// Products
	protected.Get("/products", inventory.ListProductsHandler())
	protected.Post("/products/import", adminOnly, inventory.ImportProductsHandler())
	protected.Get("/products/:id", inventory.GetProductHandler())
	protected.Post("/products", productWriters, inventory.CreateProductHandler())
	protected.Put("/products/:id", productWriters, inventory.UpdateProductHandler())
	protected.Delete("/products/:id", productWriters, inventory.DeleteProductHandler())

	// Audit
	auditLogs := protected.Group("/audit-logs", adminOnly)
	auditLogs.Get("/", audit.ListAuditLogsHandler())
	auditLogs.Get("/export", audit.ExportAuditLogsHandler())
	auditLogs.Post("/:id/undo", audit.UndoAuditLogHandler())

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "route not found")
	})
	return app
}

// GET /health
func HealthHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := database.Ping(); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			return httpx.Fail(c, fiber.StatusServiceUnavailable, "database unavailable", nil)
		}
		return httpx.OK(c, fiber.Map{"status": "up"})
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOrigins = "*"
		return cfg
	}
	cfg.AllowOrigins = strings.Join(origins, ",")
	cfg.AllowCredentials = true
	return cfg
}
