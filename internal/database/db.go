package database

import (
	"errors"
	"fmt"
	"time"

	"optica-backend/internal/config"
	"optica-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects with the given driver. TranslateError is on so unique
// violations surface as gorm.ErrDuplicatedKey on every driver.
func Open(driver, dsn string, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(NormalizeDSN(dsn))
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

// Init opens the configured database, migrates it when enabled and seeds the base roles.
func Init(cfg *config.Config) error {
	db, err := Open(cfg.DBDriver, cfg.DatabaseDSN, cfg.Debug)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if cfg.UsesDefaultDSN() {
		zap.L().Warn("DATABASE_DSN is using the local development default")
	}

	if cfg.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return err
		}
	}
	if err := SeedRoles(db); err != nil {
		return err
	}

	DB = db
	zap.L().Info("database ready", zap.String("driver", cfg.DBDriver), zap.Bool("auto_migrate", cfg.AutoMigrate))
	return nil
}

func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Role{},
		&models.Branch{},
		&models.User{},
		&models.Color{},
		&models.Brand{},
		&models.Product{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

var roleDescriptions = map[models.RoleName]string{
	models.RoleAdmin:       "Full access to the intranet",
	models.RoleVendor:      "Sales staff, manages products",
	models.RoleOptometrist: "Eye care professional",
	models.RoleClient:      "Customer account",
}

// SeedRoles creates the system roles; safe to run repeatedly.
func SeedRoles(db *gorm.DB) error {
	for _, name := range models.SystemRoles {
		role := models.Role{Name: name, Description: roleDescriptions[name], IsSystem: true}
		if err := db.Where("name = ?", name).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
	}
	return nil
}

// SeedAdmin creates an admin account unless the email is already taken.
// It reports whether a user was created.
func SeedAdmin(db *gorm.DB, name, email, passwordHash string) (bool, error) {
	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	var role models.Role
	if err := db.Where("name = ?", models.RoleAdmin).First(&role).Error; err != nil {
		return false, fmt.Errorf("admin role missing, seed roles first: %w", err)
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: &passwordHash,
		Active:       true,
		Roles:        []models.Role{role},
	}
	if err := db.Create(&user).Error; err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

func Ping() error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
