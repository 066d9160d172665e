package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"optica-backend/internal/auth"
	"optica-backend/internal/config"
	"optica-backend/internal/database"
	"optica-backend/internal/logger"
	"optica-backend/internal/server"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

const (
	adminEmailFlag    = "admin-email"
	adminPasswordFlag = "admin-password"
	adminNameFlag     = "admin-name"
)

var seedFlags = map[string]cobraflags.Flag{
	adminEmailFlag: &cobraflags.StringFlag{
		Name:  adminEmailFlag,
		Value: "",
		Usage: "Email of the admin account to create",
	},
	adminPasswordFlag: &cobraflags.StringFlag{
		Name:  adminPasswordFlag,
		Value: "",
		Usage: "Password of the admin account (at least 8 characters)",
	},
	adminNameFlag: &cobraflags.StringFlag{
		Name:  adminNameFlag,
		Value: "Administrator",
		Usage: "Display name of the admin account",
	},
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "optica",
		Short:        "Optical retail intranet backend",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newSeedCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = zap.L().Sync() }()

			if err := database.Init(cfg); err != nil {
				zap.L().Error("database init failed", zap.Error(err))
				return err
			}

			providers := auth.NewProviders(cfg.OAuth)
			for name := range providers {
				zap.L().Info("oauth provider enabled", zap.String("provider", string(name)))
			}

			app := server.New(cfg, providers)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				zap.L().Info("listening", zap.String("port", cfg.HTTPPort))
				errc <- app.Listen(":" + cfg.HTTPPort)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			zap.L().Info("shutting down")
			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				zap.L().Error("shutdown", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL migrations (postgres)",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = zap.L().Sync() }()

			if cfg.DBDriver != "postgres" {
				return fmt.Errorf("migrate supports postgres only, DB_DRIVER is %q", cfg.DBDriver)
			}
			return database.Migrate(cfg.DatabaseDSN)
		},
	}
}

func newSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the system roles and an optional admin account",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = zap.L().Sync() }()

			db, err := database.Open(cfg.DBDriver, cfg.DatabaseDSN, cfg.Debug)
			if err != nil {
				return err
			}
			if cfg.AutoMigrate {
				if err := database.AutoMigrate(db); err != nil {
					return err
				}
			}
			if err := database.SeedRoles(db); err != nil {
				return err
			}
			zap.L().Info("roles seeded")

			email := auth.NormalizeEmail(seedFlags[adminEmailFlag].GetString())
			if email == "" {
				return nil
			}
			password := seedFlags[adminPasswordFlag].GetString()
			if len(password) < 8 {
				return errors.New("--admin-password must be at least 8 characters")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			created, err := database.SeedAdmin(db, seedFlags[adminNameFlag].GetString(), email, hash)
			if err != nil {
				return err
			}
			zap.L().Info("admin seed", zap.String("email", email), zap.Bool("created", created))
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, seedFlags)
	return cmd
}

func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := logger.Init(cfg.AppName, cfg.LogPath, cfg.Debug); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, nil
}
