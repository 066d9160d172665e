package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName           string
	HTTPPort          string
	Debug             bool
	LogPath           string
	DBDriver          string // postgres | sqlite
	DatabaseDSN       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	AutoMigrate       bool
	JWTSecret         string
	JWTExpiryHours    int
	CORSOrigins       []string
	FrontendURL       string
	LowStockThreshold int
	OAuth             OAuthConfig
}

type OAuthConfig struct {
	RedirectBaseURL string // callback URLs are <base>/api/auth/oauth/<provider>/callback
	Google          OAuthClient
	Facebook        OAuthClient
	Instagram       OAuthClient
}

type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

func (c OAuthClient) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

const defaultDSN = "host=localhost user=postgres password=postgres dbname=optica port=5432 sslmode=disable"

// Load reads .env (if present) and the process environment.
// Explicit env vars win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "optica")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DATABASE_DSN", defaultDSN)
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("OAUTH_REDIRECT_BASE_URL", "http://localhost:8080")
	v.SetDefault("LOW_STOCK_THRESHOLD", 5)

	cfg := &Config{
		AppName:           v.GetString("APP_NAME"),
		HTTPPort:          v.GetString("HTTP_PORT"),
		Debug:             v.GetBool("DEBUG"),
		LogPath:           v.GetString("LOG_PATH"),
		DBDriver:          strings.ToLower(v.GetString("DB_DRIVER")),
		DatabaseDSN:       v.GetString("DATABASE_DSN"),
		DBMaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:       v.GetBool("AUTO_MIGRATE"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTExpiryHours:    v.GetInt("JWT_EXPIRY_HOURS"),
		CORSOrigins:       splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		FrontendURL:       strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		LowStockThreshold: v.GetInt("LOW_STOCK_THRESHOLD"),
		OAuth: OAuthConfig{
			RedirectBaseURL: strings.TrimRight(v.GetString("OAUTH_REDIRECT_BASE_URL"), "/"),
			Google: OAuthClient{
				ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
				ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			},
			Facebook: OAuthClient{
				ClientID:     v.GetString("FACEBOOK_CLIENT_ID"),
				ClientSecret: v.GetString("FACEBOOK_CLIENT_SECRET"),
			},
			Instagram: OAuthClient{
				ClientID:     v.GetString("INSTAGRAM_CLIENT_ID"),
				ClientSecret: v.GetString("INSTAGRAM_CLIENT_SECRET"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTExpiryHours <= 0 {
		return errors.New("JWT_EXPIRY_HOURS must be positive")
	}
	return nil
}

// UsesDefaultDSN is true when DATABASE_DSN was left at the local development value.
func (c *Config) UsesDefaultDSN() bool {
	return c.DatabaseDSN == defaultDSN
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
