package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the notifier service. It is built once
// at startup and passed by reference into the components that need it; no
// component reads the environment on its own.
type Config struct {
	Port         string
	DatabasePath string
	LogLevel     string
	Environment  string

	// Shared secret for the cron trigger endpoint. Required in production.
	CronSecret string

	// Web push signing identity. When the key pair is absent the web
	// transport is inert.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDEmail      string

	// FCM service-account credentials as a JSON blob. Absent disables FCM.
	FirebaseServiceAccount string

	// Expo project the mobile app's tokens are scoped to. Informational;
	// the push API itself is keyed by token.
	ExpoProjectID string

	// Optional local HH:MM bounds surfaced through the status endpoint.
	QuietHoursStart string
	QuietHoursEnd   string
}

// Load reads configuration from environment variables and a .env file if one
// is present. Existing environment variables are never overridden by .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getenv("PORT", "8080"),
		DatabasePath:           getenv("DATABASE_PATH", "notifier.db"),
		LogLevel:               getenv("LOG_LEVEL", "info"),
		Environment:            strings.ToLower(getenv("ENVIRONMENT", "development")),
		CronSecret:             os.Getenv("CRON_SECRET"),
		VAPIDPublicKey:         os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:        os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDEmail:             getenv("VAPID_EMAIL", "mailto:hello@zenphony.audio"),
		FirebaseServiceAccount: os.Getenv("FIREBASE_SERVICE_ACCOUNT"),
		ExpoProjectID:          os.Getenv("EXPO_PROJECT_ID"),
		QuietHoursStart:        os.Getenv("QUIET_HOURS_START"),
		QuietHoursEnd:          os.Getenv("QUIET_HOURS_END"),
	}

	if cfg.IsProduction() && cfg.CronSecret == "" {
		return nil, fmt.Errorf("CRON_SECRET is required in production")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with production semantics
// (cron endpoint requires bearer auth).
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// WebPushConfigured reports whether the VAPID key pair is present.
func (c *Config) WebPushConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// FCMConfigured reports whether service-account credentials are present.
func (c *Config) FCMConfigured() bool {
	return c.FirebaseServiceAccount != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
