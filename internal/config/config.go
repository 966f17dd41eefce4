package config

import (
	"os"
	"time"
)

type Config struct {
	// App
	AppEnv string
	Port   string

	// Database
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPass      string
	DBName      string
	DBSSLMode   string

	JWTSecret string

	// Asana
	AsanaToken       string
	AsanaWorkspaceID string
	CompletedSince   time.Time

	// Google Sheets
	SpreadsheetID         string
	GoogleCredentialsFile string

	// Slack (optional, notifications are skipped when unset)
	SlackToken   string
	SlackChannel string

	// Admin login
	AdminUsername string
	AdminPassword string
}

func Load() (*Config, error) {
	cfg := &Config{
		// App
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8001"),

		// DB
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPass:      getEnv("DB_PASS", "postgres"),
		DBName:      getEnv("DB_NAME", "asana_reporter"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "secret123"),

		// Asana
		AsanaToken:       getEnv("ASANA_TOKEN", ""),
		AsanaWorkspaceID: getEnv("ASANA_WORKSPACE_ID", ""),
		CompletedSince:   getEnvDate("COMPLETED_SINCE", "2023-01-01"),

		// Google Sheets
		SpreadsheetID:         getEnv("SPREADSHEET_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),

		// Slack
		SlackToken:   getEnv("SLACK_TOKEN", ""),
		SlackChannel: getEnv("SLACK_CHANNEL", ""),

		// Admin login
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "changeme-2025"),
	}

	return cfg, nil
}

// getEnv returns environment variable or default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDate returns a YYYY-MM-DD env var as a UTC midnight time.
func getEnvDate(key, defaultValue string) time.Time {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		parsed, _ = time.Parse("2006-01-02", defaultValue)
	}
	return parsed.UTC()
}
