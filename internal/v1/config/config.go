package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	DatabaseURL string
	Port        string

	// Optional variables with defaults
	RedisURL        string
	AuthJWTSecret   string
	AllowedOrigins  string
	CatalogPath     string
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool

	// Gameplay / persistence tuning
	MaxPlayers            int
	HotSnapshotIntervalMs int
	DBSnapshotIntervalMs  int
	HotSnapshotTTLSeconds int

	// Rate Limits (format: "<count>-<period>", e.g. "100-M")
	RateLimitWsIP     string
	RateLimitWsUser   string
	RateLimitAPIRooms string
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: DATABASE_URL (postgres DSN for the durable snapshot store)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required")
	}

	// Optional: PORT (defaults to 3001)
	cfg.Port = getEnvOrDefault("PORT", "3001")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: REDIS_URL (hot snapshot cache; empty disables the hot tier)
	cfg.RedisURL = os.Getenv("REDIS_URL")

	// Optional: AUTH_JWT_SECRET (empty means guest-only identity; min 32 chars when set)
	cfg.AuthJWTSecret = os.Getenv("AUTH_JWT_SECRET")
	if cfg.AuthJWTSecret != "" && len(cfg.AuthJWTSecret) < 32 {
		errors = append(errors, fmt.Sprintf("AUTH_JWT_SECRET must be at least 32 characters (got %d)", len(cfg.AuthJWTSecret)))
	}

	// Optional: MAX_PLAYERS (defaults to 20)
	cfg.MaxPlayers = getEnvIntOrDefault("MAX_PLAYERS", 20, &errors)
	if cfg.MaxPlayers < 2 {
		errors = append(errors, fmt.Sprintf("MAX_PLAYERS must be at least 2 (got %d)", cfg.MaxPlayers))
	}

	// Persistence cadence. The durable interval should dominate the hot interval.
	cfg.HotSnapshotIntervalMs = getEnvIntOrDefault("HOT_SNAPSHOT_INTERVAL_MS", 750, &errors)
	cfg.DBSnapshotIntervalMs = getEnvIntOrDefault("DB_SNAPSHOT_INTERVAL_MS", 3500, &errors)
	if cfg.HotSnapshotIntervalMs < 0 || cfg.DBSnapshotIntervalMs < 0 {
		errors = append(errors, "snapshot intervals must be non-negative")
	}

	// Hot snapshot TTL (floor 60 seconds)
	cfg.HotSnapshotTTLSeconds = getEnvIntOrDefault("HOT_SNAPSHOT_TTL_SECONDS", 43200, &errors)
	if cfg.HotSnapshotTTLSeconds < 60 {
		cfg.HotSnapshotTTLSeconds = 60
	}

	// Optional: CATALOG_PATH (external question catalog JSON; empty uses the embedded bank)
	cfg.CatalogPath = os.Getenv("CATALOG_PATH")

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Rate Limits (Defaults: M = Minute)
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "30-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "10-M")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"database_url", redactSecret(cfg.DatabaseURL),
		"redis_url", redactSecret(cfg.RedisURL),
		"auth_jwt_secret", redactSecret(cfg.AuthJWTSecret),
		"port", cfg.Port,
		"max_players", cfg.MaxPlayers,
		"hot_snapshot_interval_ms", cfg.HotSnapshotIntervalMs,
		"db_snapshot_interval_ms", cfg.DBSnapshotIntervalMs,
		"hot_snapshot_ttl_seconds", cfg.HotSnapshotTTLSeconds,
		"catalog_path", cfg.CatalogPath,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault parses an integer env var, appending to errors on malformed input
func getEnvIntOrDefault(key string, defaultValue int, errors *[]string) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("%s must be an integer (got '%s')", key, value))
		return defaultValue
	}
	return n
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
