package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment with
// an optional .env file for local development.
type Config struct {
	Env      string
	HTTPPort string

	Database  DatabaseConfig
	Auth      AuthConfig
	Jobs      JobsConfig
	Dashboard DashboardConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type AuthConfig struct {
	JWTSecret string
}

// JobsConfig pins each daily job to an hour of the day, UTC.
type JobsConfig struct {
	AgingHourUTC    int
	ReminderHourUTC int
	PruneHourUTC    int
}

type DashboardConfig struct {
	CacheTTL time.Duration
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit env vars always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "billing"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Jobs: JobsConfig{
			AgingHourUTC:    getEnvInt("JOB_AGING_HOUR_UTC", 0),
			ReminderHourUTC: getEnvInt("JOB_REMINDER_HOUR_UTC", 8),
			PruneHourUTC:    getEnvInt("JOB_PRUNE_HOUR_UTC", 3),
		},
		Dashboard: DashboardConfig{
			CacheTTL: getEnvDuration("DASHBOARD_CACHE_TTL", 5*time.Minute),
		},
	}

	if cfg.Auth.JWTSecret == "" && cfg.Env != "development" {
		return nil, fmt.Errorf("JWT_SECRET is required outside development")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
