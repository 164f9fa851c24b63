package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvListen   = "SCHEDULR_LISTEN"
	EnvTimezone = "SCHEDULR_TIMEZONE"
	EnvDatabase = "SCHEDULR_DATABASE"
	EnvLogLevel = "SCHEDULR_LOG_LEVEL"
	EnvRefresh  = "SCHEDULR_REFRESH"
	EnvHorizon  = "SCHEDULR_HORIZON_DAYS"
)

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set in the process environment.
// A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides cfg fields from SCHEDULR_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvRefresh); v != "" {
		c.RefreshCron = v
	}
	if v := os.Getenv(EnvHorizon); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HorizonDays = n
		}
	}
}
