//go:build e2e

package e2e

import (
	"os"
	"strconv"
	"time"
)

// Config holds the knobs of the live-tenant tests.
type Config struct {
	EnvFile      string
	SettingsFile string
	Timeout      time.Duration
	ShowScreen   bool
	Publish      bool
}

// LoadConfig reads the test configuration from PBI_E2E_* variables.
func LoadConfig() *Config {
	return &Config{
		EnvFile:      getEnvOrDefault("PBI_E2E_ENV_FILE", "../.env"),
		SettingsFile: getEnvOrDefault("PBI_E2E_SETTINGS", "../settings.ini"),
		Timeout:      getTimeoutFromEnv("PBI_E2E_TIMEOUT", 20*time.Minute),
		ShowScreen:   getBoolFromEnv("PBI_E2E_SHOW_SCREEN", false),
		Publish:      getBoolFromEnv("PBI_E2E_PUBLISH", false),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getTimeoutFromEnv(key string, defaultValue time.Duration) time.Duration {
	duration, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return duration
}

func getBoolFromEnv(key string, defaultValue bool) bool {
	result, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return result
}
