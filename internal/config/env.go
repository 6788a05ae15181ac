package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"geodata-ingest/internal/common/errors"
)

// configErrorf builds a formatted configuration error.
func configErrorf(format string, args ...interface{}) error {
	return errors.ConfigError(fmt.Sprintf(format, args...))
}

// getEnv retrieves an environment variable value or returns a default value
// if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// requireEnv retrieves a required environment variable, trimming whitespace.
// An absent or blank value is a configuration error naming the key.
func requireEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", errors.ConfigError(fmt.Sprintf("%s environment variable is required", key))
	}
	return value, nil
}

// getEnvInt parses an integer environment variable. A present but
// non-numeric value is a configuration error identifying the key and value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ConfigError(fmt.Sprintf("%s must be an integer, got: %s", key, value))
	}
	return parsed, nil
}

// getEnvBool parses a boolean environment variable.
// Accepts true/1/yes/on (case-insensitive); anything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
