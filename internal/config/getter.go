// Package config provides functions for reading config settings from ENV.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

var errUnparseable = errors.New("unparseable value")

// parseEnv reads key and runs it through parse, falling back to defaultValue
// when the variable is unset, empty or malformed.
func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := parse(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvStr returns a string environment variable value or a default if not set.
func GetEnvStr(key, defaultValue string) string {
	return parseEnv(key, defaultValue, func(v string) (string, error) {
		return v, nil
	})
}

// GetEnvInt returns an int environment variable value or a default if not
// set or not a valid integer.
func GetEnvInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

// GetEnvInt64 returns an int64 environment variable value or a default if
// not set or not a valid integer.
func GetEnvInt64(key string, defaultValue int64) int64 {
	return parseEnv(key, defaultValue, func(v string) (int64, error) {
		return strconv.ParseInt(v, 10, 64)
	})
}

// GetEnvBool returns a bool environment variable value or a default if not set.
// Accepts "true", "1", "yes" as true and "false", "0", "no" as false,
// case-insensitive.
func GetEnvBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		default:
			return false, errUnparseable
		}
	})
}

// GetEnvDuration returns a duration environment variable value, in Go
// duration syntax like "30s" or "5m", or a default if not set or malformed.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration)
}

// GetEnvLogLevel returns a slog level environment variable value or a
// default if not set. Accepts debug, info, warn/warning and error,
// case-insensitive.
func GetEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	return parseEnv(key, defaultValue, func(v string) (slog.Level, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "debug":
			return slog.LevelDebug, nil
		case "info":
			return slog.LevelInfo, nil
		case "warn", "warning":
			return slog.LevelWarn, nil
		case "error":
			return slog.LevelError, nil
		default:
			return 0, errUnparseable
		}
	})
}

// ParseCommaSeparatedList parses a comma-separated string into a slice of
// trimmed strings. Empty values are filtered out.
func ParseCommaSeparatedList(input string) []string {
	result := []string{}

	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
