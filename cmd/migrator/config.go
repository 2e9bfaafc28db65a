package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	envconfig "github.com/metacord-io/metacord/internal/config"
)

// Configuration errors.
var (
	ErrDatabaseURLRequired    = errors.New("DATABASE_URL cannot be empty")
	ErrMigrationTableRequired = errors.New("MIGRATION_TABLE cannot be empty")
	ErrMigrationsPathRequired = errors.New("MIGRATIONS_PATH cannot be empty")
)

// Config holds the migration tool configuration, read entirely from the
// environment so the same binary runs in CI, containers and on a laptop.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationsPath points at the directory holding the schema migration
	// files. Defaults to the current directory, where the registry's
	// migrations live next to the tool.
	MigrationsPath string

	// MigrationTable is the golang-migrate tracking table.
	MigrationTable string
}

// LoadConfig loads and validates configuration from environment variables.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabaseURL:    envconfig.GetEnvStr("DATABASE_URL", ""),
		MigrationsPath: envconfig.GetEnvStr("MIGRATIONS_PATH", "."),
		MigrationTable: envconfig.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks the configuration and resolves the migrations path to an
// absolute directory that exists.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableRequired
	}

	if c.MigrationsPath == "" {
		return ErrMigrationsPathRequired
	}

	absPath, err := filepath.Abs(c.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	c.MigrationsPath = absPath

	if _, err := os.Stat(c.MigrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMissingDirectory, c.MigrationsPath)
	}

	return nil
}

// maskDatabaseURL masks the password in a connection URL for logging.
func maskDatabaseURL(url string) string {
	schemeEnd := strings.Index(url, "://")
	if schemeEnd == -1 {
		return url
	}

	rest := url[schemeEnd+3:]

	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return url
	}

	userInfo := rest[:atIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 || colonIndex == len(userInfo)-1 {
		return url
	}

	return url[:schemeEnd+3] + userInfo[:colonIndex] + ":***" + rest[atIndex:]
}
