package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4/database/postgres"

	_ "github.com/golang-migrate/migrate/v4/source/file" // File source driver
	_ "github.com/lib/pq"                                // PostgreSQL driver

	migrate "github.com/golang-migrate/migrate/v4"
)

// MigrationRunner drives the registry schema forward and backward.
type MigrationRunner interface {
	// Up applies all pending migrations.
	Up() error

	// Down rolls back the most recent migration.
	Down() error

	// Status prints the current version and whether the schema is dirty.
	Status() error

	// Version prints the current migration version.
	Version() error

	// Drop removes every table in the database.
	Drop() error

	// Close releases the source and database handles.
	Close() error
}

// migrationRunner implements MigrationRunner on golang-migrate.
type migrationRunner struct {
	migrate *migrate.Migrate
	db      *sql.DB
	logger  *slog.Logger
}

// migrateLogger forwards golang-migrate's progress output to slog.
type migrateLogger struct {
	logger *slog.Logger
}

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrationRunner connects to the database, validates the migration set
// and prepares a golang-migrate instance over it. Validation runs before the
// driver is built so a malformed directory fails fast with a named cause.
func NewMigrationRunner(config *Config, logger *slog.Logger) (MigrationRunner, error) {
	logger.Info("Initializing migration runner",
		slog.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		slog.String("migrations_path", config.MigrationsPath),
		slog.String("migration_table", config.MigrationTable),
	)

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := NewMigrationSet(config.MigrationsPath).Validate(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migration validation failed: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: config.MigrationTable,
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceURL := fmt.Sprintf("file://%s", config.MigrationsPath)

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &migrationRunner{migrate: m, db: db, logger: logger}, nil
}

// Up applies all pending migrations.
func (r *migrationRunner) Up() error {
	err := r.migrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No new migrations to apply")
	} else {
		r.logger.Info("All migrations applied")
	}

	return nil
}

// Down rolls back the most recent migration only. Rolling back further takes
// repeated invocations.
func (r *migrationRunner) Down() error {
	err := r.migrate.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No migrations to roll back")
	} else {
		r.logger.Info("Rolled back most recent migration")
	}

	return nil
}

// Status prints the current schema version and dirty flag.
func (r *migrationRunner) Status() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("Migration status: no migrations applied yet")

			return nil
		}

		return fmt.Errorf("failed to get migration version: %w", err)
	}

	state := "clean"
	if dirty {
		state = "dirty (needs manual intervention)"
	}

	fmt.Printf("Migration status: version %d (%s)\n", ver, state)

	return nil
}

// Version prints the current migration version.
func (r *migrationRunner) Version() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("Current version: no migrations applied")

			return nil
		}

		return fmt.Errorf("failed to get migration version: %w", err)
	}

	dirtyNote := ""
	if dirty {
		dirtyNote = " (dirty)"
	}

	fmt.Printf("Current version: %d%s\n", ver, dirtyNote)

	return nil
}

// Drop removes every table, including the migration tracking table.
func (r *migrationRunner) Drop() error {
	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	r.logger.Info("All tables dropped")

	return nil
}

// Close releases the migrate source and the database connection.
func (r *migrationRunner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database connection close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf("migrate: "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
