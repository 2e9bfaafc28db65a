// Package main provides the schema migration CLI for the metadata registry.
//
// The migrator validates the migration files it is pointed at, then runs
// up/down/status/version/drop against the configured database. All
// configuration comes from the environment.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

const (
	version = "1.0.0-dev"
	name    = "migrator"
)

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if *showHelp || flag.NArg() < 1 {
		printUsage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	config, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner, err := NewMigrationRunner(config, logger)
	if err != nil {
		logger.Error("Failed to create migration runner", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer runner.Close()

	if err := runCommand(flag.Arg(0), runner); err != nil {
		logger.Error("Migration failed", slog.String("error", err.Error()))

		_ = runner.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}
}

// runCommand dispatches a CLI command to the runner.
func runCommand(command string, runner MigrationRunner) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		return confirmDrop(runner)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// confirmDrop asks for interactive confirmation before dropping all tables.
func confirmDrop(runner MigrationRunner) error {
	fmt.Print("WARNING: This will drop all registry tables. Are you sure? (y/N): ")

	var response string

	fmt.Scanln(&response)

	if response == "y" || response == "Y" {
		return runner.Drop()
	}

	fmt.Println("Operation cancelled.")

	return nil
}

func printUsage() {
	fmt.Printf(`%s v%s - schema migration tool for the metadata registry

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    down    Roll back the most recent migration
    status  Show migration status
    version Show current migration version
    drop    Drop all tables (requires confirmation)

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT VARIABLES:
    DATABASE_URL    PostgreSQL connection string (REQUIRED)

    MIGRATIONS_PATH Path to migration files directory
                    (default: current directory)

    MIGRATION_TABLE Name of migration tracking table
                    (default: schema_migrations)
`, name, version, name)
}
