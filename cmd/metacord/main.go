// Package main provides the Metacord analysis metadata registry service.
//
// Metacord accepts genomic analysis submissions, validates them against
// versioned JSON Schemas, tracks their publication lifecycle and reconciles
// declared files against object storage at publish time.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/metacord-io/metacord/internal/aliasing"
	"github.com/metacord-io/metacord/internal/api"
	"github.com/metacord-io/metacord/internal/api/middleware"
	"github.com/metacord-io/metacord/internal/config"
	"github.com/metacord-io/metacord/internal/events"
	"github.com/metacord-io/metacord/internal/identifier"
	"github.com/metacord-io/metacord/internal/publish"
	"github.com/metacord-io/metacord/internal/registry"
	"github.com/metacord-io/metacord/internal/schemas"
	"github.com/metacord-io/metacord/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "metacord"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Metacord service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Load rate limiter configuration
	middlewareConfig := middleware.LoadConfig()

	// Create rate limiter instance (graceful shutdown handled by server.shutdown())
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("global_burst", middlewareConfig.GlobalBurst),
		slog.Int("client_rps", middlewareConfig.ClientRPS),
		slog.Int("client_burst", middlewareConfig.ClientBurst),
		slog.Int("anonymous_rps", middlewareConfig.AnonymousRPS),
		slog.Int("anonymous_burst", middlewareConfig.AnonymousBurst),
	)

	// Load storage configuration
	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(context.Background(), storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	analysisStore, err := storage.NewPersistentAnalysisStore(dbConn, logger)
	if err != nil {
		logger.Error("Failed to connect to analysis store", slog.String("error", err.Error()))
		// Close database connection before exit (defer won't run with os.Exit)
		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	schemaStore, err := storage.NewPersistentSchemaStore(dbConn, logger)
	if err != nil {
		logger.Error("Failed to connect to schema store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	studyStore, err := storage.NewPersistentStudyStore(dbConn)
	if err != nil {
		logger.Error("Failed to connect to study store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	logger.Info("Stores initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
	)

	typeRegistry, err := schemas.NewRegistry(schemaStore)
	if err != nil {
		logger.Error("Failed to initialize analysis type registry", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	enforceLatest := config.GetEnvBool("METACORD_ENFORCE_LATEST_SCHEMA", false)

	validator, err := registry.NewValidator(typeRegistry, enforceLatest)
	if err != nil {
		logger.Error("Failed to initialize payload validator", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	logger.Info("Payload validator initialized",
		slog.Bool("enforce_latest_schema", enforceLatest),
	)

	var authority identifier.Authority

	authorityURL := config.GetEnvStr("ID_AUTHORITY_URL", "")
	if authorityURL != "" {
		authority = identifier.NewHTTPAuthority(authorityURL)

		logger.Info("Using central identifier authority",
			slog.String("url", authorityURL),
		)
	} else {
		authority = identifier.NewLocalAuthority()

		logger.Info("Using local identifier authority",
			slog.String("note", "Set ID_AUTHORITY_URL to delegate ID minting to a central service"),
		)
	}

	idResolver := identifier.NewResolver(authority, analysisStore)

	aliasConfig, err := aliasing.LoadConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load study alias configuration", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	aliases := aliasing.NewResolver(aliasConfig)

	if len(aliasConfig.StudyAliases) > 0 {
		logger.Info("Study aliases loaded",
			slog.Int("alias_count", len(aliasConfig.StudyAliases)),
		)
	}

	var publisher registry.EventPublisher

	eventsConfig := events.LoadConfig()
	if eventsConfig.Enabled() {
		kafkaPublisher := events.NewKafkaPublisher(eventsConfig)
		defer func() {
			_ = kafkaPublisher.Close()
		}()

		publisher = kafkaPublisher

		logger.Info("Kafka state-change publisher initialized",
			slog.Any("brokers", eventsConfig.Brokers),
			slog.String("topic", eventsConfig.Topic),
		)
	} else {
		publisher = events.NoopPublisher{}

		logger.Info("Event publishing disabled",
			slog.String("note", "Set KAFKA_BROKERS to enable state-change events"),
		)
	}

	gatewayConfig := publish.LoadGatewayConfig()
	gateway := publish.NewHTTPGateway(gatewayConfig)
	reconciler := publish.NewReconciler(gateway, logger)

	logger.Info("Storage gateway initialized",
		slog.String("url", gatewayConfig.BaseURL),
		slog.Duration("timeout", gatewayConfig.Timeout),
		slog.Int("retries", gatewayConfig.Retries),
	)

	submissions := registry.NewSubmissionService(
		studyStore, analysisStore, validator, idResolver, aliases, publisher, logger,
	)
	lifecycle := registry.NewLifecycleService(analysisStore, reconciler, publisher, logger)

	server := api.NewServer(serverConfig, &api.Dependencies{
		Submissions: submissions,
		Lifecycle:   lifecycle,
		Types:       typeRegistry,
		Studies:     studyStore,
		Analyses:    analysisStore,
		RateLimiter: rateLimiter,
	})

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Metacord service stopped")
}
