package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/onetask/onetask-api/internal/config"
	"github.com/onetask/onetask-api/internal/platform/postgres"
	"github.com/onetask/onetask-api/internal/service/auth"
	"github.com/onetask/onetask-api/internal/store"
	"github.com/onetask/onetask-api/internal/ws"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	notificationStore store.NotificationStore
	membershipStore   store.MembershipStore

	jwtService auth.JWTService

	registry   *ws.Registry
	dispatcher *ws.Dispatcher
	wsHandler  *ws.Handler
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before initialization.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.notificationStore = postgres.NewPostgresNotificationStore(db, logger)
	app.membershipStore = postgres.NewPostgresMembershipStore(db, logger)

	app.registry = ws.NewRegistry(cfg.WebSocket.MaxConnectionsPerUser, logger)
	app.dispatcher = ws.NewDispatcher(
		app.notificationStore,
		app.membershipStore,
		app.registry,
		db,
		logger,
	)
	app.wsHandler = ws.NewHandler(
		app.jwtService,
		app.membershipStore,
		app.registry,
		cfg.WebSocket,
		logger,
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
// Open WebSocket connections receive a going-away close frame before the
// database connection is released.
func (app *application) cleanup() {
	if app.registry != nil {
		app.registry.Close()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
