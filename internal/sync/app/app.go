package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/biometric"
	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/internal/sync/blob/drivers/fsblob"
	httpapi "github.com/harborworks/fieldsync/internal/sync/http"
	"github.com/harborworks/fieldsync/internal/sync/service"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/internal/sync/store/drivers/sqlite"
	"github.com/harborworks/fieldsync/pkg/jwtx"
	"github.com/harborworks/fieldsync/pkg/metricsx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the sync service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	blobs    blob.Store
	verifier jwtx.Verifier

	// Services
	ingestService     *service.IngestService
	enrollmentService *service.EnrollmentService
	identifyService   *service.IdentifyService
	templateWorker    *service.TemplateWorker

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates an Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "fieldsync",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("SYNC_JWT_SECRET is required")
	}
	app.verifier = jwtx.NewHS256Verifier([]byte(cfg.JWTSecret), cfg.Issuer)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	blobs, err := fsblob.NewStore(cfg.BlobDir)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	app.blobs = blobs

	metricsx.Init()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.templateWorker.Start()

	app.logger.Info("sync service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down sync service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the template worker after the HTTP surface so no new approvals
	// arrive while it drains.
	app.templateWorker.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("sync service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	encoder := biometric.NewHashEncoder()

	dispatcher := service.NewDispatcher(service.HandlerDeps{
		Store: app.db,
		Blobs: app.blobs,
	})

	app.ingestService = &service.IngestService{
		Store:      app.db,
		Blobs:      app.blobs,
		Dispatcher: dispatcher,
	}

	app.enrollmentService = &service.EnrollmentService{
		Store: app.db,
		Blobs: app.blobs,
	}

	app.identifyService = &service.IdentifyService{
		Store:     app.db,
		Encoder:   encoder,
		Threshold: app.cfg.IdentifyThreshold,
	}

	app.templateWorker = service.NewTemplateWorker(
		app.db,
		app.blobs,
		encoder,
		app.logger,
		app.cfg.TemplateWorkerInterval,
		app.cfg.TemplateWorkerBatch,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.IngestService = app.ingestService
	router.EnrollmentService = app.enrollmentService
	router.IdentifyService = app.identifyService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
