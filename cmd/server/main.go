package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/marchespei/marchespei-api/internal/config"
	"github.com/marchespei/marchespei-api/internal/delivery"
	"github.com/marchespei/marchespei-api/internal/digest"
	"github.com/marchespei/marchespei-api/internal/handlers"
	"github.com/marchespei/marchespei-api/internal/middleware"
	"github.com/marchespei/marchespei-api/internal/migration"
	"github.com/marchespei/marchespei-api/internal/repository"
	"github.com/marchespei/marchespei-api/internal/routes"
	"github.com/marchespei/marchespei-api/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config     *config.Config
	db         *sql.DB
	logger     zerolog.Logger
	dispatcher *digest.Dispatcher
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Repositories
	queueRepo := repository.NewQueueRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Renderer and delivery client. Without an API key, sends are captured by
	// the mock client instead of reaching the provider.
	renderer, err := digest.NewRenderer(cfg.Email.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize digest renderer")
	}

	var client delivery.Client
	if cfg.Email.APIKey == "" {
		logger.Warn().Msg("email.api_key not configured, using mock delivery client")
		client = delivery.NewMockClient(logger)
	} else {
		httpClient := delivery.NewHTTPClient(cfg.Email.Endpoint, cfg.Email.APIKey, cfg.Email.From, cfg.Email.FromName, logger)
		logger.Info().Str("from", httpClient.From()).Msg("delivery client configured")
		client = httpClient
	}

	dispatcher := digest.NewDispatcher(digest.DispatcherConfig{
		Queue:           queueRepo,
		Users:           userRepo,
		Preferences:     prefRepo,
		Matches:         matchRepo,
		Audit:           auditRepo,
		Renderer:        renderer,
		Client:          client,
		BatchSize:       cfg.Digest.BatchSize,
		DeliveryTimeout: cfg.Digest.DeliveryTimeout,
		LookbackWindow:  cfg.Digest.LookbackWindow,
		TestMatchLimit:  cfg.Digest.TestMatchLimit,
		Logger:          logger,
	})

	// Create the application instance.
	app := &application{
		config:     cfg,
		db:         db,
		logger:     logger,
		dispatcher: dispatcher,
	}

	// Optional in-process poller for deployments without an external cron.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.Worker.PollInterval > 0 {
		pollWorker := worker.New(dispatcher, cfg.Worker.PollInterval, logger)
		go func() {
			if err := pollWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("digest worker stopped unexpectedly")
			}
		}()
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(queueRepo, auditRepo, prefRepo)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"https://app.marchespei.re", "http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", handlers.CronSecretHeader}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, stopWorker)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(queueRepo repository.QueueRepository, auditRepo repository.AuditRepository, prefRepo repository.PreferenceRepository) http.Handler {
	authHandler := handlers.NewAuthHandler(app.db, app.config, app.logger)
	digestHandler := handlers.NewDigestHandler(app.dispatcher, queueRepo, auditRepo, app.config.Digest.CronSecret, app.logger)
	prefHandler := handlers.NewPreferenceHandler(prefRepo, app.logger)

	return routes.NewRouter(authHandler, digestHandler, prefHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, stopWorker context.CancelFunc) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		app.logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		app.logger.Error().Err(err).Msg("Server error occurred")
	}

	// Stop the polling worker before draining in-flight HTTP requests.
	stopWorker()

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		app.logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		app.logger.Info().Msg("HTTP server shutdown complete.")
	}
}
