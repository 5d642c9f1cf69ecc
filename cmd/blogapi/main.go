package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"blogapi/internal/blog"
	"blogapi/internal/config"
	"blogapi/internal/handlers"
	"blogapi/internal/middleware"
	"blogapi/internal/router"
	"blogapi/internal/storage"
	"blogapi/internal/telemetry"
	"blogapi/internal/token"
)

const serviceVersion = "0.1.0"

type App struct {
	Server    *http.Server
	Logger    *slog.Logger
	Config    *config.Config
	Telemetry *telemetry.Telemetry
}

func NewApp(cfg *config.Config, logger *slog.Logger, tel *telemetry.Telemetry, handler http.Handler) *App {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.Timeouts.Read,
		WriteTimeout: cfg.HTTP.Timeouts.Write,
		IdleTimeout:  cfg.HTTP.Timeouts.Idle,
	}

	return &App{
		Server:    server,
		Logger:    logger,
		Config:    cfg,
		Telemetry: tel,
	}
}

func (a *App) Run(ctx context.Context) error {
	srvErrChan := make(chan error, 1)

	go func() {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErrChan <- err
		}
	}()

	select {
	case err := <-srvErrChan:
		return fmt.Errorf("server startup failed: %w", err)
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	}

	// attempt clean shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.Timeouts.Shutdown)
	defer cancel()

	a.Logger.Info("draining connections...")
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		// graceful shutdown timed out
		if closeErr := a.Server.Close(); closeErr != nil {
			// both failed. Return combined error.
			return fmt.Errorf("graceful shutdown failed: %w", errors.Join(err, closeErr))
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("telemetry shutdown", "err", err)
	}

	a.Logger.Info("server stopped")
	return nil
}

func newBlobStore(cfg *config.Config) (storage.Provider, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Store(cfg.Storage.S3)
	default:
		return storage.NewLocalStorage(cfg.Blog.ImageRoot)
	}
}

func main() {
	cfg := config.LoadWithDefaults()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	stderr := os.Stderr
	logHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Logger.Level})
	logger := slog.New(logHandler).With("app", cfg.App.Name)

	logger.Info("application starting", "pid", os.Getpid())
	logger.Info("configuration loaded",
		"name", cfg.App.Name,
		"env", cfg.App.Environment,
		"port", cfg.HTTP.Port,
		"records", cfg.Blog.RecordsPath,
		"image_root", cfg.Blog.ImageRoot,
		"storage_backend", cfg.Storage.Backend,
		"rate_limit_rps", cfg.Limiter.RPS,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(rootCtx, cfg.App.Name, serviceVersion, cfg.App.Environment,
		cfg.Metrics.OtelEndpoint, cfg.Metrics.EnableTelemetry, logger)
	if err != nil {
		logger.Error("could not initialise telemetry", "err", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewMetrics(tel.Meter)
	if err != nil {
		logger.Error("could not create metrics", "err", err)
		os.Exit(1)
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Error("could not create blob store", "err", err)
		os.Exit(1)
	}

	records := storage.NewRecordStore(cfg.Blog.RecordsPath)
	normalizer := blog.NewNormalizer(cfg.Image.Quality, cfg.Image.MaxWidth)

	ingestor := blog.NewService(records, blobs, normalizer, logger)
	query := blog.NewQuery(records)
	tokens := token.NewService(cfg.Token.Secret, cfg.Token.TTL, blobs, logger)

	limiter := middleware.NewIPRateLimiter(rootCtx, cfg.Limiter.RPS, cfg.Limiter.Burst, cfg.Proxy.Trusted, metrics)

	blogHandler := handlers.NewBlogHandler(ingestor, query, tokens, logger, metrics)

	router := router.NewRouter(router.RouterDependencies{
		Cfg:         cfg,
		Logger:      logger,
		BlogHandler: blogHandler,
		Limiter:     limiter,
		Tracer:      tel.Tracer,
		Metrics:     metrics,
		Telemetry:   tel,
	})

	app := NewApp(cfg, logger, tel, router)

	// run the app with context
	if err := app.Run(rootCtx); err != nil {
		logger.Error("server crashed", "err", err)
		os.Exit(1)
	}

	logger.Info("application exited successfully")
	os.Exit(0)
}
