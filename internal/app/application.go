package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"scribeeasy/internal/config"
	"scribeeasy/internal/logger"
	"scribeeasy/internal/provider"
	"scribeeasy/internal/server"
	"scribeeasy/internal/storage"
	"scribeeasy/internal/transcription"
)

// Application wires the configuration, provider client, job registry, file
// store and HTTP server together and drives their lifecycle.
type Application struct {
	config    *config.Configuration
	zapLogger *zap.Logger
	service   *transcription.Service
	store     *storage.FileStore
	server    *server.Server
}

// NewApplication creates an application instance with all components initialized
func NewApplication() (*Application, error) {
	// Load configuration from config file if CONFIG_PATH is set, otherwise
	// use environment variables
	var cfg *config.Configuration
	var err error

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		cfg, err = config.NewConfigurationFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.NewConfigurationFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	zapLogger := logger.NewLogger()

	return newApplication(cfg, zapLogger)
}

// NewApplicationWithConfig creates an application from an explicit
// configuration and logger, used by tests to inject both.
func NewApplicationWithConfig(cfg *config.Configuration, zapLogger *zap.Logger) (*Application, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return newApplication(cfg, zapLogger)
}

func newApplication(cfg *config.Configuration, zapLogger *zap.Logger) (*Application, error) {
	providerClient := provider.NewClientWithLogger(
		cfg.GetProviderBaseURL(),
		cfg.GetProviderAPIKey(),
		logger.ForComponent(zapLogger, "provider"),
	)

	service := transcription.NewServiceWithConfig(
		providerClient,
		logger.ForComponent(zapLogger, "transcription"),
		transcription.Config{
			SubmitTimeout: cfg.GetSubmitTimeout(),
			StatusTimeout: cfg.GetStatusTimeout(),
			Workers:       cfg.GetWorkerCount(),
		},
	)

	store, err := storage.NewFileStore(
		cfg.GetUploadDir(),
		cfg.GetMaxFileSize(),
		cfg.GetAllowedExtensions(),
		logger.ForComponent(zapLogger, "storage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file store: %w", err)
	}

	httpServer := server.NewServer(service, store, logger.ForComponent(zapLogger, "server"))

	return &Application{
		config:    cfg,
		zapLogger: zapLogger,
		service:   service,
		store:     store,
		server:    httpServer,
	}, nil
}

// Run starts the retention sweep loop and the HTTP server, blocking until
// the context is cancelled or the server fails.
func (app *Application) Run(ctx context.Context) error {
	app.zapLogger.Info("starting ScribeEasy service",
		zap.String("addr", app.config.GetServerAddr()),
		zap.String("upload_dir", app.config.GetUploadDir()))

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go app.runRetentionSweep(sweepCtx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.server.Start(app.config.GetServerAddr())
	}()

	select {
	case <-ctx.Done():
		app.zapLogger.Info("shutdown requested, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		return nil

	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	}
}

// runRetentionSweep periodically removes uploads older than the retention
// period.
func (app *Application) runRetentionSweep(ctx context.Context) {
	interval := app.config.GetCleanupInterval()
	retention := app.config.GetFileRetention()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := app.store.SweepOlderThan(retention); removed > 0 {
				app.zapLogger.Info("retention sweep removed stale uploads",
					zap.Int("removed", removed))
			}
		}
	}
}

// Shutdown flushes remaining log output
func (app *Application) Shutdown() error {
	// Sync can fail on stderr sinks, which is harmless
	_ = app.zapLogger.Sync()
	return nil
}

// Server exposes the HTTP server for tests
func (app *Application) Server() *server.Server {
	return app.server
}
