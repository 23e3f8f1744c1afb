// Package app is the composition root: it turns a config.Config into wired
// services, runs the HTTP server and tears everything down in order.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-archive-backend/internal/capture"
	"github.com/tbourn/go-archive-backend/internal/config"
	httpapi "github.com/tbourn/go-archive-backend/internal/http"
	"github.com/tbourn/go-archive-backend/internal/http/handlers"
	"github.com/tbourn/go-archive-backend/internal/observability"
	"github.com/tbourn/go-archive-backend/internal/repo"
	"github.com/tbourn/go-archive-backend/internal/services"
	"github.com/tbourn/go-archive-backend/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// App holds the archive's services over one database and archive root.
type App struct {
	Config config.Config
	DB     *gorm.DB
	Store  *storage.Store

	Registry  *services.ArchiveRegistry
	Mementos  *services.MementoStore
	Quota     *services.QuotaLedger
	Submitter *services.ExternalArchiveSubmitter
	Lifecycle *services.LifecycleManager
	Captures  *services.CaptureService

	provider     capture.Provider
	shutdownOTel func(context.Context) error
}

// New opens storage and wires the services. The caller owns the App and
// must Close it.
func New(ctx context.Context, cfg config.Config, version string) (_ *App, err error) {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	defer func() {
		if err != nil && shutdownOTel != nil {
			_ = shutdownOTel(context.WithoutCancel(ctx))
		}
	}()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	store, err := storage.New(cfg.ArchiveRoot)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("archive root %s: %w", cfg.ArchiveRoot, err)
	}

	a := &App{
		Config:       cfg,
		DB:           db,
		Store:        store,
		provider:     NewProvider(cfg.Capture),
		shutdownOTel: shutdownOTel,
	}
	a.Registry = services.NewArchiveRegistry(db, store)
	a.Mementos = services.NewMementoStore(db, store)
	a.Quota = services.NewQuotaLedger(repo.SettingsStore{DB: db}, cfg.ExternalArchive.DefaultEnabled, cfg.ExternalArchive.DefaultLimit)
	a.Submitter = services.NewExternalArchiveSubmitter(db, a.Quota, cfg.ExternalArchive.Endpoint, cfg.ExternalArchive.Timeout, cfg.ExternalArchive.UserAgent)
	a.Lifecycle = services.NewLifecycleManager(db, a.Registry, store, cfg.DeleteFilesOnRemove)
	a.Captures = services.NewCaptureService(db, a.provider, a.Registry, a.Mementos, cfg.Capture.Concurrency, cfg.Capture.Timeout)

	log.Debug().
		Str("db", cfg.DBPath).
		Str("archive_root", store.Root).
		Str("provider", cfg.Capture.Provider).
		Msg("archive wired")
	return a, nil
}

// NewProvider returns the capture provider named by cfg.Provider.
func NewProvider(cfg config.CaptureConfig) capture.Provider {
	if cfg.Provider == config.ProviderHTTP {
		return capture.NewHTTPProvider(cfg.Timeout)
	}
	return capture.NewPlaywrightProvider(capture.PlaywrightOptions{
		Headless:       cfg.Headless,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		Timeout:        cfg.Timeout,
		Install:        cfg.InstallBrowser,
	})
}

// Handlers binds the HTTP handlers to the services.
func (a *App) Handlers() *handlers.Handlers {
	return handlers.New(handlers.Deps{
		Captures:       a.Captures,
		Websites:       a.Registry,
		Mementos:       a.Mementos,
		Submitter:      a.Submitter,
		Lifecycle:      a.Lifecycle,
		Quota:          a.Quota,
		DB:             a.DB,
		IdempotencyTTL: a.Config.IdempotencyTTL,
	})
}

// Router returns a Gin engine with every route registered.
func (a *App) Router() *gin.Engine {
	if a.Config.GinMode != "" {
		gin.SetMode(a.Config.GinMode)
	}
	r := gin.New()
	httpapi.RegisterRoutes(r, a.DB, a.Handlers(), a.Config)
	return r
}

// Serve listens on the configured port until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+a.Config.Port)
	if err != nil {
		return fmt.Errorf("listen on :%s: %w", a.Config.Port, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	if _, err := a.Captures.Recover(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to recover capture tasks")
	}
	if n, err := repo.PurgeExpiredIdempotency(ctx, a.DB, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Msg("failed to purge idempotency keys")
	} else if n > 0 {
		log.Info().Int64("purged", n).Msg("expired idempotency keys removed")
	}

	srv := &http.Server{
		Handler:           a.Router(),
		ReadTimeout:       a.Config.ReadTimeout,
		ReadHeaderTimeout: a.Config.ReadHeaderTimeout,
		WriteTimeout:      a.Config.WriteTimeout,
		IdleTimeout:       a.Config.IdleTimeout,
		MaxHeaderBytes:    a.Config.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("base_path", a.Config.APIBasePath).Msg("http server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close waits for running captures, then releases the browser, the
// database and the trace exporter.
func (a *App) Close(ctx context.Context) error {
	a.Captures.Wait()

	var errs []error
	if c, ok := a.provider.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture provider: %w", err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.shutdownOTel != nil {
		if err := a.shutdownOTel(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel: %w", err))
		}
	}
	return errors.Join(errs...)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
