// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/nocel/internal/access"
	"github.com/starford/nocel/internal/api"
	"github.com/starford/nocel/internal/mcpserver"
	"github.com/starford/nocel/internal/reconcile"
	"github.com/starford/nocel/internal/sessionservice"
	"github.com/starford/nocel/internal/sse"
	"github.com/starford/nocel/internal/storage"
	"github.com/starford/nocel/internal/store"
	"github.com/starford/nocel/internal/thumbs"
)

// listThrottle coalesces session list refresh events.
const listThrottle = 2 * time.Second

// runtime holds what every command needs: logger, database and blob store.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	db     *store.DB
	blobs  storage.Provider
	// fs is set for the filesystem backend only; it enables the watcher.
	fs *storage.FS
}

func setup(ctx context.Context, defaultOutput io.Writer, opts ...Option) (*runtime, error) {
	app := &application{logOutput: defaultOutput}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("expiry", cfg.Policy.Expiry.Enabled),
		slog.Int64("quota_bytes", cfg.Policy.Quota.Limit()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt := &runtime{cfg: cfg, logger: logger}
	if err := rt.openBlobs(ctx); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := store.Open(ctx, cfg.SQLite.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	rt.db = db
	return rt, nil
}

func (rt *runtime) openBlobs(ctx context.Context) error {
	sc := rt.cfg.Storage
	switch sc.Backend {
	case StorageS3:
		s3, err := storage.NewS3(ctx, storage.S3Options{
			Bucket:          sc.S3.Bucket,
			Region:          sc.S3.Region,
			Endpoint:        sc.S3.Endpoint,
			AccessKeyID:     sc.S3.AccessKeyID,
			SecretAccessKey: sc.S3.SecretAccessKey,
			Prefix:          sc.S3.Prefix,
			UsePathStyle:    sc.S3.UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("init s3 storage: %w", err)
		}
		rt.blobs = s3
	default:
		if err := os.MkdirAll(sc.Path, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
		fs, err := storage.NewFS(sc.Path)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		rt.blobs, rt.fs = fs, fs
	}
	return nil
}

func (rt *runtime) service(opts ...sessionservice.Option) *sessionservice.Service {
	base := []sessionservice.Option{
		sessionservice.WithQuota(rt.cfg.Policy.Quota.Limit()),
		sessionservice.WithLogger(rt.logger),
	}
	return sessionservice.New(rt.db.Pool(), rt.blobs, append(base, opts...)...)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, os.Stdout, opts...)
	if err != nil {
		return err
	}
	defer rt.db.Close()
	cfg, logger := rt.cfg, rt.logger

	// SSE broker.
	broker := sse.NewBroker(listThrottle)
	defer broker.Close()

	// Drop records whose blobs vanished while the server was down.
	if res, err := reconcile.Sync(ctx, rt.db.Pool(), rt.blobs, logger, broker.PublishChange); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync done",
			slog.Int("removed", res.Removed),
			slog.Int("resized", res.Resized),
			slog.Int("orphans", res.Orphans))
	}

	svc := rt.service(sessionservice.WithNotifier(broker))

	var sweeper *api.Sweeper
	if cfg.Policy.Expiry.Enabled {
		sweeper = api.NewSweeper(svc, cfg.Policy.Expiry.TTL, cfg.Policy.Expiry.SweepInterval)
	}
	grants := access.New(cfg.Access.Secret, cfg.Access.TTL)
	if !grants.Enabled() {
		logger.Warn("access.secret is empty: private sessions are reachable by URL")
	}

	router := api.NewRouter(api.Config{
		Service:         svc,
		DB:              rt.db,
		Grants:          grants,
		Thumbs:          thumbs.New(rt.blobs, thumbs.DefaultWidth),
		Events:          broker,
		Sweeper:         sweeper,
		PageSize:        cfg.Listing.PageSize,
		MaxRequestBytes: cfg.Upload.MaxRequestBytes,
		AdminEnabled:    cfg.Admin.Enabled(),
		AdminToken:      cfg.Admin.Token,
	})

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start blob watcher with SSE callback.
	if rt.fs != nil {
		g.Go(func() error {
			if err := reconcile.Watch(gCtx, rt.db.Pool(), rt.fs, logger, broker.PublishChange); err != nil {
				logger.Warn("storage watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Ends open event streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.service()).ServeStdio()
}

// RunSweep removes expired sessions once and reports how many went away.
func RunSweep(ctx context.Context, opts ...Option) (int, error) {
	rt, err := setup(ctx, os.Stdout, opts...)
	if err != nil {
		return 0, err
	}
	defer rt.db.Close()

	expiry := rt.cfg.Policy.Expiry
	if !expiry.Enabled {
		return 0, fmt.Errorf("session expiry is disabled")
	}
	removed := rt.service().SweepExpired(ctx, expiry.TTL)
	rt.logger.Info("Sweep finished", slog.Int("removed", len(removed)))
	return len(removed), nil
}
