// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/fennec/internal/api"
	"github.com/starford/fennec/internal/auth"
	"github.com/starford/fennec/internal/inbox"
	"github.com/starford/fennec/internal/mcpserver"
	"github.com/starford/fennec/internal/models"
	"github.com/starford/fennec/internal/noteservice"
	"github.com/starford/fennec/internal/reconcile"
	"github.com/starford/fennec/internal/spool"
	"github.com/starford/fennec/internal/sse"
	"github.com/starford/fennec/internal/store"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	db     *store.DB
	engine *reconcile.Engine
	closer io.Closer
}

func (rt *runtime) Close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close database failed", slog.String("error", err.Error()))
	}
	if rt.closer != nil {
		_ = rt.closer.Close()
	}
}

func setup(ctx context.Context, opts []Option) (*application, *runtime, error) {
	app := &application{version: "dev", stdout: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger, optionally teeing into a rotating file.
	var out io.Writer = app.stdout
	var closer io.Closer
	if cfg.App.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.App.Log.File,
			MaxSize:    cfg.App.Log.MaxSizeMB,
			MaxBackups: cfg.App.Log.MaxBackups,
			MaxAge:     cfg.App.Log.MaxAgeDays,
			Compress:   cfg.App.Log.Compress,
		}
		out = io.MultiWriter(app.stdout, lj)
		closer = lj
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("category_failure", cfg.Reconcile.CategoryFailure),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	engine := reconcile.New(db,
		reconcile.WithPolicy(cfg.Reconcile.Policy()),
		reconcile.WithLogger(logger),
	)

	return app, &runtime{cfg: cfg, logger: logger, db: db, engine: engine, closer: closer}, nil
}

// Run starts the HTTP server, and the spool inbox when enabled, until ctx
// is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	_, rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build service and API router.
	svc := noteservice.NewService(rt.db, rt.engine, broker)
	apiRouter := api.NewRouter(svc, api.RouterConfig{
		Verifier:       cfg.Auth.Verifier(),
		Events:         broker,
		RequestTimeout: cfg.App.HTTP.RequestTimeout,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.Ping(req.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the spool inbox.
	if cfg.Inbox.Enabled {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		sp, err := spool.NewFS(cfg.Inbox.Path)
		if err != nil {
			return fmt.Errorf("init spool: %w", err)
		}
		in := inbox.New(sp, svc, logger, cfg.Inbox.Debounce)
		g.Go(func() error {
			return in.Watch(gCtx)
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

// errShutdown cancels the group so the inbox watcher stops with the server.
var errShutdown = errors.New("shutdown")

// IngestRequest describes one offline batch run.
type IngestRequest struct {
	File   string
	Delete bool
	Actor  string
	Output io.Writer
}

// Ingest applies one batch file against the configured database and writes
// the report as JSON to req.Output. An aborted workflow is returned as an
// error after the report is written.
func Ingest(ctx context.Context, req IngestRequest, opts ...Option) error {
	_, rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	data, err := os.ReadFile(req.File)
	if err != nil {
		return fmt.Errorf("read batch: %w", err)
	}

	ctx = auth.WithActor(ctx, req.Actor)
	svc := noteservice.NewService(rt.db, rt.engine, nil)

	var rep *reconcile.Report
	if req.Delete {
		var reqs []models.DeletionRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return fmt.Errorf("decode deletions: %w", err)
		}
		rep, err = svc.DeleteNotes(ctx, reqs)
	} else {
		var records []models.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("decode records: %w", err)
		}
		rep, err = svc.UpsertNotes(ctx, records)
	}

	if rep != nil {
		enc := json.NewEncoder(req.Output)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(rep); encErr != nil {
			return fmt.Errorf("write report: %w", encErr)
		}
	}
	return err
}

// ServeMCP serves the read-only catalog over MCP stdio until stdin closes.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc := noteservice.NewService(rt.db, rt.engine, nil)
	rt.logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(svc, app.version).ServeStdio()
}
