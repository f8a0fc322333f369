// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lectern/internal/api"
	"github.com/starford/lectern/internal/mcpserver"
	"github.com/starford/lectern/internal/readerservice"
	"github.com/starford/lectern/internal/registry"
	"github.com/starford/lectern/internal/sse"
	"github.com/starford/lectern/internal/tunables"
	"github.com/starford/lectern/internal/watch"
)

// OpenService opens the registry named by cfg and builds the service every
// surface shares. The returned func closes the registry.
func OpenService(cfg *Config, logger *slog.Logger, opts ...readerservice.Option) (*readerservice.Service, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Registry.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create registry dir: %w", err)
	}
	reg, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open registry: %w", err)
	}
	tun, err := tunables.Load(cfg.Queue.OverridesFile)
	if err != nil {
		reg.Close()
		return nil, nil, fmt.Errorf("load tunables: %w", err)
	}

	opts = append([]readerservice.Option{
		readerservice.WithTunables(tun),
		readerservice.WithLogger(logger),
	}, opts...)
	return readerservice.New(reg, opts...), reg.Close, nil
}

func (a *application) init(opts []Option) error {
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return fmt.Errorf("config is required")
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: a.config.App.LogLevel,
		}))
	}
	slog.SetDefault(a.logger)
	return nil
}

// Run starts the HTTP server, the SSE broker and one folder watcher per
// registered library.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	if err := app.init(opts); err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("registry_path", cfg.Registry.Path),
		slog.String("queue_overrides", cfg.Queue.OverridesFile),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, closeRegistry, err := OpenService(cfg, logger, readerservice.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer closeRegistry()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		if err := startWatchers(gCtx, g, svc, broker, logger); err != nil {
			return err
		}
	}

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// startWatchers watches the folder of every library registered at startup.
// Edits re-validate the excerpts of the edited note; removals are only
// broadcast.
func startWatchers(ctx context.Context, g *errgroup.Group, svc *readerservice.Service, broker *sse.Broker, logger *slog.Logger) error {
	libs, err := svc.Libraries(ctx)
	if err != nil {
		return fmt.Errorf("list libraries: %w", err)
	}
	for _, lib := range libs {
		libraryID, root := lib.LibraryID, lib.FolderPath
		g.Go(func() error {
			err := watch.Watch(ctx, root, logger, func(kind, path string) {
				switch kind {
				case watch.Changed:
					if _, err := svc.FileChanged(ctx, libraryID, path); err != nil {
						logger.Warn("revalidate on change failed",
							slog.String("library", libraryID),
							slog.String("path", path),
							slog.String("error", err.Error()))
					}
				case watch.Removed:
					broker.PublishNoteEvent(sse.KindRemoved, libraryID, path)
				}
			})
			if err != nil {
				// A missing folder must not take the server down.
				logger.Warn("watcher failed",
					slog.String("library", libraryID),
					slog.String("root", root),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	return nil
}

// ServeMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := &application{
		logger: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
	if err := app.init(opts); err != nil {
		return err
	}
	svc, closeRegistry, err := OpenService(app.config, app.logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	app.logger.Info("MCP server starting", slog.String("registry_path", app.config.Registry.Path))
	return mcpserver.New(svc).ServeStdio()
}
