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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/acled"
	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/credwatch"
	"github.com/starford/raido/internal/metrics"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/playback"
	"github.com/starford/raido/internal/session"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("read_url", cfg.Provider.ReadURL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Fetch-response cache.
	db, err := store.Open(cfg.Store.DSN, cfg.Provider.CacheTTL)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	mtr := metrics.New()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Playback controller pushes redraw signals over SSE.
	pb := playback.New(cfg.Playback.TickInterval, func(snap playback.Snapshot) {
		broker.Publish(sse.Event{Type: "redraw", Data: snap})
		mtr.RedrawSignaled()
	})
	defer pb.Close()

	tokens := acled.NewTokenCache(cfg.Provider.TokenURL, cfg.Provider.ClientID, cfg.Provider.AuthTimeout,
		acled.WithRefreshHook(mtr.TokenRefreshed))

	client := acled.NewClient(cfg.Provider.ReadURL, cfg.Provider.FetchTimeout,
		acled.WithLimit(cfg.Provider.Limit),
		acled.WithParallel(cfg.Provider.Parallel),
		acled.WithCache(db),
		acled.WithLogger(logger))

	// Initial credentials: inline from config, or loaded from the secrets file.
	creds := cfg.Credentials.Inline()
	if cfg.Credentials.File != "" {
		loaded, err := credwatch.Load(cfg.Credentials.File)
		if err != nil {
			logger.Warn("secrets file not loadable yet", slog.String("error", err.Error()))
		} else {
			creds = loaded
		}
	}

	svc := session.New(tokens, client, pb, creds,
		session.WithNotifier(broker),
		session.WithMetrics(mtr),
		session.WithLogger(logger))

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus metrics.
	r.Get("/metrics", mtr.Handler().ServeHTTP)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the secrets file for credential rotation.
	if cfg.Credentials.File != "" {
		g.Go(func() error {
			return credwatch.Watch(gCtx, cfg.Credentials.File, logger, func(c models.Credentials) {
				svc.SetCredentials(c)
			})
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
