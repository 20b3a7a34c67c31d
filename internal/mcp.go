package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/raido/internal/acled"
	"github.com/starford/raido/internal/credwatch"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/playback"
	"github.com/starford/raido/internal/session"
	"github.com/starford/raido/internal/store"
)

// RunMCP serves the MCP tools over stdio. Stdout carries the protocol, so
// logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := store.Open(cfg.Store.DSN, cfg.Provider.CacheTTL)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	pb := playback.New(cfg.Playback.TickInterval, nil)
	defer pb.Close()

	tokens := acled.NewTokenCache(cfg.Provider.TokenURL, cfg.Provider.ClientID, cfg.Provider.AuthTimeout)
	client := acled.NewClient(cfg.Provider.ReadURL, cfg.Provider.FetchTimeout,
		acled.WithLimit(cfg.Provider.Limit),
		acled.WithParallel(cfg.Provider.Parallel),
		acled.WithCache(db),
		acled.WithLogger(logger))

	creds := cfg.Credentials.Inline()
	if cfg.Credentials.File != "" {
		loaded, err := credwatch.Load(cfg.Credentials.File)
		if err != nil {
			logger.Warn("secrets file not loadable", slog.String("error", err.Error()))
		} else {
			creds = loaded
		}
	}

	svc := session.New(tokens, client, pb, creds, session.WithLogger(logger))

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}
