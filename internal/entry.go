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

	"github.com/starford/chainpad/internal/api"
	"github.com/starford/chainpad/internal/identity"
	"github.com/starford/chainpad/internal/ledger"
	"github.com/starford/chainpad/internal/mcpserver"
	"github.com/starford/chainpad/internal/records"
	"github.com/starford/chainpad/internal/session"
	"github.com/starford/chainpad/internal/sse"
)

// identitySource is what both identity providers offer.
type identitySource interface {
	identity.Provider
	identity.Connector
}

// core is the session and everything it depends on.
type core struct {
	logger  *slog.Logger
	ledger  *ledger.SQLite
	ident   identitySource
	watcher *identity.FileProvider
	session *session.Session
}

func (c *core) Close() {
	if err := c.ledger.Close(); err != nil {
		c.logger.Warn("ledger close failed", slog.String("error", err.Error()))
	}
}

// setup installs the logger and wires ledger, identity, records and session.
func setup(ctx context.Context, app *application) (*core, error) {
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
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("ledger_path", cfg.Ledger.Path),
		slog.String("network", cfg.Ledger.Network),
		slog.String("contract", cfg.Ledger.ContractAddress),
		slog.String("identity_mode", cfg.Identity.Mode),
		slog.Bool("tags", cfg.Features.Tags),
		slog.Bool("search", cfg.Features.Search),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := ledger.OpenSQLite(cfg.Ledger.Path, ledger.Options{
		Network:           cfg.Ledger.Network,
		Contract:          cfg.Ledger.ContractAddress,
		ConfirmationDelay: cfg.Ledger.ConfirmationDelay,
		RejectEmpty:       cfg.Ledger.RejectEmpty,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	c := &core{logger: logger, ledger: store}

	switch cfg.Identity.Mode {
	case IdentityModeFile:
		fp, err := identity.NewFileProvider(cfg.Identity.AccountFile, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init identity: %w", err)
		}
		c.ident, c.watcher = fp, fp
	default:
		static := identity.NewStatic()
		if cfg.Identity.AutoConnect {
			if err := static.Connect(ctx, cfg.Identity.Account); err != nil {
				store.Close()
				return nil, fmt.Errorf("auto-connect: %w", err)
			}
		}
		c.ident = static
	}

	rec := records.NewClient(store, c.ident, cfg.Features, logger)
	c.session = session.New(rec,
		session.WithLogger(logger),
		session.WithCapabilities(cfg.Features))
	return c, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)

	c, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := app.config
	logger := c.logger

	// SSE broker fed with every session view.
	broker := sse.NewBroker(cfg.App.HTTP.KeepAlive)
	defer broker.Close()
	stopWatch := c.session.Watch(func(v session.View) {
		broker.PublishSnapshot(v.Version, v)
	})
	defer stopWatch()

	// Build API handler and router.
	h := api.NewHandler(c.session, api.WithIdentity(c.ident), api.WithEvents(broker))
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.ledger.Ping(r.Context()); err != nil {
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
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Follow connection transitions.
	g.Go(func() error {
		return c.session.Run(gCtx, c.ident)
	})

	// Pick up external edits of the account file.
	if c.watcher != nil {
		g.Go(func() error {
			return c.watcher.Watch(gCtx)
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

		// Event streams never end on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the session and watcher goroutines.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the note session as MCP tools on stdin/stdout until stdin
// closes or ctx is cancelled.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app := newApplication(opts)

	c, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.session.Run(gCtx, c.ident)
	})
	if c.watcher != nil {
		g.Go(func() error {
			return c.watcher.Watch(gCtx)
		})
	}

	srv := mcpserver.New(c.session, app.version)
	c.logger.Info("Serving MCP on stdio")
	serveErr := srv.ServeStdio()
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}
	if serveErr != nil {
		return fmt.Errorf("mcp server: %w", serveErr)
	}
	return nil
}
