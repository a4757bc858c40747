// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/robotdb/internal/api"
	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/catalog"
	"github.com/starford/robotdb/internal/index"
	"github.com/starford/robotdb/internal/mcpserver"
	"github.com/starford/robotdb/internal/models"
	"github.com/starford/robotdb/internal/parser"
	"github.com/starford/robotdb/internal/scanner"
	"github.com/starford/robotdb/internal/sse"
	"github.com/starford/robotdb/internal/storage"
)

// runtime holds the components shared by every run mode.
type runtime struct {
	store   *storage.FS
	db      *index.DB
	parser  *parser.Parser
	scanner *scanner.Scanner
	svc     *catalog.Service
}

func (rt *runtime) Close() error {
	if rt.parser != nil {
		rt.parser.DisableConsole()
	}
	return rt.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// cliLogger writes human readable logs to stderr, leaving stdout to
// command output and the MCP protocol.
func (a *application) cliLogger() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// open builds the store, index, parser, scanner and catalog. With scan set
// the workspace must exist and the store directory is created; otherwise
// the store must already be there.
func (a *application) open(logger *slog.Logger, scan bool, events catalog.EventFunc, hooks ...scanner.RecordHook) (*runtime, error) {
	cfg := a.config

	if scan {
		info, err := os.Stat(cfg.Workspace.Path)
		if err != nil {
			return nil, fmt.Errorf("workspace %s: %w: %w", cfg.Workspace.Path, apperr.ErrEnvironment, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("workspace %s is not a directory: %w", cfg.Workspace.Path, apperr.ErrEnvironment)
		}
		if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir %s: %w: %w", cfg.Store.Path, apperr.ErrEnvironment, err)
		}
	} else if _, err := os.Stat(cfg.Store.Path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("store %s does not exist, run a scan first: %w", cfg.Store.Path, apperr.ErrEnvironment)
	}

	store, err := storage.NewFS(cfg.Store.Path, cfg.Store.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if dir := filepath.Dir(cfg.Index.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	db, err := index.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	rt := &runtime{store: store, db: db}
	svcOpts := []catalog.Option{catalog.WithLogger(logger), catalog.WithEvents(events)}

	if scan {
		rt.parser = parser.New(logger.With(slog.String("component", "parser")),
			parser.WithSpecDirs(cfg.Libraries.SpecDirs...),
			parser.WithPythonPaths(cfg.Libraries.PythonPaths...),
			parser.WithSearchPaths(cfg.Libraries.SearchPaths...),
			parser.WithLibdocCommand(cfg.Libraries.LibdocCommand...),
		)
		if a.console != nil {
			rt.parser.EnableConsole(a.console)
		}

		scanOpts := []scanner.Option{
			scanner.WithExclude(cfg.Workspace.Exclude...),
			scanner.WithPreload(cfg.Libraries.Imports()...),
			scanner.WithBuiltin(cfg.Libraries.Builtin),
			scanner.WithCacheSize(cfg.Store.CacheSize),
		}
		for _, h := range hooks {
			scanOpts = append(scanOpts, scanner.WithRecordHook(h))
		}
		rt.scanner = scanner.New(rt.parser, logger.With(slog.String("component", "scanner")), scanOpts...)

		svcOpts = append(svcOpts, catalog.WithScanner(rt.scanner, catalog.Target{
			Workspace: cfg.Workspace.Path,
			Extension: cfg.Workspace.Extension,
			StoreDir:  cfg.Store.Path,
		}))
	}

	rt.svc = catalog.NewService(store, db, svcOpts...)
	return rt, nil
}

// watch rescans the workspace after it settles from a change.
func (a *application) watch(ctx context.Context, rt *runtime, logger *slog.Logger) error {
	cfg := a.config
	filter, err := rt.scanner.Filter(cfg.Workspace.Extension)
	if err != nil {
		return err
	}
	filter.Ignore(cfg.Store.Path)

	root, err := filepath.Abs(cfg.Workspace.Path)
	if err != nil {
		return err
	}
	return scanner.Watch(ctx, root, filter, cfg.Watch.Debounce, logger, func(ctx context.Context, paths []string) {
		logger.Info("workspace changed, rescanning", slog.Int("changes", len(paths)))
		rescanWhenIdle(ctx, rt.svc, cfg.Watch.Debounce, logger)
	})
}

// rescanWhenIdle rescans, waiting for a scan started elsewhere to finish
// first so the change is not lost.
func rescanWhenIdle(ctx context.Context, svc *catalog.Service, retry time.Duration, logger *slog.Logger) {
	if retry <= 0 {
		retry = scanner.DefaultDebounce
	}
	for {
		_, err := svc.Rescan(ctx)
		if !errors.Is(err, apperr.ErrBusy) {
			if err != nil && ctx.Err() == nil {
				logger.Error("rescan failed", slog.String("error", err.Error()))
			}
			return
		}
		logger.Debug("rescan deferred, scan in progress")
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// Run scans the workspace and serves the HTTP API until interrupted,
// rescanning on workspace changes when watching is enabled.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace", cfg.Workspace.Path),
		slog.String("extension", cfg.Workspace.Extension),
		slog.String("store_path", cfg.Store.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	var ready atomic.Bool
	events := func(name string, data any) {
		ev := sse.Event{Type: name, Data: data}
		switch name {
		case catalog.EventIndexUpdated:
			broker.PublishThrottled(ev)
			return
		case catalog.EventScanCompleted:
			ready.Store(true)
		}
		broker.Publish(ev)
	}
	onStored := func(rec *models.Record, document string) {
		broker.PublishAssetStored(rec.Identity(), rec.Kind, document)
	}

	rt, err := app.open(logger, true, events, onStored)
	if err != nil {
		return err
	}
	defer rt.Close()

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
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"scanning"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; SSE is served inside the auth group.
	r.Mount("/api", api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial scan, then watch for changes.
	g.Go(func() error {
		if _, err := rt.svc.Rescan(gCtx); err != nil {
			if errors.Is(err, apperr.ErrEnvironment) {
				return fmt.Errorf("initial scan: %w", err)
			}
			logger.Error("initial scan failed", slog.String("error", err.Error()))
		}
		if !cfg.Watch.Enabled {
			return nil
		}
		return app.watch(gCtx, rt, logger.With(slog.String("component", "watcher")))
	})

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

		// Open SSE streams end when the broker closes.
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

// errShutdown cancels the remaining serve goroutines once the HTTP server
// has stopped.
var errShutdown = errors.New("shutdown")

// Scan runs one scan of the workspace and brings the index up to date.
func Scan(ctx context.Context, opts ...Option) (*catalog.ScanResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := app.cliLogger()

	rt, err := app.open(logger, true, nil)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	return rt.svc.Rescan(ctx)
}

// ServeMCP scans the workspace and serves MCP on stdio until stdin closes.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.cliLogger()

	rt, err := app.open(logger, true, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.svc.Rescan(ctx); err != nil {
		if errors.Is(err, apperr.ErrEnvironment) {
			return err
		}
		logger.Error("initial scan failed", slog.String("error", err.Error()))
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(watchCtx)
	if app.config.Watch.Enabled {
		g.Go(func() error {
			return app.watch(gCtx, rt, logger.With(slog.String("component", "watcher")))
		})
	}

	logger.Info("MCP server starting on stdio")
	serveErr := mcpserver.New(rt.svc, app.version).ServeStdio()
	cancel()
	if err := g.Wait(); err != nil {
		logger.Warn("watcher stopped", slog.String("error", err.Error()))
	}
	return serveErr
}

// Search queries the keyword index of the last scan.
func Search(ctx context.Context, query string, limit int, opts ...Option) ([]catalog.KeywordItem, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := app.open(app.cliLogger(), false, nil)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	return rt.svc.SearchKeywords(ctx, query, limit)
}

// Show returns the stored record of one asset.
func Show(ctx context.Context, identity string, opts ...Option) (*catalog.RecordDetail, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := app.open(app.cliLogger(), false, nil)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	return rt.svc.GetRecord(ctx, identityArg(identity))
}

// identityArg turns a file given on the command line into its absolute
// identity. Anything else is taken as a library name.
func identityArg(s string) string {
	if _, err := os.Stat(s); err != nil {
		return s
	}
	if abs, err := filepath.Abs(s); err == nil {
		return abs
	}
	return s
}
