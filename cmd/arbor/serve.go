package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rendis/arbor/internal/jsondoc"
	"github.com/rendis/arbor/internal/logging"
	"github.com/rendis/arbor/internal/panel"
	"github.com/rendis/arbor/internal/runner"
	"github.com/rendis/arbor/internal/store"
	"github.com/rendis/arbor/internal/streaming"
	"github.com/rendis/arbor/internal/xmldoc"
	"github.com/rendis/arbor/pkg/bt"
	"github.com/rendis/arbor/pkg/mcp"
	"github.com/rendis/arbor/pkg/schema"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	sseMode := fs.Bool("sse", false, "serve MCP over SSE on the listen address instead of stdio")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := serve(*sseMode, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(sseMode bool, definitions []string) error {
	cfg := loadConfig()

	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLogLevel(cfg.LogLevel))
	// stdout carries the MCP stdio protocol, so logs go to stderr.
	logger := slog.New(logging.NewCorrelationHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}),
	))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(arborDir(), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", arborDir(), err)
	}
	if err := writePidFile(); err != nil {
		logger.Warn("cannot write pidfile", "error", err)
	}
	defer os.Remove(pidPath())

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	hub := streaming.NewMemoryHub()
	registry := bt.NewRegistry()
	builder := bt.NewBuilder(registry)

	run := runner.New(runner.Deps{
		Store:   st,
		Hub:     hub,
		Logger:  logger,
		Workers: cfg.PoolSize,
	})
	defer run.Close()

	for _, path := range definitions {
		if err := loadDefinition(ctx, builder, run, path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		logger.Info("definition loaded", "path", path)
	}

	if err := run.Start(ctx); err != nil {
		return fmt.Errorf("start runner: %w", err)
	}
	defer run.Stop()

	mcpSrv := mcp.NewArborServer(mcp.ArborServerDeps{
		Runner:  run,
		Store:   st,
		Builder: builder,
		Hub:     hub,
		Logger:  logger,
	})

	// HTTP side: healthz, the panel when enabled, and in SSE mode the MCP
	// transport. Everything sits behind a swapper so SIGHUP can rebuild the
	// mux without dropping the listener.
	panelSrv := panel.NewPanelServer(panel.PanelDeps{
		Runner: run,
		Store:  st,
		Hub:    hub,
		Logger: logger,
	})
	var sseHandler http.Handler
	if sseMode {
		sseHandler = mcpSrv.SSEHandler(cfg.BaseURL)
	}
	swapper := newHandlerSwapper(buildMux(cfg, panelSrv, sseHandler))

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go watchConfig(ctx, logger, levelVar, cfg, func(next Config) {
		swapper.Swap(buildMux(next, panelSrv, sseHandler))
	})

	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			"addr", cfg.ListenAddr, "panel", cfg.Panel, "sse", sseMode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	stdioErr := make(chan error, 1)
	if sseMode {
		go mcpSrv.WatchEvents(ctx)
	} else {
		go func() { stdioErr <- mcpSrv.Serve(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-httpErr:
		return fmt.Errorf("http server: %w", err)
	case err := <-stdioErr:
		// stdin closed: the MCP client is gone, shut everything down.
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("stdio transport ended", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildMux assembles the HTTP routes for the current config.
func buildMux(cfg Config, panelSrv *panel.PanelServer, sse http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":%q}`+"\n", version)
	})
	if sse != nil {
		mux.Handle("/sse", sse)
		mux.Handle("/message", sse)
	}
	if cfg.Panel {
		mux.Handle("/", panelSrv.Handler())
	}
	return mux
}

// watchConfig reloads settings on SIGHUP and applies what can change live.
func watchConfig(ctx context.Context, logger *slog.Logger, level *slog.LevelVar, initial Config, rebuild func(Config)) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	current := initial
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next := loadConfig()
			d := diffConfigs(current, next)
			if d.LogLevelChanged {
				level.Set(parseLogLevel(next.LogLevel))
				logger.Info("log level updated", "level", next.LogLevel)
			}
			if d.PanelChanged {
				rebuild(next)
				logger.Info("panel toggled", "enabled", next.Panel)
			}
			if len(d.RestartNeeded) > 0 {
				logger.Warn("config changes require a restart",
					"fields", strings.Join(d.RestartNeeded, ", "))
			}
			current = next
		}
	}
}

// loadDefinition parses, validates, builds and registers one definition file.
func loadDefinition(ctx context.Context, builder *bt.Builder, run *runner.Runner, path string) error {
	var (
		doc *schema.Document
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var parser *jsondoc.Parser
		parser, err = jsondoc.NewParser()
		if err != nil {
			return err
		}
		doc, err = parser.ParseFile(path)
	default:
		doc, err = xmldoc.ParseFile(path)
	}
	if err != nil {
		return err
	}

	if result := bt.Validate(doc); !result.Valid() {
		return result.ToError()
	}

	tree, err := builder.Build(doc)
	if err != nil {
		return err
	}
	return run.Add(ctx, tree, path)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func writePidFile() error {
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}
