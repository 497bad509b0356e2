package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/tietpapers/api"
	"github.com/use-agent/tietpapers/api/handler"
	"github.com/use-agent/tietpapers/cache"
	"github.com/use-agent/tietpapers/config"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("tietpapers server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"cli", cfg.Server.CLIPath,
		"runTimeout", cfg.Server.RunTimeout,
	)

	// ── 3. Resolve the CLI each request spawns ──────────────────────
	cliPath, err := exec.LookPath(cfg.Server.CLIPath)
	if err != nil {
		slog.Error("tietpapers CLI not found", "path", cfg.Server.CLIPath, "error", err)
		os.Exit(1)
	}

	// ── 4. Initialise cache ─────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxAge)
	if cfg.Cache.MaxAge > 0 {
		slog.Info("run output cache enabled", "maxAge", cfg.Cache.MaxAge, "maxEntries", cfg.Cache.MaxEntries)
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	runs := &handler.Runs{}
	router := api.NewRouter(cfg, handler.ExecProcess(cliPath), cc, runs, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String(), "activeRuns", runs.Active())

	// In-flight runs may hold a browser; give them the full run budget.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RunTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	slog.Info("tietpapers server stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
