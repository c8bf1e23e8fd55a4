package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/app"
	"github.com/LLM-Dev-Ops/evalbench/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// runHealthCheck performs an HTTP health check against the given address.
// addr should be in the form ":port" or "host:port".
func runHealthCheck(addr string) error {
	resp, err := http.Get(fmt.Sprintf("http://localhost%s/health", addr))
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// abort emits the structured abort record and exits non-zero. Supervisors
// key off the reason field.
func abort(logger *slog.Logger, reason string, err error) {
	logger.Error("agent_abort",
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	os.Exit(1)
}

func main() {
	// Built-in health check mode for Docker HEALTHCHECK (distroless has no curl).
	if len(os.Args) > 1 && os.Args[1] == "-healthcheck" {
		addr := os.Getenv("EVALBENCH_LISTEN_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		if err := runHealthCheck(addr); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger := logging.Setup(os.Getenv("EVALBENCH_LOG_LEVEL"))
	logger.Info("evalbench starting", slog.String("version", version))

	cfg, err := app.LoadConfig()
	if err != nil {
		abort(logger, "configuration_error", err)
	}

	srv, err := app.NewServer(cfg)
	if err != nil {
		abort(logger, "startup_error", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		WriteTimeout:      300 * time.Second, // evaluation jobs run long
	}

	go func() {
		logger.Info("evalbench listening", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			abort(logger, "listen_error", err)
		}
	}()

	// SIGHUP: adjust log level without restarting.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			newCfg, err := app.LoadConfig()
			if err != nil {
				logger.Warn("config reload failed, keeping current config", slog.String("error", err.Error()))
				continue
			}
			logging.SetLevel(newCfg.LogLevel)
			logger.Info("log level reloaded", slog.String("level", newCfg.LogLevel))
		}
	}()

	// Graceful shutdown: drain in-flight requests, then flush the decision
	// pipeline.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down, draining in-flight requests")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := srv.Close(); err != nil {
		logger.Warn("server close error", slog.String("error", err.Error()))
	}
	logger.Info("shutdown complete")
}
