// Command routemgrd boots the time-scheduled host route manager.
//
// Startup sequence:
//  1. Load configuration (internal/config): defaults, .env, optional
//     conf/routemgr.yaml, process environment, Vault-resolved secrets.
//  2. Build the process logger (internal/logger), backed by a rotating
//     file and, when stdout is a terminal, teed to stdout.
//  3. Open the MySQL-backed route store (internal/store) and apply its
//     schema.
//  4. Build the kernel actuator (internal/kernel) and the real clock
//     (internal/clock).
//  5. Start the HTTP server (internal/api) and the lifecycle reconciler
//     (internal/reconciler) concurrently, and shut both down together on
//     SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/routemgr/internal/api"
	"github.com/yanizio/routemgr/internal/clock"
	"github.com/yanizio/routemgr/internal/config"
	"github.com/yanizio/routemgr/internal/kernel"
	"github.com/yanizio/routemgr/internal/logger"
	"github.com/yanizio/routemgr/internal/reconciler"
	"github.com/yanizio/routemgr/internal/server"
	"github.com/yanizio/routemgr/internal/store"
)

func main() {
	if err := run(); err != nil {
		zap.S().Fatalw("routemgrd exited", "err", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	log, err := logger.New(wd, isInteractive())
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close() //nolint:errcheck

	clk := clock.New()
	actuator := kernel.New(log)

	srv := api.NewServer(st, actuator, clk, log, nil)
	httpServer := server.New(fmt.Sprintf(":%d", cfg.Port), srv.NewRouter(cfg.APIToken))

	interval := time.Duration(cfg.RouteCheckInterval) * time.Second
	rec := reconciler.New(st, actuator, clk, interval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return rec.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down http server")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// isInteractive reports whether stdout looks like a TTY, matching the
// teacher's logger.New tee heuristic for local development.
func isInteractive() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
