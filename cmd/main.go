// cmd/main.go is the application entry point.
// It wires together all layers, starts the scheduled jobs and the HTTP server.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/khushigoyal02/EMS-back/internal/app"
	"github.com/khushigoyal02/EMS-back/internal/config"
	"github.com/khushigoyal02/EMS-back/internal/handler"
	"github.com/khushigoyal02/EMS-back/internal/logging"
	"github.com/khushigoyal02/EMS-back/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Configuration and logging ──────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New("plannova-api", cfg.LogLevel)

	shutdownTracing, err := telemetry.Init(ctx, "plannova-api", cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing")
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup")
	}
	log.Info().Msg("connected to PostgreSQL")

	// ── 3. Scheduled jobs ─────────────────────────────────────────────────
	if cfg.JobsEnabled {
		if err := a.Scheduler.Start(ctx, a.Schedules()); err != nil {
			log.Fatal().Err(err).Msg("scheduler")
		}
	}

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(logging.Component(log, "access")))
	r.Use(handler.CORS(cfg.FrontendURL))

	a.Handler.Mount(r, handler.Authenticate(a.Verifier, log))

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	stop()

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.Scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("close")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("flush traces")
	}
	log.Info().Msg("server stopped")
}
