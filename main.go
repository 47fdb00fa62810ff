package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := NewAPIConfig(os.Stdout)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	defer cfg.Close()
	cfg.logger.Debug("configuration loaded")

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = cfg.cache.Ping(pingCtx)
	cancel()
	if err != nil {
		cfg.logger.Error("couldn't connect to cache", "backend", cfg.cacheBackend, "error", err)
		os.Exit(1)
	}

	if cfg.dbURL != "" {
		if err := cfg.ConnectDB(); err != nil {
			os.Exit(1)
		}
	} else {
		cfg.logger.Info("DB_URL not set, database cache tier disabled")
	}

	scheduler := NewScheduler(cfg, cfg.pruneInterval)
	cfg.logger.Info("starting scheduler", "prune", cfg.pruneInterval.String())
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           cfg.routes(scheduler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		cfg.logger.Info("starting server", "port", cfg.port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.logger.Error("server startup failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		cfg.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			cfg.logger.Error("server shutdown failed", "error", err)
		}
	}
}

// routes registers every endpoint and wraps the mux in the middleware chain.
func (cfg *apiConfig) routes(scheduler *Scheduler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/probability", cfg.handlerProbability)
	mux.HandleFunc("/api/geocode", cfg.handlerGeocode)
	mux.HandleFunc("/api/windows", cfg.handlerWindows)
	mux.HandleFunc("/api/config", cfg.handlerConfig)
	mux.HandleFunc("/healthz", cfg.handlerHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	if cfg.devMode {
		cfg.logger.Debug("development mode enabled. Registering /dev endpoints.")
		mux.HandleFunc("/dev/reset-cache", cfg.handlerResetCache)
		if scheduler != nil {
			mux.HandleFunc("/dev/run-prune", scheduler.handlerRunSchedulerJobs)
		}
	}

	return cfg.requestIDMiddleware(metricsMiddleware(corsMiddleware(mux)))
}
