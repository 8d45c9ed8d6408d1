package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/config"
	"github.com/kailas-cloud/docextract/internal/metrics"
	chiTransport "github.com/kailas-cloud/docextract/internal/transport/chi"
	healthuc "github.com/kailas-cloud/docextract/internal/usecase/health"
	usageuc "github.com/kailas-cloud/docextract/internal/usecase/usage"
)

// serve runs the HTTP API until SIGINT or SIGTERM.
func serve(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("docextract serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.Int("port", 0, "listen port (overrides http.port)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	app, err := newApp(config.GetEnv())
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer app.Close()

	logger := app.logger
	cfg := app.cfg
	if *port > 0 {
		cfg.HTTP.Port = *port
	}

	metrics.RegisterHTTPMetrics()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      app.router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		logger.Error("HTTP server error", zap.Error(err))
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return 1
	}

	logger.Info("Server stopped gracefully")
	return 0
}

func (a *app) router() http.Handler {
	// Pass nil interfaces (not typed nil pointers!) for components that are not configured.
	var budgetReader usageuc.BudgetReader
	if a.budget != nil {
		budgetReader = a.budget
	}
	var cachePinger healthuc.Pinger
	if a.store != nil {
		cachePinger = a.store
	}

	server := chiTransport.NewServer(
		a.pipeline,
		usageuc.New(budgetReader),
		healthuc.New(cachePinger, a.model),
		a.cfg.HTTP.MaxUploadBytes,
		a.logger,
	)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(a.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEvent(a.logger))
	r.Use(chiTransport.BearerAuthMiddleware(a.cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)
	return r
}
