package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/cantina/internal/auth"
	"github.com/mmynk/cantina/internal/config"
	"github.com/mmynk/cantina/internal/metrics"
	"github.com/mmynk/cantina/internal/middleware"
	"github.com/mmynk/cantina/internal/service"
	"github.com/mmynk/cantina/pkg/logging"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load")
	configFile := flag.String("config", "", "config file (default: cantina.{toml,yaml,json} if present)")
	flag.Parse()

	cfg, err := config.Load(*envFile, *configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.SetupWith(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.ValidateServer(); err != nil {
		logger.Error("Invalid server configuration", "error", err)
		os.Exit(1)
	}
	cfg.CheckAPIKey(logger, time.Now())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, err := service.OpenBackend(cfg, m, logger)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	logger.Info("Store initialized", "backend", cfg.Store.Backend, "chunk_size", cfg.Store.ChunkSize)

	engine := service.NewEngineFromConfig(cfg, backend.Store, m, logger)

	var allow service.AllowListSource
	if cfg.Engine.AllowList != "" {
		allow = service.AllowListFile(cfg.Engine.AllowList)
		logger.Info("Allow-list configured", "path", cfg.Engine.AllowList)
	}

	jwtManager := auth.NewJWTManager(cfg.Server.JWTSecret, cfg.Server.TokenTTL)

	mux := http.NewServeMux()

	// Register Connect services
	debtPath, debtHandler := service.NewDebtServiceHandler(
		service.NewDebtService(engine, allow),
		connect.WithInterceptors(
			middleware.LoggingInterceptor(logger),
			middleware.RequireAuth(jwtManager),
		),
	)
	mux.Handle(debtPath, debtHandler)

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	h2cHandler := h2c.NewHandler(loggingMiddleware(logger, mux), &http2.Server{})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Connect server starting", "address", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		logger.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
