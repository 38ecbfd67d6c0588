package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"deepthoughts/api/internal/app"
	"deepthoughts/api/internal/auth"
	"deepthoughts/api/internal/config"
	"deepthoughts/api/internal/logging"
	"deepthoughts/api/internal/metrics"
	"deepthoughts/api/internal/search"
	"deepthoughts/api/internal/store"
	"deepthoughts/api/internal/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup("deepthoughts-api", cfg.LogFormat, cfg.LogLevel, os.Stderr)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	dataStore := store.NewPostgresStore(db)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger)

	opts := app.Options{Search: searchService, Logger: logger}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		limiter, err := throttle.NewRedisLimiter(cfg.RedisURL, cfg.LoginMaxFailures, cfg.LoginFailureWindow)
		if err != nil {
			logger.Error("redis unavailable, login throttle disabled", "error", err)
		} else {
			logger.Info("login throttle enabled", "max_failures", cfg.LoginMaxFailures, "window", cfg.LoginFailureWindow.String())
			defer limiter.Close()
			opts.Throttle = limiter
		}
	}

	codec := auth.NewCodec([]byte(cfg.JWTSecret), cfg.TokenTTL)
	resolver := auth.NewResolver(codec, logger)
	service := app.New(dataStore, codec, opts)
	service.Bootstrap(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	httpServer := app.NewHTTPServer(service, resolver, cfg.CORSOrigin, logger, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("deepthoughts api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
