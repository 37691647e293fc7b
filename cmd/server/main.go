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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"persediaan/backend/internal/cache"
	"persediaan/backend/internal/config"
	"persediaan/backend/internal/httpapi"
	"persediaan/backend/internal/logger"
	"persediaan/backend/internal/metrics"
	"persediaan/backend/internal/migrate"
	"persediaan/backend/internal/restock"
	"persediaan/backend/internal/service"
	"persediaan/backend/internal/store"
	"persediaan/backend/internal/store/memory"
	pgstore "persediaan/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "persediaan-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := context.Background()

	if err := validateSecurityConfig(cfg); err != nil {
		logg.Error(ctx, "invalid security configuration", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "server stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logg *logger.Logger) (err error) {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closeRepo, err := openRepository(startCtx, cfg, logg)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	restockCache := cache.RestockCache(cache.NewMemoryRestockCache())
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisRestockCache(cfg.Redis)
		if err := redisCache.Ping(startCtx); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "redis unavailable, using in-process restock cache")
			_ = redisCache.Close()
		} else {
			restockCache = redisCache
			closers = append(closers, redisCache.Close)
			logg.Info(ctx, "cache: redis")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine := restock.NewEngine(repo, restockCache, cfg.Restock.CacheTTL, cfg.Restock.WindowDays).WithLogger(logg)
	svc := service.New(repo, engine, service.Options{
		Logger:      logg,
		Metrics:     m,
		MaxAttempts: cfg.Numbering.MaxAttempts,
	})
	auth := httpapi.NewAuthManager(cfg.Auth.Secret, cfg.Auth.AccessTokenTTL, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.App.AllowedOrigin,
		Logger:        logg,
		Metrics:       m,
		Gatherer:      reg,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.Address()), "inventory API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-sig:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logg.Info(ctx, "server stopped")
	return nil
}

// openRepository picks postgres when a database URL is configured and never
// falls back to memory in that case.
func openRepository(ctx context.Context, cfg config.Config, logg *logger.Logger) (store.Repository, func() error, error) {
	if cfg.DB.URL == "" {
		repo, err := memory.NewSeeded()
		if err != nil {
			return nil, nil, fmt.Errorf("seed memory store: %w", err)
		}
		if memory.DefaultSeedCredentials() {
			logg.Warn(ctx, "in-memory store uses default seed passwords; set SEED_*_PASSWORD outside development")
		}
		logg.Info(ctx, "repository: in-memory")
		return repo, nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and database URL is set: %w", err)
	}
	if cfg.DB.AutoMigrate {
		if err := migrate.Up(ctx, pg.DB(), logg); err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("auto migrate: %w", err), pg.Close())
		}
	}
	logg.Info(ctx, "repository: postgres")
	return pg, pg.Close, nil
}

func validateSecurityConfig(cfg config.Config) error {
	var err error
	if len(cfg.Auth.Secret) < 32 {
		err = multierr.Append(err, fmt.Errorf("%s_AUTH_SECRET must be set and at least 32 characters", config.EnvPrefix))
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.AccessTokenTTL > 24*time.Hour {
		err = multierr.Append(err, fmt.Errorf("access token TTL must be positive and at most 24h, got %s", cfg.Auth.AccessTokenTTL))
	}
	if cfg.App.AllowedOrigin == "*" && cfg.DB.URL != "" {
		err = multierr.Append(err, errors.New("wildcard allowed origin is only accepted with the in-memory store"))
	}
	return err
}
