package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/skycast/internal/api"
	"github.com/neexbeast/skycast/internal/cache"
	"github.com/neexbeast/skycast/internal/config"
	"github.com/neexbeast/skycast/internal/forecast"
	"github.com/neexbeast/skycast/internal/scheduler"
	"github.com/neexbeast/skycast/internal/storage"
	"github.com/neexbeast/skycast/internal/summary"
	"github.com/neexbeast/skycast/migrations"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	// Connect to PostgreSQL.
	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	applied, err := storage.RunMigrations(ctx, pool, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("migrations applied", "files", applied)

	// Connect to Redis.
	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	// Wire dependencies.
	repo := storage.NewRepository(pool)
	geocoder := forecast.NewGeocodeClient(cfg.GeocodeUserAgent)
	fetcher := forecast.NewFetcher(cfg.OpenWeatherAPIKey, repo)
	summaries := cache.NewSummaryCache(redisClient)

	var summarizer api.Summarizer
	if cfg.OpenAIAPIKey != "" {
		summarizer = summary.NewGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	} else {
		log.Info("OPENAI_API_KEY not set, commentary disabled")
	}

	handlers := api.NewHandlers(geocoder, fetcher, repo, summarizer, summaries, log)

	refresher := scheduler.New(cfg.RefreshLocations, cfg.RefreshInterval, fetcher, log)
	if err := refresher.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer refresher.Stop()

	// Build router with pingers adapted for health check.
	dbPinger := &pgxPoolPinger{pool: pool}
	redisPinger := &redisPingerAdapter{client: redisClient}

	router := api.NewRouter(handlers, cfg.APIToken, dbPinger, redisPinger, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port, "api_enabled", cfg.APIToken != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// pgxPoolPinger adapts pgxpool.Pool to the health check pinger.
type pgxPoolPinger struct {
	pool interface {
		Ping(ctx context.Context) error
	}
}

func (p *pgxPoolPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// redisPingerAdapter adapts redis.Client to the health check pinger.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
