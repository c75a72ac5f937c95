package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"contentgen/internal/adapter/repo"
	"contentgen/internal/domain"
	"contentgen/internal/http/handlers"
	httpapi "contentgen/internal/http/httpapi"
	"contentgen/internal/idempotency"
	"contentgen/internal/infra"
	"contentgen/internal/infra/geoip"
	"contentgen/internal/notify"
	"contentgen/internal/outbox"
	"contentgen/internal/storage"
	"contentgen/internal/webhook"
)

func main() {
	// Optional .env
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store domain.Store
		db    infra.SQLExecutor
		ready func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		store = repo.NewPostgresStore(runner, runner)
		db = runner
		ready = pool.Ping
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		store = repo.NewMemoryStore()
	}

	var rc redis.Cmdable
	if cfg.RedisAddr != "" {
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer client.Close()
		rc = client
	}

	guard, err := idempotency.FromConfig(cfg, db, rc)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure idempotency guard")
	}
	if sweeper, ok := guard.(idempotency.Sweeper); ok {
		go idempotency.RunSweeper(ctx, sweeper, cfg.IdempotencySweepInterval, logger)
	}

	locator, err := storage.NewLocator(cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid STORAGE_BASE_URL")
	}
	decoder, err := webhook.NewDecoder(locator)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load webhook schemas")
	}

	emitter := notify.NewEmitter(store.Notifications(), logger)
	processor := webhook.NewProcessor(store, guard, emitter, webhook.ResolverConfig{
		FallbackEnabled: cfg.CorrelationFallbackEnabled,
		Lookback:        cfg.CorrelationLookback,
		OwnerFallback:   cfg.OwnerFallback,
	}, logger)

	// Without a database the worker cannot see the outbox, so drain it here.
	if db == nil {
		var publisher outbox.Publisher = outbox.NewLogPublisher(logger)
		if rc != nil {
			publisher = outbox.NewStreamPublisher(rc, cfg.NotificationStream)
		}
		dispatcher := outbox.NewDispatcher(store.Notifications(), publisher, outbox.Config{
			BatchSize:    cfg.WorkerBatchSize,
			Attempts:     uint(cfg.WorkerMaxAttempts),
			PollInterval: cfg.WorkerPollInterval,
		}, logger)
		go dispatcher.Run(ctx, nil)
	}

	app := &handlers.App{
		Processor:    processor,
		Decoder:      decoder,
		Jobs:         store.Jobs(),
		Content:      store.Content(),
		MaxBodyBytes: cfg.WebhookMaxBodyBytes,
		Logger:       logger,
		Ready:        ready,
	}
	opts := httpapi.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}
	if cfg.IsDevelopment() {
		logger.Warn().Str("app_env", cfg.AppEnv).Msg("webhook secret check disabled in development")
	} else {
		opts.WebhookSecret = cfg.WebhookSecret
	}
	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if geo != nil {
		defer geo.Close()
		opts.Geo = geo
	}
	router := httpapi.NewRouter(app, opts, logger)

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("addr", server.Addr()).Str("idempotency", cfg.IdempotencyBackend).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
