package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"

	"contentgen/internal/adapter/repo"
	"contentgen/internal/infra"
	"contentgen/internal/outbox"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)
	store := repo.NewPostgresStore(runner, runner)

	var publisher outbox.Publisher = outbox.NewLogPublisher(logger)
	if cfg.RedisAddr != "" {
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: redis connection failed")
		}
		defer client.Close()
		publisher = outbox.NewStreamPublisher(client, cfg.NotificationStream)
	}

	dispatcher := outbox.NewDispatcher(store.Notifications(), publisher, outbox.Config{
		BatchSize:    cfg.WorkerBatchSize,
		Attempts:     uint(cfg.WorkerMaxAttempts),
		PollInterval: cfg.WorkerPollInterval,
	}, logger)

	wake := make(chan struct{}, 1)
	listener := pq.NewListener(cfg.DatabaseURL, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn().Err(err).Int("event", int(ev)).Msg("worker: listener event")
		}
	})
	defer listener.Close()
	if err := listener.Listen(cfg.NotificationChannel); err != nil {
		logger.Warn().Err(err).Str("channel", cfg.NotificationChannel).Msg("worker: listen failed, polling only")
	} else {
		go forwardNotifications(ctx, listener, wake)
	}

	logger.Info().Str("channel", cfg.NotificationChannel).Dur("poll", cfg.WorkerPollInterval).Msg("worker: started")
	dispatcher.Run(ctx, wake)
	logger.Info().Msg("worker: stopped")
}

// forwardNotifications turns NOTIFY traffic into dispatcher wake-ups. A nil
// notification follows a reconnect and also triggers a pass.
func forwardNotifications(ctx context.Context, l *pq.Listener, wake chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Notify:
		case <-time.After(90 * time.Second):
			go func() { _ = l.Ping() }()
			continue
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
