package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/labportal/internal/app"
	"github.com/Freeeeeet/labportal/internal/config"
	"github.com/Freeeeeet/labportal/internal/notify"
	"github.com/Freeeeeet/labportal/internal/repository"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/go-telegram/bot"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Environment, "notifier", cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Notifier stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := app.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	store := repository.NewPgStore(pool, logger, cfg.DBTxAttempts)
	notifications := service.NewNotificationService(store, service.Options{Location: loc, BaseURL: cfg.PublicBaseURL}, logger)

	dispatcher := notify.NewDispatcher(store.Users(), notify.DispatcherConfig{
		Attempts: cfg.NotifyMaxAttempts,
		Backoff:  cfg.NotifyBackoff,
	}, logger)
	dispatcher.AddChannel(notify.NewInAppChannel(notifications))

	if cfg.SMTP.Host != "" {
		dispatcher.AddChannel(notify.NewEmailChannel(notify.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
		}))
	} else {
		logger.Info("SMTP_HOST is empty, email channel disabled")
	}

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken, bot.WithSkipGetMe())
		if err != nil {
			return err
		}
		tg := notify.NewTelegramChannel(b, cfg.TelegramChannel)
		dispatcher.AddChannel(tg).AddBroadcaster(tg)
	} else {
		logger.Info("TELEGRAM_TOKEN is empty, telegram channel disabled")
	}

	consumer := notify.NewConsumer(notify.ConsumerConfig{
		URL: cfg.RabbitURL,
		Topology: notify.Topology{
			Exchange: cfg.NotifyExchange,
			Queue:    cfg.NotifyQueue,
			DLX:      cfg.NotifyDLX,
		},
		Tag: "notifier",
	}, logger)
	defer consumer.Close()

	// Переподключение к брокеру с экспоненциальной паузой
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := consumer.Connect(); err != nil {
			logger.Warn("RabbitMQ connect failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		logger.Info("Consuming notifications", zap.String("queue", cfg.NotifyQueue))
		if err := consumer.Run(ctx, dispatcher.Dispatch); err != nil {
			logger.Warn("Consumer interrupted", zap.Error(err))
			_ = consumer.Close()
			return retry.RetryableError(err)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
