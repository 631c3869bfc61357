package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/labportal/internal/app"
	"github.com/Freeeeeet/labportal/internal/auth"
	"github.com/Freeeeeet/labportal/internal/config"
	"github.com/Freeeeeet/labportal/internal/controller"
	"github.com/Freeeeeet/labportal/internal/httpapi"
	"github.com/Freeeeeet/labportal/internal/notify"
	"github.com/Freeeeeet/labportal/internal/repository"
	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Environment, "portal", cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Portal stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := app.InitTracer(ctx, cfg.OTLPEndpoint, "labportal", cfg.Environment, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	pool, err := app.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		return err
	}
	_ = migrator.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	store := repository.NewPgStore(pool, logger, cfg.DBTxAttempts)
	opts := service.Options{
		Location:                loc,
		BaseURL:                 cfg.PublicBaseURL,
		StrictGroupUpdate:       cfg.StrictGroupUpdate,
		ReleaseScheduleOnCancel: cfg.ReleaseScheduleOnCancel,
	}
	svc := httpapi.Services{
		Labs:          service.NewLabService(store, logger),
		Users:         service.NewUserService(store, logger),
		Reservations:  service.NewReservationService(store, opts, logger),
		Schedules:     service.NewScheduleService(store, opts, logger),
		Notifications: service.NewNotificationService(store, opts, logger),
	}

	publisher := notify.NewPublisher(notify.PublisherConfig{
		URL: cfg.RabbitURL,
		Topology: notify.Topology{
			Exchange: cfg.NotifyExchange,
			Queue:    cfg.NotifyQueue,
			DLX:      cfg.NotifyDLX,
		},
	}, logger)
	defer publisher.Close()
	// Outbox копит события, пока брокер недоступен; реле переподключится само
	if err := publisher.Connect(ctx); err != nil {
		logger.Warn("RabbitMQ unavailable at startup, outbox will retry", zap.Error(err))
	}

	relay := app.NewOutboxRelay(store, publisher, cfg.OutboxInterval, cfg.OutboxBatch, logger)
	relay.Start(ctx)
	defer relay.Stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(svc, httpapi.Config{
			Issuer: auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL),
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP API listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(sctx)
	})

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
		ctrl := controller.NewBotController(b, controller.Services{
			Users:        svc.Users,
			Labs:         svc.Labs,
			Reservations: svc.Reservations,
			Schedules:    svc.Schedules,
		}, logger)
		if err := ctrl.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands not set", zap.Error(err))
		}
		g.Go(func() error { return ctrl.Start(gctx) })
	} else {
		logger.Info("TELEGRAM_TOKEN is empty, bot disabled")
	}

	return g.Wait()
}
