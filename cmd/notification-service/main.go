package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-marketplace/internal/notification/dedup"
	"github.com/sakashimaa/go-marketplace/internal/notification/email"
	"github.com/sakashimaa/go-marketplace/internal/notification/service"
	"github.com/sakashimaa/go-marketplace/internal/notification/transport/consumer"
	"github.com/sakashimaa/go-marketplace/pkg/bus"
	"github.com/sakashimaa/go-marketplace/pkg/config"
	"github.com/sakashimaa/go-marketplace/pkg/kafka"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"github.com/sakashimaa/go-marketplace/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig("notification-service"))
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, cfg.TracerConfig("notification-service"))
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			mylogger.Warn(ctx, logger, "Error closing redis client", zap.Error(err))
		}
	}()

	notifications := service.NewNotificationService(
		email.NewSMTPSender(cfg.SMTP, logger),
		dedup.NewRedisStore(rdb, cfg.Notification.DedupTTL),
		cfg.Notification.Recipient,
		service.DefaultRetryPolicy,
		logger,
	)

	group := kafka.NewConsumerGroup(cfg.Kafka.Brokers, bus.DeliveryOptions{
		AttemptTimeout: cfg.Consumer.AttemptTimeout,
	}, logger)

	dispatcher := consumer.NewConsumer(notifications, group, logger)

	mylogger.Info(ctx, logger, "Notification service started", zap.String("recipient", cfg.Notification.Recipient))
	if err := dispatcher.Start(ctx); err != nil {
		mylogger.Error(ctx, logger, "Dispatcher stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
