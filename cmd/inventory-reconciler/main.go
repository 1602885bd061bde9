package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/go-marketplace/internal/inventory/repository"
	"github.com/sakashimaa/go-marketplace/internal/inventory/service"
	"github.com/sakashimaa/go-marketplace/internal/inventory/transport/consumer"
	"github.com/sakashimaa/go-marketplace/pkg/bus"
	"github.com/sakashimaa/go-marketplace/pkg/config"
	"github.com/sakashimaa/go-marketplace/pkg/db"
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

	logger, err := config.NewLogger(cfg.LoggerConfig("inventory-reconciler"))
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, cfg.TracerConfig("inventory-reconciler"))
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL, logger)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Close()

	ledger := service.NewLedgerService(repository.NewLedgerRepository(pool, logger), logger)
	group := kafka.NewConsumerGroup(cfg.Kafka.Brokers, bus.DeliveryOptions{
		AttemptTimeout: cfg.Consumer.AttemptTimeout,
	}, logger)

	reconciler := consumer.NewConsumer(ledger, group, logger)

	mylogger.Info(ctx, logger, "Inventory reconciler started", zap.Strings("brokers", cfg.Kafka.Brokers))
	if err := reconciler.Start(ctx); err != nil {
		mylogger.Error(ctx, logger, "Reconciler stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
