package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-marketplace/internal/catalog"
	inventoryRepository "github.com/sakashimaa/go-marketplace/internal/inventory/repository"
	inventoryService "github.com/sakashimaa/go-marketplace/internal/inventory/service"
	orderRepository "github.com/sakashimaa/go-marketplace/internal/order/repository"
	"github.com/sakashimaa/go-marketplace/internal/order/service"
	"github.com/sakashimaa/go-marketplace/internal/order/transport/http"
	"github.com/sakashimaa/go-marketplace/pkg/config"
	"github.com/sakashimaa/go-marketplace/pkg/db"
	"github.com/sakashimaa/go-marketplace/pkg/kafka"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/go-marketplace/pkg/outbox/repository"
	"github.com/sakashimaa/go-marketplace/pkg/outbox/worker"
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

	logger, err := config.NewLogger(cfg.LoggerConfig("order-service"))
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, cfg.TracerConfig("order-service"))
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL, logger)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			mylogger.Warn(ctx, logger, "Error closing redis client", zap.Error(err))
		}
	}()

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			mylogger.Warn(ctx, logger, "Error closing kafka producer", zap.Error(err))
		}
	}()

	ledger := inventoryService.NewLedgerService(inventoryRepository.NewLedgerRepository(pool, logger), logger)
	products := catalog.NewCachedCatalog(catalog.NewPostgresCatalog(pool, logger), rdb, cfg.Catalog.CacheTTL, logger)

	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)
	orderRepo := orderRepository.NewOrderRepository(pool, outboxRepo, logger)
	orderService := service.NewOrderService(orderRepo, ledger, products, logger)

	relay := worker.NewOutboxProcessor(outboxRepo, producer, logger, cfg.Outbox.BatchSize, cfg.Outbox.Interval)
	sweeper := service.NewSweeper(ledger, orderRepo, cfg.Recovery.HoldTTL, cfg.Recovery.Interval, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		relay.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	app := http.NewApp(http.LimiterConfig{Max: cfg.Limiter.Max, Expiration: cfg.Limiter.Expiration})
	http.RegisterRoutes(
		app,
		http.NewOrderHandler(orderService, cfg.HTTP.Timeout, logger),
		http.NewStockHandler(ledger, cfg.HTTP.Timeout, logger),
		[]byte(cfg.Auth.JWTSecret),
	)

	go func() {
		mylogger.Info(ctx, logger, "HTTP service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down order service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}

	wg.Wait()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
