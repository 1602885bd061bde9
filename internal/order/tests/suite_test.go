//go:build integration

package tests

import (
	"context"
	"testing"
	"time"

	"github.com/sakashimaa/go-marketplace/internal/catalog"
	inventoryRepository "github.com/sakashimaa/go-marketplace/internal/inventory/repository"
	inventoryService "github.com/sakashimaa/go-marketplace/internal/inventory/service"
	"github.com/sakashimaa/go-marketplace/internal/inventory/transport/consumer"
	"github.com/sakashimaa/go-marketplace/internal/order/domain"
	orderRepository "github.com/sakashimaa/go-marketplace/internal/order/repository"
	"github.com/sakashimaa/go-marketplace/internal/order/service"
	"github.com/sakashimaa/go-marketplace/pkg/bus"
	"github.com/sakashimaa/go-marketplace/pkg/kafka"
	outboxRepository "github.com/sakashimaa/go-marketplace/pkg/outbox/repository"
	"github.com/sakashimaa/go-marketplace/pkg/outbox/worker"
	"github.com/sakashimaa/go-marketplace/pkg/testsuite"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

var (
	customer = domain.Identity{UserID: 1, Roles: []string{"USER"}}
	admin    = domain.Identity{UserID: 99, Roles: []string{domain.RoleAdmin}}
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	Ledger       inventoryService.LedgerService
	OrderRepo    orderRepository.OrderRepository
	OrderService service.OrderService
	Producer     *kafka.Producer
	Relay        *worker.OutboxProcessor
	Reconciler   *consumer.Consumer

	cancel context.CancelFunc
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../../migrations", true)

	var err error
	s.Producer, err = kafka.NewProducer(s.KafkaBrokers, zap.NewNop())
	s.Require().NoError(err, "failed to create kafka producer")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.Producer != nil {
		s.Require().NoError(s.Producer.Close())
	}
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.TruncateTables("order_items", "orders", "outbox", "reservation_holds", "applied_events", "products")

	logger := zap.NewNop()

	s.Ledger = inventoryService.NewLedgerService(inventoryRepository.NewLedgerRepository(s.DbPool, logger), logger)

	outboxRepo := outboxRepository.NewOutboxRepository(s.DbPool, logger)
	s.OrderRepo = orderRepository.NewOrderRepository(s.DbPool, outboxRepo, logger)
	s.OrderService = service.NewOrderService(s.OrderRepo, s.Ledger, catalog.NewPostgresCatalog(s.DbPool, logger), logger)
	s.Relay = worker.NewOutboxProcessor(outboxRepo, s.Producer, logger, 50, 50*time.Millisecond)

	group := kafka.NewConsumerGroup(s.KafkaBrokers, bus.DeliveryOptions{AttemptTimeout: 5 * time.Second}, logger)
	s.Reconciler = consumer.NewConsumer(s.Ledger, group, logger)

	ctx, cancel := context.WithCancel(s.Ctx)
	s.cancel = cancel

	go s.Relay.Start(ctx)
	go func() { _ = s.Reconciler.Start(ctx) }()
}

func (s *IntegrationTestSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *IntegrationTestSuite) seedProduct(name string, price, stock int64) int64 {
	var id int64
	err := s.DbPool.QueryRow(
		s.Ctx,
		`INSERT INTO products (name, price, stock) VALUES ($1, $2, $3) RETURNING id`,
		name, price, stock,
	).Scan(&id)
	s.Require().NoError(err)

	return id
}

func (s *IntegrationTestSuite) stock(productID int64) int64 {
	var stock int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock))

	return stock
}

func (s *IntegrationTestSuite) unpublished() int {
	var n int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n))

	return n
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	suite.Run(t, new(IntegrationTestSuite))
}
