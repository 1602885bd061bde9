package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakashimaa/go-marketplace/internal/inventory/domain"
	"github.com/sakashimaa/go-marketplace/internal/inventory/repository"
	"github.com/sakashimaa/go-marketplace/internal/inventory/service"
	"github.com/sakashimaa/go-marketplace/pkg/bus"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type flakyLedger struct {
	repository.LedgerRepository
	failures int
}

func (l *flakyLedger) ApplyDelta(ctx context.Context, eventID string, productID, delta int64) (bool, error) {
	if l.failures > 0 {
		l.failures--
		return false, errors.New("connection reset")
	}

	return l.LedgerRepository.ApplyDelta(ctx, eventID, productID, delta)
}

func stockFact(t *testing.T, eventID string, productID, qty int64, dir generalDomain.StockDirection) generalDomain.Fact {
	t.Helper()

	fact, err := generalDomain.NewStockAdjustedFact(eventID, generalDomain.StockAdjustedEvent{
		ProductID: productID,
		OrderID:   "order-1",
		Quantity:  qty,
		Direction: dir,
	})
	require.NoError(t, err)

	return fact
}

func setup(repo repository.LedgerRepository) (*Consumer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	return NewConsumer(service.NewLedgerService(repo, logger), nil, logger), logs
}

func stock(t *testing.T, l *repository.MemoryLedger, productID int64) int64 {
	t.Helper()

	rec, err := l.Stock(context.Background(), productID)
	require.NoError(t, err)

	return rec.Stock
}

func TestHandleFact_AppliesOncePerEvent(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger(domain.StockRecord{ProductID: 1, Stock: 4})
	c, _ := setup(ledger)

	fact := stockFact(t, "e-1", 1, 3, generalDomain.StockIncrease)
	require.NoError(t, c.HandleFact(ctx, fact))
	require.NoError(t, c.HandleFact(ctx, fact))

	require.Equal(t, int64(7), stock(t, ledger, 1))
}

func TestHandleFact_ReservationFactIsNoOp(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger(domain.StockRecord{ProductID: 1, Stock: 10})
	c, _ := setup(ledger)

	require.NoError(t, ledger.Reserve(ctx, domain.Reservation{EventID: "e-1", OrderID: "order-1", ProductID: 1, Quantity: 3}))
	require.NoError(t, c.HandleFact(ctx, stockFact(t, "e-1", 1, 3, generalDomain.StockDecrease)))

	require.Equal(t, int64(7), stock(t, ledger, 1))
}

func TestHandleFact_PoisonFactsAreLoggedAndAcknowledged(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger(domain.StockRecord{ProductID: 1, Stock: 1})
	c, logs := setup(ledger)

	require.NoError(t, c.HandleFact(ctx, stockFact(t, "e-1", 404, 1, generalDomain.StockIncrease)))
	require.NoError(t, c.HandleFact(ctx, stockFact(t, "e-2", 1, 5, generalDomain.StockDecrease)))
	require.NoError(t, c.HandleFact(ctx, generalDomain.Fact{
		Topic:   generalDomain.TopicStockUpdate,
		EventID: "e-3",
		Type:    generalDomain.FactStockAdjusted,
		Payload: []byte(`{"product_id":`),
	}))

	dropped := logs.FilterMessage("Dropping stock-update fact that cannot apply")
	require.Equal(t, 3, dropped.Len())
	for _, entry := range dropped.All() {
		require.Equal(t, zapcore.ErrorLevel, entry.Level)
	}
	require.Equal(t, int64(1), stock(t, ledger, 1))
}

func TestHandleFact_TransientErrorIsReturned(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryLedger(domain.StockRecord{ProductID: 1, Stock: 0})
	c, _ := setup(&flakyLedger{LedgerRepository: ledger, failures: 1})

	fact := stockFact(t, "e-1", 1, 2, generalDomain.StockIncrease)
	require.Error(t, c.HandleFact(ctx, fact))
	require.Zero(t, stock(t, ledger, 1))

	require.NoError(t, c.HandleFact(ctx, fact))
	require.Equal(t, int64(2), stock(t, ledger, 1))
}

func TestStart_RedeliveredDuplicatesApplyOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger := repository.NewMemoryLedger(domain.StockRecord{ProductID: 1, Stock: 0})
	memBus := bus.NewMemory(2, bus.DeliveryOptions{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, zap.NewNop())

	logger := zap.NewNop()
	c := NewConsumer(service.NewLedgerService(&flakyLedger{LedgerRepository: ledger, failures: 2}, logger), memBus, logger)

	fact := stockFact(t, "e-1", 1, 3, generalDomain.StockIncrease)
	require.NoError(t, memBus.Publish(ctx, fact, fact, stockFact(t, "e-2", 1, 1, generalDomain.StockIncrease)))

	go func() { _ = c.Start(ctx) }()

	require.Eventually(t, func() bool { return stock(t, ledger, 1) == 4 }, 2*time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return stock(t, ledger, 1) != 4 }, 50*time.Millisecond, 5*time.Millisecond)
}
