package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sakashimaa/go-marketplace/internal/order/domain"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	outboxRepository "github.com/sakashimaa/go-marketplace/pkg/outbox/repository"
)

// MemoryOrderRepository stores orders in process and appends their facts to
// an in-memory outbox under the same lock, so an order and its facts become
// visible together.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	outbox *outboxRepository.MemoryOutbox

	// failCreate, when set, is returned by Create without storing anything.
	failCreate error
}

func NewMemoryOrderRepository(outbox *outboxRepository.MemoryOutbox) *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string]*domain.Order),
		outbox: outbox,
	}
}

// FailCreate makes every following Create fail with err. A nil err restores
// normal behaviour.
func (r *MemoryOrderRepository) FailCreate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failCreate = err
}

func (r *MemoryOrderRepository) Create(ctx context.Context, order *domain.Order, facts []generalDomain.Fact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreate != nil {
		return r.failCreate
	}
	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists: %w", order.ID, generalDomain.ErrConflict)
	}

	r.orders[order.ID] = cloneOrder(order)
	r.outbox.Append(facts...)

	return nil
}

func (r *MemoryOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}

	return cloneOrder(o), nil
}

func (r *MemoryOrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var orders []domain.Order
	for _, o := range r.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		orders = append(orders, *cloneOrder(o))
	}
	r.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	if filter.Offset >= len(orders) {
		return nil, nil
	}
	orders = orders[filter.Offset:]
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}

	return orders, nil
}

func (r *MemoryOrderRepository) UpdateStatus(
	ctx context.Context,
	id string,
	prev, next domain.OrderStatus,
	updatedAt time.Time,
	facts []generalDomain.Fact,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != prev {
		return ErrStatusChanged
	}

	o.Status = next
	o.UpdatedAt = updatedAt
	r.outbox.Append(facts...)

	return nil
}

func (r *MemoryOrderRepository) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.orders[id]
	return ok, nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)

	return &cp
}
