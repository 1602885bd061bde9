package repository

import (
	"context"
	"time"

	"github.com/sakashimaa/go-marketplace/internal/order/domain"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

type ListFilter struct {
	// UserID restricts the listing to one owner when set.
	UserID *int64
	Limit  int
	Offset int
}

type OrderRepository interface {
	// Create persists the order, its items and facts in one transaction.
	Create(ctx context.Context, order *domain.Order, facts []generalDomain.Fact) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// UpdateStatus moves the order from prev to next and persists facts in
	// the same transaction. It fails with ErrStatusChanged when the stored
	// status is no longer prev.
	UpdateStatus(ctx context.Context, id string, prev, next domain.OrderStatus, updatedAt time.Time, facts []generalDomain.Fact) error
	Exists(ctx context.Context, id string) (bool, error)
}
