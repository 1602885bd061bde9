package repository

import (
	"context"
	"time"

	"github.com/sakashimaa/go-marketplace/internal/inventory/domain"
)

// LedgerRepository is the authoritative store of per-product stock. Every
// method is atomic per product and stock never goes below zero.
type LedgerRepository interface {
	Stock(ctx context.Context, productID int64) (*domain.StockRecord, error)
	// Reserve decrements stock and records r.EventID as applied together with
	// a hold for r. Reserving an already recorded EventID is a no-op.
	Reserve(ctx context.Context, r domain.Reservation) error
	// Release restores the stock of a held reservation and drops the hold.
	// It reports false when no hold exists, e.g. after Confirm or a previous
	// Release.
	Release(ctx context.Context, eventID string) (bool, error)
	Confirm(ctx context.Context, orderID string) (int64, error)
	ApplyDelta(ctx context.Context, eventID string, productID, delta int64) (bool, error)
	ExpiredHolds(ctx context.Context, before time.Time, limit int) ([]domain.Hold, error)
}
