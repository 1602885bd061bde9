package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sakashimaa/go-marketplace/internal/inventory/domain"
)

// MemoryLedger is an arena of per-product slots. Each slot has its own mutex,
// so operations on one product are serialized while unrelated products
// proceed in parallel. The slot map itself only grows.
type MemoryLedger struct {
	mu    sync.RWMutex
	slots map[int64]*slot

	holdsMu sync.Mutex
	holds   map[string]domain.Hold

	now func() time.Time
}

type slot struct {
	mu      sync.Mutex
	record  domain.StockRecord
	applied map[string]struct{}
}

func NewMemoryLedger(records ...domain.StockRecord) *MemoryLedger {
	l := &MemoryLedger{
		slots: make(map[int64]*slot),
		holds: make(map[string]domain.Hold),
		now:   time.Now,
	}
	for _, rec := range records {
		l.Put(rec)
	}

	return l
}

// Put creates or overwrites the stock record of a product.
func (l *MemoryLedger) Put(rec domain.StockRecord) {
	if rec.Status == "" {
		rec.Status = domain.ProductStatusActive
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.slots[rec.ProductID]; ok {
		s.mu.Lock()
		s.record = rec
		s.mu.Unlock()
		return
	}

	l.slots[rec.ProductID] = &slot{record: rec, applied: make(map[string]struct{})}
}

func (l *MemoryLedger) slot(productID int64) (*slot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.slots[productID]
	if !ok {
		return nil, ErrProductNotFound
	}

	return s, nil
}

func (l *MemoryLedger) Stock(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, err := l.slot(productID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record
	return &rec, nil
}

func (l *MemoryLedger) Reserve(ctx context.Context, r domain.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := l.slot(r.ProductID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.applied[r.EventID]; ok {
		return nil
	}
	if !s.record.Available(r.Quantity) {
		return ErrInsufficientStock
	}

	s.record.Stock -= r.Quantity
	s.applied[r.EventID] = struct{}{}

	l.holdsMu.Lock()
	l.holds[r.EventID] = domain.Hold{Reservation: r, CreatedAt: l.now()}
	l.holdsMu.Unlock()

	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.holdsMu.Lock()
	hold, ok := l.holds[eventID]
	if ok {
		delete(l.holds, eventID)
	}
	l.holdsMu.Unlock()

	if !ok {
		return false, nil
	}

	s, err := l.slot(hold.ProductID)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.record.Stock += hold.Quantity
	s.mu.Unlock()

	return true, nil
}

func (l *MemoryLedger) Confirm(ctx context.Context, orderID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.holdsMu.Lock()
	defer l.holdsMu.Unlock()

	var n int64
	for id, hold := range l.holds {
		if hold.OrderID == orderID {
			delete(l.holds, id)
			n++
		}
	}

	return n, nil
}

func (l *MemoryLedger) ApplyDelta(ctx context.Context, eventID string, productID, delta int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s, err := l.slot(productID)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.applied[eventID]; ok {
		return false, nil
	}
	if s.record.Stock+delta < 0 {
		return false, ErrInsufficientStock
	}

	s.record.Stock += delta
	s.applied[eventID] = struct{}{}

	return true, nil
}

func (l *MemoryLedger) ExpiredHolds(ctx context.Context, before time.Time, limit int) ([]domain.Hold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.holdsMu.Lock()
	var holds []domain.Hold
	for _, hold := range l.holds {
		if hold.CreatedAt.Before(before) {
			holds = append(holds, hold)
		}
	}
	l.holdsMu.Unlock()

	sort.Slice(holds, func(i, j int) bool {
		return holds[i].CreatedAt.Before(holds[j].CreatedAt)
	})
	if limit > 0 && len(holds) > limit {
		holds = holds[:limit]
	}

	return holds, nil
}

// SetClock replaces the clock holds are stamped with.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.holdsMu.Lock()
	defer l.holdsMu.Unlock()

	l.now = now
}

// HoldCount returns the number of outstanding holds.
func (l *MemoryLedger) HoldCount() int {
	l.holdsMu.Lock()
	defer l.holdsMu.Unlock()

	return len(l.holds)
}
