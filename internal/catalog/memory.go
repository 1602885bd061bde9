package catalog

import (
	"context"
	"sync"
)

type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[int64]Product
}

func NewMemoryCatalog(products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[int64]Product)}
	for _, p := range products {
		c.Put(p)
	}

	return c
}

func (c *MemoryCatalog) Put(p Product) {
	if p.Status == "" {
		p.Status = StatusActive
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.products[p.ID] = p
}

func (c *MemoryCatalog) Product(ctx context.Context, id int64) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}

	return &p, nil
}
