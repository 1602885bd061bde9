// Package catalog is the authoritative source of product names and prices.
// Prices supplied by callers are never trusted.
package catalog

import (
	"context"
	"fmt"

	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

var ErrProductNotFound = fmt.Errorf("product %w", generalDomain.ErrNotFound)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusDeleted Status = "DELETED"
)

type Product struct {
	ID       int64  `json:"id"`
	SellerID int64  `json:"seller_id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Status   Status `json:"status"`
}

type Catalog interface {
	Product(ctx context.Context, id int64) (*Product, error)
}
