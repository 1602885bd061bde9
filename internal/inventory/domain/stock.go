package domain

import "time"

type ProductStatus string

const (
	ProductStatusActive  ProductStatus = "ACTIVE"
	ProductStatusDeleted ProductStatus = "DELETED"
)

type StockRecord struct {
	ProductID int64         `db:"id"`
	SellerID  int64         `db:"seller_id"`
	Name      string        `db:"name"`
	Price     int64         `db:"price"`
	Stock     int64         `db:"stock"`
	Status    ProductStatus `db:"status"`
}

func (r StockRecord) Available(quantity int64) bool {
	return r.Status == ProductStatusActive && r.Stock >= quantity
}

// Reservation is stock withheld for one order line. EventID is the id of the
// StockAdjusted decrease fact that will later describe it, so the ledger can
// recognise that fact as already applied.
type Reservation struct {
	EventID   string
	OrderID   string
	ProductID int64
	Quantity  int64
}

// Hold is the ledger's record of a reservation whose order is not yet known
// to be durable.
type Hold struct {
	Reservation
	CreatedAt time.Time
}
