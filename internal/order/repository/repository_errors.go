package repository

import (
	"fmt"

	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

var (
	ErrOrderNotFound = fmt.Errorf("order %w", generalDomain.ErrNotFound)
	// ErrStatusChanged means the order left the expected status between read
	// and write.
	ErrStatusChanged = fmt.Errorf("order status changed concurrently: %w", generalDomain.ErrConflict)
)
