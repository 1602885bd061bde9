package repository

import (
	"fmt"

	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

var (
	ErrProductNotFound   = fmt.Errorf("product %w", generalDomain.ErrNotFound)
	ErrInsufficientStock = fmt.Errorf("product has %w", generalDomain.ErrInsufficientStock)
)
