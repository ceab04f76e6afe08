package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item mirrored from the remote shop catalog.
// Products are never modified by the order API.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	InStock     bool
	Image       string
	// Weight is the unit weight in grams.
	Weight int
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
}
