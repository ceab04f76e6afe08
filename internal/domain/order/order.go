package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/payment"
)

// Store errors.
var (
	// ErrNotFound is returned by Repository when no order has the given id.
	ErrNotFound = errors.New("order not found")
	// ErrSettled is returned by Repository.Update when the stored order is
	// already paid.
	ErrSettled = errors.New("order already paid")
)

// Order is a single-product customer order moving through
// created → addressed → paid.
type Order struct {
	ID            int64
	ProductID     int64
	Quantity      int
	TotalPrice    decimal.Decimal
	ShippingPrice int
	// TotalPriceTax is valid iff Shipping is set.
	TotalPriceTax decimal.NullDecimal
	Email         string
	Shipping      *ShippingInformation
	Paid          bool
	CreditCard    *payment.CardSummary
	Transaction   *Transaction
	CreatedAt     time.Time
}

// ShippingInformation is the order destination. It is stored as a unit.
type ShippingInformation struct {
	Country    string
	Address    string
	PostalCode string
	City       string
	Province   string
}

// Transaction records a settled gateway charge.
type Transaction struct {
	ID            string
	Success       bool
	AmountCharged decimal.Decimal
}

// Addressed reports whether the order has a complete destination.
func (o *Order) Addressed() bool {
	return o.Shipping != nil && o.Email != ""
}

// AmountDue is the amount charged at payment: taxed total plus shipping.
func (o *Order) AmountDue() decimal.Decimal {
	return o.TotalPriceTax.Decimal.Add(decimal.NewFromInt(int64(o.ShippingPrice)))
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order and sets its ID and CreatedAt.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	// Update writes the mutable fields of an unpaid order: email, shipping
	// information, taxed total, and the payment fields. Returns ErrSettled if
	// the stored order is already paid.
	Update(ctx context.Context, o *Order) error
}

// Locker provides per-order mutual exclusion.
type Locker interface {
	// Lock blocks until the order lock is held or ctx is done. The returned
	// function releases the lock.
	Lock(ctx context.Context, orderID int64) (unlock func(), err error)
}
