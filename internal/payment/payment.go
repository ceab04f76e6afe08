// Package payment talks to the external payment gateway that settles orders.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidResponse is returned when the gateway answered with a body that
// could not be parsed.
var ErrInvalidResponse = errors.New("payment service unavailable")

// Card is the card data submitted by the customer. It is forwarded to the
// gateway and never persisted.
type Card struct {
	Name            string
	Number          string
	ExpirationYear  int
	ExpirationMonth int
	CVV             string
}

// CardSummary is the sanitized card description stored on a paid order.
type CardSummary struct {
	Name            string
	FirstDigits     string
	LastDigits      string
	ExpirationYear  int
	ExpirationMonth int
}

// Receipt describes a settled charge.
type Receipt struct {
	TransactionID string
	Success       bool
	AmountCharged decimal.Decimal
	// Card is nil when the gateway response carried no card summary.
	Card *CardSummary
}

// DeclinedError is returned when the gateway refused the charge. Body holds the
// gateway's JSON error document as received.
type DeclinedError struct {
	StatusCode int
	Body       []byte
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined with status %d", e.StatusCode)
}

// Gateway charges a card for an amount.
type Gateway interface {
	Charge(ctx context.Context, card Card, amount decimal.Decimal) (*Receipt, error)
}
