package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies lifecycle errors.
type Kind int

// Error kinds.
const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Resources an error can be attached to.
const (
	ResourceProduct    = "product"
	ResourceOrder      = "order"
	ResourceCreditCard = "credit_card"
	ResourcePayment    = "payment"
)

// Machine-readable error codes.
const (
	CodeMissingFields      = "missing-fields"
	CodeInvalidQuantity    = "invalid-quantity"
	CodeOutOfInventory     = "out-of-inventory"
	CodeNotFound           = "not-found"
	CodeFieldNotModifiable = "field-not-modifiable"
	CodeMixedUpdate        = "mixed-update"
	CodeAlreadyPaid        = "already-paid"
	CodeCardDeclined       = "card-declined"
	CodeInvalidResponse    = "invalid-response"
	CodeUnavailable        = "service-unavailable"
)

// Error is a lifecycle failure reported to API clients.
type Error struct {
	Kind     Kind
	Resource string
	Code     string
	Name     string
	// Body is the gateway's own error document, forwarded verbatim when set.
	Body []byte
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %s", e.Resource, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Resource, e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a lifecycle error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ValidationError reports malformed, missing or forbidden input.
func ValidationError(resource, code, name string) *Error {
	return &Error{Kind: KindValidation, Resource: resource, Code: code, Name: name}
}

// NotFoundError reports an unknown product or order.
func NotFoundError(resource, code, name string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, Code: code, Name: name}
}

func errOrderNotFound() *Error {
	return NotFoundError(ResourceOrder, CodeNotFound, "order does not exist")
}

func errAlreadyPaid() *Error {
	return &Error{
		Kind:     KindConflict,
		Resource: ResourceOrder,
		Code:     CodeAlreadyPaid,
		Name:     "order has already been paid",
	}
}
