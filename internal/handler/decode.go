package handler

import (
	"math"
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/payment"
)

// updateRequest is exactly one of a shipping edit or a payment.
type updateRequest struct {
	shipping *order.ShippingUpdate
	payment  *order.PaymentRequest
}

func decodeCreate(data []byte) (order.CreateRequest, error) {
	var (
		req                order.CreateRequest
		idRaw, quantityRaw jx.Raw
		hasProduct         bool
	)
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "product" {
			return d.Skip()
		}
		if d.Next() != jx.Object {
			return d.Skip()
		}
		hasProduct = true
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				idRaw, err = d.Raw()
			case "quantity":
				quantityRaw, err = d.Raw()
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil || !hasProduct {
		return req, errCreateMissingFields
	}

	id, ok := numeric(idRaw)
	if !ok || !id.IsInteger() || !id.IsPositive() || id.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return req, errCreateMissingFields
	}
	quantity, ok := numeric(quantityRaw)
	if !ok {
		return req, errCreateMissingFields
	}
	if !quantity.IsInteger() || !quantity.IsPositive() || quantity.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return req, order.ValidationError(order.ResourceProduct, order.CodeInvalidQuantity,
			"quantity must be an integer greater than 0")
	}

	req.ProductID = id.IntPart()
	req.Quantity = int(quantity.IntPart())
	return req, nil
}

var errCreateMissingFields = order.ValidationError(order.ResourceProduct, order.CodeMissingFields,
	"an order must contain a product id and quantity")

// decodeUpdate classifies a PUT body. Restricted or unknown fields and mixed
// bodies are rejected here, before any order state is read.
func decodeUpdate(data []byte) (updateRequest, error) {
	var (
		orderRaw, cardRaw jx.Raw
		forbidden         string
	)
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order":
			orderRaw, err = d.Raw()
		case "credit_card":
			cardRaw, err = d.Raw()
		default:
			if forbidden == "" {
				forbidden = key
			}
			err = d.Skip()
		}
		return err
	})
	switch {
	case err != nil:
		return updateRequest{}, errUpdateMissingFields
	case orderRaw != nil && cardRaw != nil:
		return updateRequest{}, order.ValidationError(order.ResourceOrder, order.CodeMixedUpdate,
			"shipping information and credit card must be sent in separate requests")
	case forbidden != "":
		return updateRequest{}, errNotModifiable(forbidden)
	case cardRaw != nil:
		card := decodeCard(cardRaw)
		return updateRequest{payment: &order.PaymentRequest{Card: card}}, nil
	case orderRaw != nil:
		return decodeShipping(orderRaw)
	default:
		return updateRequest{}, errUpdateMissingFields
	}
}

var errUpdateMissingFields = order.ValidationError(order.ResourceOrder, order.CodeMissingFields,
	"email and complete shipping information are required")

func errNotModifiable(field string) error {
	return order.ValidationError(order.ResourceOrder, order.CodeFieldNotModifiable,
		"field "+field+" cannot be modified")
}

func decodeShipping(raw jx.Raw) (updateRequest, error) {
	var (
		upd       order.ShippingUpdate
		forbidden string
	)
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return updateRequest{}, errUpdateMissingFields
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "email":
			upd.Email = optString(d)
			return nil
		case "shipping_information":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				s := &upd.Shipping
				switch key {
				case "country":
					s.Country = optString(d)
				case "address":
					s.Address = optString(d)
				case "postal_code":
					s.PostalCode = optString(d)
				case "city":
					s.City = optString(d)
				case "province":
					s.Province = optString(d)
				default:
					return d.Skip()
				}
				return nil
			})
		default:
			// Only email and shipping_information are writable.
			if forbidden == "" {
				forbidden = key
			}
			return d.Skip()
		}
	})
	if err != nil {
		return updateRequest{}, errUpdateMissingFields
	}
	if forbidden != "" {
		return updateRequest{}, errNotModifiable(forbidden)
	}
	return updateRequest{shipping: &upd}, nil
}

// decodeCard reads whatever card fields are present. Completeness is checked
// by the order service once the order itself has been validated.
func decodeCard(raw jx.Raw) payment.Card {
	var card payment.Card
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return card
	}
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			card.Name = optString(d)
		case "number":
			card.Number = optText(d)
		case "cvv":
			card.CVV = optText(d)
		case "expiration_year":
			card.ExpirationYear = optInt(d)
		case "expiration_month":
			card.ExpirationMonth = optInt(d)
		default:
			return d.Skip()
		}
		return nil
	})
	return card
}

// optString reads a string value; any other type yields "".
func optString(d *jx.Decoder) string {
	if d.Next() != jx.String {
		_ = d.Skip()
		return ""
	}
	s, _ := d.Str()
	return s
}

// optText reads a string or a number as text.
func optText(d *jx.Decoder) string {
	if d.Next() == jx.Number {
		n, _ := d.Num()
		return n.String()
	}
	return optString(d)
}

// optInt reads a numeric-coercible integer; anything else yields 0.
func optInt(d *jx.Decoder) int {
	raw, err := d.Raw()
	if err != nil {
		return 0
	}
	v, ok := numeric(raw)
	if !ok || !v.IsInteger() || v.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0
	}
	return int(v.IntPart())
}

// numeric parses a JSON number or a string holding a number.
func numeric(raw jx.Raw) (decimal.Decimal, bool) {
	if raw == nil {
		return decimal.Zero, false
	}
	d := jx.DecodeBytes(raw)
	var s string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, false
		}
		s = n.String()
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Zero, false
		}
		s = strings.TrimSpace(v)
	default:
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}
