package handler

import (
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/json"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/order"
)

// encodeOrder writes the {"order": {...}} projection. Unset nested objects
// are rendered as {} and an unset taxed total or email as null.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("order")
	e.ObjStart()

	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("total_price")
	encodeMoney(e, o.TotalPrice)
	e.FieldStart("total_price_tax")
	if o.TotalPriceTax.Valid {
		encodeMoney(e, o.TotalPriceTax.Decimal)
	} else {
		e.Null()
	}
	e.FieldStart("email")
	if o.Email != "" {
		e.Str(o.Email)
	} else {
		e.Null()
	}

	e.FieldStart("credit_card")
	e.ObjStart()
	if c := o.CreditCard; c != nil {
		e.FieldStart("name")
		e.Str(c.Name)
		e.FieldStart("first_digits")
		e.Str(c.FirstDigits)
		e.FieldStart("last_digits")
		e.Str(c.LastDigits)
		e.FieldStart("expiration_year")
		e.Int(c.ExpirationYear)
		e.FieldStart("expiration_month")
		e.Int(c.ExpirationMonth)
	}
	e.ObjEnd()

	e.FieldStart("shipping_information")
	e.ObjStart()
	if s := o.Shipping; s != nil {
		e.FieldStart("country")
		e.Str(s.Country)
		e.FieldStart("address")
		e.Str(s.Address)
		e.FieldStart("postal_code")
		e.Str(s.PostalCode)
		e.FieldStart("city")
		e.Str(s.City)
		e.FieldStart("province")
		e.Str(s.Province)
	}
	e.ObjEnd()

	e.FieldStart("paid")
	e.Bool(o.Paid)

	e.FieldStart("transaction")
	e.ObjStart()
	if t := o.Transaction; t != nil {
		e.FieldStart("id")
		e.Str(t.ID)
		e.FieldStart("success")
		e.Bool(t.Success)
		e.FieldStart("amount_charged")
		encodeMoney(e, t.AmountCharged)
	}
	e.ObjEnd()

	e.FieldStart("product")
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ProductID)
	e.FieldStart("quantity")
	e.Int(o.Quantity)
	e.ObjEnd()

	e.FieldStart("shipping_price")
	e.Int(o.ShippingPrice)
	e.FieldStart("created_at")
	json.EncodeDateTime(e, o.CreatedAt)

	e.ObjEnd()
	e.ObjEnd()
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}
