// Package pricing computes the derived money fields of an order: the shipping
// price from the shipped weight and the tax-inclusive total from the
// destination province.
//
// All amounts use the catalog's currency unit. Shipping prices are whole units
// of that currency, never cents.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Shipping tiers by total shipped weight in grams.
const (
	LightWeightLimit  = 500
	MediumWeightLimit = 2000

	LightShippingPrice  = 5
	MediumShippingPrice = 10
	HeavyShippingPrice  = 25
)

// DefaultTaxRate applies to any province missing from the tax table.
var DefaultTaxRate = decimal.RequireFromString("0.15")

var taxRates = map[string]decimal.Decimal{
	"QC": decimal.RequireFromString("0.15"),
	"ON": decimal.RequireFromString("0.13"),
	"AB": decimal.RequireFromString("0.05"),
	"BC": decimal.RequireFromString("0.12"),
	"NS": decimal.RequireFromString("0.14"),
}

// ShippingPrice returns the shipping price for quantity items of the given
// unit weight (grams).
func ShippingPrice(weight, quantity int) int {
	total := weight * quantity
	switch {
	case total <= LightWeightLimit:
		return LightShippingPrice
	case total <= MediumWeightLimit:
		return MediumShippingPrice
	default:
		return HeavyShippingPrice
	}
}

// TaxRate returns the sales tax rate for a province code. Codes are matched
// case-insensitively; unknown codes get DefaultTaxRate.
func TaxRate(province string) decimal.Decimal {
	if rate, ok := taxRates[strings.ToUpper(strings.TrimSpace(province))]; ok {
		return rate
	}
	return DefaultTaxRate
}

// TotalWithTax returns subtotal × (1 + TaxRate(province)) rounded to cents.
func TotalWithTax(subtotal decimal.Decimal, province string) decimal.Decimal {
	return subtotal.Mul(decimal.NewFromInt(1).Add(TaxRate(province))).Round(2)
}
