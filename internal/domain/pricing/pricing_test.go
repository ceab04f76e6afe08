package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestShippingPrice(t *testing.T) {
	tests := []struct {
		name     string
		weight   int
		quantity int
		want     int
	}{
		{"zero weight", 0, 1, 5},
		{"light", 100, 2, 5},
		{"light boundary", 500, 1, 5},
		{"just over light", 501, 1, 10},
		{"medium", 400, 2, 10},
		{"medium boundary", 1000, 2, 10},
		{"just over medium", 2001, 1, 25},
		{"heavy", 1500, 3, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShippingPrice(tt.weight, tt.quantity))
		})
	}
}

func TestShippingPrice_NonDecreasing(t *testing.T) {
	prev := ShippingPrice(0, 1)
	for w := 1; w <= 5000; w++ {
		got := ShippingPrice(w, 1)
		assert.GreaterOrEqual(t, got, prev, "weight %d", w)
		prev = got
	}
}

func TestTaxRate(t *testing.T) {
	tests := []struct {
		province string
		want     string
	}{
		{"QC", "0.15"},
		{"ON", "0.13"},
		{"AB", "0.05"},
		{"BC", "0.12"},
		{"NS", "0.14"},
		{"on", "0.13"},
		{"MB", "0.15"},
		{"", "0.15"},
	}

	for _, tt := range tests {
		t.Run(tt.province, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(TaxRate(tt.province)),
				"got %s", TaxRate(tt.province))
		})
	}
}

func TestTotalWithTax(t *testing.T) {
	assert.Equal(t, "2300", TotalWithTax(decimal.NewFromInt(2000), "QC").String())
	assert.Equal(t, "113", TotalWithTax(decimal.NewFromInt(100), "ON").String())
	assert.Equal(t, "11.49", TotalWithTax(decimal.RequireFromString("9.99"), "QC").String())
}
