package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCalculate(t *testing.T) {
	tests := []struct {
		name         string
		items        []LineItem
		disc         *Discount
		shippingFee  decimal.Decimal
		wantSubtotal decimal.Decimal
		wantDiscount decimal.Decimal
		wantTotal    decimal.Decimal
	}{
		{
			name: "no discount",
			items: []LineItem{
				{VariantID: 1, UnitPrice: d(100_000), Quantity: 2},
				{VariantID: 2, UnitPrice: d(50_000), Quantity: 1},
			},
			shippingFee:  d(30_000),
			wantSubtotal: d(250_000),
			wantDiscount: d(0),
			wantTotal:    d(280_000),
		},
		{
			name: "percent discount",
			items: []LineItem{
				{VariantID: 1, UnitPrice: d(500_000), Quantity: 2},
			},
			disc:         &Discount{Type: DiscountPercent, Value: d(20)},
			shippingFee:  d(30_000),
			wantSubtotal: d(1_000_000),
			wantDiscount: d(200_000),
			wantTotal:    d(830_000),
		},
		{
			name: "fixed discount",
			items: []LineItem{
				{VariantID: 1, UnitPrice: d(400_000), Quantity: 1},
			},
			disc:         &Discount{Type: DiscountFixed, Value: d(50_000)},
			shippingFee:  d(0),
			wantSubtotal: d(400_000),
			wantDiscount: d(50_000),
			wantTotal:    d(350_000),
		},
		{
			name: "fixed discount larger than subtotal is capped",
			items: []LineItem{
				{VariantID: 1, UnitPrice: d(80_000), Quantity: 1},
			},
			disc:         &Discount{Type: DiscountFixed, Value: d(200_000)},
			shippingFee:  d(25_000),
			wantSubtotal: d(80_000),
			wantDiscount: d(80_000),
			wantTotal:    d(25_000),
		},
		{
			name: "hundred percent discount still pays shipping",
			items: []LineItem{
				{VariantID: 1, UnitPrice: d(300_000), Quantity: 1},
			},
			disc:         &Discount{Type: DiscountPercent, Value: d(100)},
			shippingFee:  d(30_000),
			wantSubtotal: d(300_000),
			wantDiscount: d(300_000),
			wantTotal:    d(30_000),
		},
		{
			name: "percent discount rounds to whole units",
			items: []LineItem{
				{VariantID: 1, UnitPrice: d(99_999), Quantity: 1},
			},
			disc:         &Discount{Type: DiscountPercent, Value: d(15)},
			shippingFee:  d(0),
			wantSubtotal: d(99_999),
			wantDiscount: d(15_000), // 14999.85 rounds up
			wantTotal:    d(84_999),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := Calculate(tt.items, tt.disc, tt.shippingFee)
			require.NoError(t, err)

			assert.True(t, tt.wantSubtotal.Equal(quote.Subtotal),
				"subtotal: want %s got %s", tt.wantSubtotal, quote.Subtotal)
			assert.True(t, tt.wantDiscount.Equal(quote.DiscountAmount),
				"discount: want %s got %s", tt.wantDiscount, quote.DiscountAmount)
			assert.True(t, tt.wantTotal.Equal(quote.TotalAmount),
				"total: want %s got %s", tt.wantTotal, quote.TotalAmount)

			// totalAmount = subtotal - discountAmount + shippingFee
			rebuilt := quote.Subtotal.Sub(quote.DiscountAmount).Add(quote.ShippingFee)
			assert.True(t, rebuilt.Equal(quote.TotalAmount))
			assert.False(t, quote.TotalAmount.IsNegative())
			assert.False(t, quote.DiscountAmount.IsNegative())
		})
	}
}

func TestCalculate_EmptyItems(t *testing.T) {
	_, err := Calculate(nil, nil, d(0))
	require.ErrorIs(t, err, ErrEmptyOrder)
}

func TestCalculate_InvalidLineItem(t *testing.T) {
	tests := []struct {
		name string
		item LineItem
	}{
		{name: "zero quantity", item: LineItem{VariantID: 7, UnitPrice: d(100), Quantity: 0}},
		{name: "negative quantity", item: LineItem{VariantID: 7, UnitPrice: d(100), Quantity: -2}},
		{name: "negative price", item: LineItem{VariantID: 7, UnitPrice: d(-100), Quantity: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate([]LineItem{tt.item}, nil, d(0))

			var invalid *InvalidLineItemError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, int64(7), invalid.VariantID)
		})
	}
}

func TestCalculate_DiscountNeverExceedsSubtotal(t *testing.T) {
	items := []LineItem{{VariantID: 1, UnitPrice: d(10_000), Quantity: 1}}

	quote, err := Calculate(items, &Discount{Type: DiscountPercent, Value: d(100)}, d(0))
	require.NoError(t, err)
	assert.True(t, quote.DiscountAmount.Equal(quote.Subtotal))
	assert.True(t, quote.TotalAmount.IsZero())
}
