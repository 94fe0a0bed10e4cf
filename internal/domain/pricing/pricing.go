// Package pricing computes order totals. All functions are pure; persistence
// and coupon eligibility live elsewhere.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	// DiscountPercent applies a percentage of the subtotal.
	DiscountPercent DiscountType = "percent"
	// DiscountFixed subtracts a fixed amount, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// ErrEmptyOrder is returned when an order contains no line items.
var ErrEmptyOrder = errors.New("order has no items")

// InvalidLineItemError indicates a line item with a non-positive quantity or
// a negative unit price.
type InvalidLineItemError struct {
	VariantID int64
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item for variant %d", e.VariantID)
}

// LineItem is a single order line with its unit price snapshotted from the
// catalog at calculation time.
type LineItem struct {
	VariantID int64
	UnitPrice decimal.Decimal
	Quantity  int
}

// Discount is a resolved, already-validated discount descriptor.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Quote is the complete pricing breakdown for an order. The invariant
// TotalAmount = Subtotal - DiscountAmount + ShippingFee holds, with every
// component non-negative.
type Quote struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingFee    decimal.Decimal
	TotalAmount    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Subtotal returns the sum of unit price times quantity across all items,
// rounded to whole currency units.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum.Round(0)
}

// Calculate produces the pricing quote for the given items, optional resolved
// discount, and flat shipping fee. Amounts are rounded to whole currency
// units and the discount never exceeds the subtotal.
func Calculate(items []LineItem, disc *Discount, shippingFee decimal.Decimal) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, ErrEmptyOrder
	}
	for _, item := range items {
		if item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return Quote{}, &InvalidLineItemError{VariantID: item.VariantID}
		}
	}

	subtotal := Subtotal(items)
	discount := discountAmount(subtotal, disc)

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Add(shippingFee)

	return Quote{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		ShippingFee:    shippingFee,
		TotalAmount:    total,
	}, nil
}

func discountAmount(subtotal decimal.Decimal, disc *Discount) decimal.Decimal {
	if disc == nil {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch disc.Type {
	case DiscountPercent:
		amount = subtotal.Mul(disc.Value).Div(hundred).Round(0)
	case DiscountFixed:
		amount = disc.Value.Round(0)
	default:
		return decimal.Zero
	}

	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}
