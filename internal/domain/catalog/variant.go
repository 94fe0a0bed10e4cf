// Package catalog models product variants, the stock-carrying unit of the
// shoe catalog.
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Variant is a specific size/color combination of a product. StockQuantity is
// never allowed below zero; the checkout transaction decrements it with a
// conditional update.
type Variant struct {
	ID            int64
	ProductID     int64
	CategoryID    int64
	SKU           string
	Size          string
	Color         string
	Price         decimal.Decimal
	StockQuantity int
}

// VariantNotFoundError indicates a requested variant does not exist.
type VariantNotFoundError struct {
	VariantID int64
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %d not found", e.VariantID)
}

// InsufficientStockError indicates a variant has fewer units in stock than
// the order requested.
type InsufficientStockError struct {
	VariantID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %d", e.VariantID)
}
