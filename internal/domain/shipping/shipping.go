// Package shipping models delivery providers and their flat fees.
package shipping

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Provider is a delivery option with a flat fee added to the order total.
type Provider struct {
	ID   int64
	Name string
	Fee  decimal.Decimal
}

// ProviderNotFoundError indicates the requested shipping provider does not exist.
type ProviderNotFoundError struct {
	ProviderID int64
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("shipping provider %d not found", e.ProviderID)
}
