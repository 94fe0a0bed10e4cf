// Package coupon holds the coupon model and the eligibility rules applied
// before a code is redeemed against an order.
package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/solekart/checkout/internal/domain/pricing"
)

// ApplicabilityType scopes which order contents a coupon may discount.
type ApplicabilityType string

const (
	// ApplicableAll places no restriction on order contents.
	ApplicableAll ApplicabilityType = "all"
	// ApplicableCategory restricts the coupon to orders touching listed categories.
	ApplicableCategory ApplicabilityType = "category"
	// ApplicableProduct restricts the coupon to orders touching listed products.
	ApplicableProduct ApplicabilityType = "product"
)

// Rejection reasons, one per validation step. Each is user-presentable and
// stable across repeated validations of the same request.
var (
	ErrNotFound            = errors.New("coupon not found")
	ErrExpired             = errors.New("coupon expired")
	ErrExhausted           = errors.New("coupon usage limit reached")
	ErrNotAssigned         = errors.New("coupon is not assigned to this user")
	ErrMinPurchaseNotMet   = errors.New("order subtotal below coupon minimum")
	ErrPerUserLimitReached = errors.New("per-user coupon limit reached")
	ErrNotApplicable       = errors.New("coupon not applicable to order items")
)

// Coupon is a discount code with usage constraints. UsedCount is mutated only
// through the redemption ledger; everything else is administrative data.
type Coupon struct {
	ID             int64
	Code           string
	DiscountType   pricing.DiscountType
	DiscountValue  decimal.Decimal
	MinPurchase    decimal.Decimal
	ExpiresAt      time.Time
	MaxUses        int // 0 = unlimited
	UsedCount      int
	UsesPerUser    int // 0 = unlimited
	IsPublic       bool
	ApplicableType ApplicabilityType
	ApplicableIDs  []int64
}

// Redemption is the immutable record of a single coupon use. IdentityKey is
// "user:<id>" for account holders and "guest:<email>" for guest checkouts.
type Redemption struct {
	CouponID    int64
	IdentityKey string
	UserID      int64 // 0 for guests
	GuestEmail  string
	OrderID     string
	UsedAt      time.Time
}

// ItemRef identifies the product and category a line item belongs to, for
// applicability checks.
type ItemRef struct {
	ProductID  int64
	CategoryID int64
}
