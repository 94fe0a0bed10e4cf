package coupon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solekart/checkout/internal/domain/pricing"
)

// Eligibility carries everything about the candidate order the validation
// sequence needs: the computed subtotal, the products/categories the order
// touches, the identity's prior redemption count for this coupon, and whether
// the identity holds an unredeemed personal grant.
type Eligibility struct {
	Subtotal  decimal.Decimal
	Items     []ItemRef
	PriorUses int
	HasGrant  bool
}

// Validator checks a coupon against an order. It is stateless apart from the
// injectable clock.
type Validator struct {
	now func() time.Time
}

// NewValidator returns a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate runs the eligibility sequence and short-circuits at the first
// failing rule. The steps run in a fixed order so the same invalid request
// always yields the same rejection. On success it returns the resolved
// discount descriptor for the pricing calculator.
//
// Validation has no side effects. The usage-cap rules (global and per-user)
// are re-checked inside the checkout transaction before the redemption is
// recorded; the answers given here are advisory under concurrency.
func (v *Validator) Validate(c *Coupon, e Eligibility) (*pricing.Discount, error) {
	if v.now().After(c.ExpiresAt) {
		return nil, ErrExpired
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return nil, ErrExhausted
	}
	if !c.IsPublic && !e.HasGrant {
		return nil, ErrNotAssigned
	}
	if e.Subtotal.LessThan(c.MinPurchase) {
		return nil, ErrMinPurchaseNotMet
	}
	if c.UsesPerUser > 0 && e.PriorUses >= c.UsesPerUser {
		return nil, ErrPerUserLimitReached
	}
	if !c.AppliesTo(e.Items) {
		return nil, ErrNotApplicable
	}

	return &pricing.Discount{
		Type:  c.DiscountType,
		Value: c.DiscountValue,
	}, nil
}

// AppliesTo reports whether the coupon's applicability restriction is
// satisfied by the given order contents. A single matching item is enough;
// the discount still applies to the full subtotal.
func (c *Coupon) AppliesTo(items []ItemRef) bool {
	switch c.ApplicableType {
	case ApplicableCategory:
		for _, item := range items {
			if containsID(c.ApplicableIDs, item.CategoryID) {
				return true
			}
		}
		return false
	case ApplicableProduct:
		for _, item := range items {
			if containsID(c.ApplicableIDs, item.ProductID) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
