package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solekart/checkout/internal/domain/catalog"
	"github.com/solekart/checkout/internal/domain/coupon"
	"github.com/solekart/checkout/internal/domain/pricing"
	"github.com/solekart/checkout/internal/domain/shipping"
)

// ErrConflict is returned when the checkout transaction could not commit
// after retrying lock or serialization contention. Callers may retry the
// whole request; no partial effects were applied.
var ErrConflict = errors.New("checkout transaction conflict")

// Tx is the set of operations available inside one checkout transaction.
// Every read sees the transaction's own snapshot; the conditional mutations
// (ConsumeCouponUse, ConsumeGrant, DecrementStock) fail with their domain
// error instead of ever violating a cap.
type Tx interface {
	VariantsByID(ctx context.Context, ids []int64) (map[int64]catalog.Variant, error)
	ProviderByID(ctx context.Context, id int64) (*shipping.Provider, error)

	CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	HasGrant(ctx context.Context, couponID, userID int64) (bool, error)
	RedemptionCount(ctx context.Context, couponID int64, identityKey string) (int, error)
	ConsumeCouponUse(ctx context.Context, couponID int64) error
	ConsumeGrant(ctx context.Context, couponID, userID int64) error

	DecrementStock(ctx context.Context, variantID int64, quantity int) error
	InsertOrder(ctx context.Context, o *Order) error
	InsertRedemption(ctx context.Context, r *coupon.Redemption) error
}

// Store runs a function within a single database transaction. The function is
// retried on transient commit conflicts; domain errors abort immediately and
// roll everything back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// ItemRequest is one requested order line. Prices are looked up from the
// catalog inside the transaction, never taken from the client.
type ItemRequest struct {
	VariantID int64
	Quantity  int
}

// PlaceOrderRequest is the input contract of the checkout core.
type PlaceOrderRequest struct {
	Identity           Identity
	ShippingAddress    Address
	Items              []ItemRequest
	ShippingProviderID int64 // 0 = none selected, fee is zero
	CouponCode         string
	PaymentMethod      string
}

// Service orchestrates order placement. All stock, coupon, and order writes
// for one request happen in a single transaction supplied by the Store.
type Service struct {
	store     Store
	validator *coupon.Validator
}

// NewService creates a checkout Service backed by the given Store.
func NewService(store Store) *Service {
	return &Service{
		store:     store,
		validator: coupon.NewValidator(),
	}
}

// PlaceOrder validates the request, then atomically: re-reads current prices
// and coupon state, computes the quote, decrements stock, consumes the coupon
// use, and persists the order with its items and redemption record. Any
// failing step rolls back every other step.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if err := req.Identity.Validate(); err != nil {
		return nil, err
	}
	if req.PaymentMethod == "" {
		return nil, ErrPaymentMethodRequired
	}
	if len(req.Items) == 0 {
		return nil, pricing.ErrEmptyOrder
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &pricing.InvalidLineItemError{VariantID: item.VariantID}
		}
	}

	var placed *Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := s.placeOrderTx(ctx, tx, req)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (s *Service) placeOrderTx(ctx context.Context, tx Tx, req PlaceOrderRequest) (*Order, error) {
	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.VariantID
	}

	variants, err := tx.VariantsByID(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load variants")
	}

	lineItems := make([]pricing.LineItem, len(req.Items))
	itemRefs := make([]coupon.ItemRef, len(req.Items))
	for i, item := range req.Items {
		v, ok := variants[item.VariantID]
		if !ok {
			return nil, &catalog.VariantNotFoundError{VariantID: item.VariantID}
		}
		lineItems[i] = pricing.LineItem{
			VariantID: v.ID,
			UnitPrice: v.Price,
			Quantity:  item.Quantity,
		}
		itemRefs[i] = coupon.ItemRef{
			ProductID:  v.ProductID,
			CategoryID: v.CategoryID,
		}
	}

	shippingFee := decimal.Zero
	if req.ShippingProviderID > 0 {
		provider, err := tx.ProviderByID(ctx, req.ShippingProviderID)
		if err != nil {
			return nil, err
		}
		shippingFee = provider.Fee
	}

	var (
		disc *pricing.Discount
		c    *coupon.Coupon
	)
	if req.CouponCode != "" {
		c, disc, err = s.validateCoupon(ctx, tx, req, lineItems, itemRefs)
		if err != nil {
			return nil, err
		}
	}

	quote, err := pricing.Calculate(lineItems, disc, shippingFee)
	if err != nil {
		return nil, err
	}

	for _, item := range req.Items {
		if err := tx.DecrementStock(ctx, item.VariantID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if c != nil {
		if err := s.redeemCoupon(ctx, tx, c, req.Identity); err != nil {
			return nil, err
		}
	}

	orderItems := make([]OrderItem, len(lineItems))
	for i, li := range lineItems {
		orderItems[i] = OrderItem{
			VariantID: li.VariantID,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
		}
	}

	o := &Order{
		ID:                 uuid.New().String(),
		Identity:           req.Identity,
		ShippingAddress:    req.ShippingAddress,
		ShippingProviderID: req.ShippingProviderID,
		Items:              orderItems,
		Subtotal:           quote.Subtotal,
		DiscountAmount:     quote.DiscountAmount,
		ShippingFee:        quote.ShippingFee,
		TotalAmount:        quote.TotalAmount,
		CouponCode:         req.CouponCode,
		Status:             InitialStatus(req.PaymentMethod),
		PaymentMethod:      req.PaymentMethod,
		PaymentStatus:      PaymentUnpaid,
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "insert order")
	}

	if c != nil {
		r := &coupon.Redemption{
			CouponID:    c.ID,
			IdentityKey: req.Identity.Key(),
			UserID:      req.Identity.UserID,
			GuestEmail:  req.Identity.GuestEmail,
			OrderID:     o.ID,
		}
		if err := tx.InsertRedemption(ctx, r); err != nil {
			return nil, errors.Wrap(err, "insert redemption")
		}
	}

	return o, nil
}

// validateCoupon runs the eligibility sequence against the coupon state read
// inside this transaction.
func (s *Service) validateCoupon(
	ctx context.Context,
	tx Tx,
	req PlaceOrderRequest,
	lineItems []pricing.LineItem,
	itemRefs []coupon.ItemRef,
) (*coupon.Coupon, *pricing.Discount, error) {
	c, err := tx.CouponByCode(ctx, req.CouponCode)
	if err != nil {
		return nil, nil, err
	}

	hasGrant := false
	if !c.IsPublic && !req.Identity.IsGuest() {
		hasGrant, err = tx.HasGrant(ctx, c.ID, req.Identity.UserID)
		if err != nil {
			return nil, nil, errors.Wrap(err, "check coupon grant")
		}
	}

	priorUses, err := tx.RedemptionCount(ctx, c.ID, req.Identity.Key())
	if err != nil {
		return nil, nil, errors.Wrap(err, "count prior redemptions")
	}

	disc, err := s.validator.Validate(c, coupon.Eligibility{
		Subtotal:  pricing.Subtotal(lineItems),
		Items:     itemRefs,
		PriorUses: priorUses,
		HasGrant:  hasGrant,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, disc, nil
}

// redeemCoupon is the ledger step: it re-checks the usage caps against
// current persisted state and consumes one use. The conditional used_count
// update locks the coupon row, which serializes concurrent redemptions of the
// same coupon; the per-user count re-read afterwards therefore observes every
// committed competitor.
func (s *Service) redeemCoupon(ctx context.Context, tx Tx, c *coupon.Coupon, identity Identity) error {
	if err := tx.ConsumeCouponUse(ctx, c.ID); err != nil {
		return err
	}
	if !c.IsPublic {
		if identity.IsGuest() {
			return coupon.ErrNotAssigned
		}
		if err := tx.ConsumeGrant(ctx, c.ID, identity.UserID); err != nil {
			return err
		}
	}
	if c.UsesPerUser > 0 {
		used, err := tx.RedemptionCount(ctx, c.ID, identity.Key())
		if err != nil {
			return errors.Wrap(err, "recheck per-user limit")
		}
		if used >= c.UsesPerUser {
			return coupon.ErrPerUserLimitReached
		}
	}
	return nil
}
