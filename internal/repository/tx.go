package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/solekart/checkout/internal/domain/catalog"
	"github.com/solekart/checkout/internal/domain/checkout"
	"github.com/solekart/checkout/internal/domain/coupon"
	"github.com/solekart/checkout/internal/domain/pricing"
	"github.com/solekart/checkout/internal/domain/shipping"
)

const (
	variantsByIDSQL = `SELECT v.id, v.product_id, p.category_id, v.sku, v.size, v.color, v.price, v.stock_quantity
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1)`

	providerByIDSQL = `SELECT id, name, fee FROM shipping_providers WHERE id = $1`

	couponByCodeSQL = `SELECT id, code, discount_type, discount_value, min_purchase, expires_at,
		max_uses, used_count, uses_per_user, is_public, applicable_type, applicable_ids
		FROM coupons WHERE code = $1`

	hasGrantSQL = `SELECT EXISTS(
		SELECT 1 FROM coupon_grants WHERE coupon_id = $1 AND user_id = $2 AND NOT redeemed)`

	redemptionCountSQL = `SELECT COUNT(*) FROM coupon_redemptions
		WHERE coupon_id = $1 AND identity_key = $2`

	// The predicate makes the global cap race-free: the UPDATE locks the
	// coupon row, and zero affected rows means the cap was already reached.
	consumeCouponUseSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (max_uses = 0 OR used_count < max_uses)`

	consumeGrantSQL = `UPDATE coupon_grants SET redeemed = TRUE, redeemed_at = NOW()
		WHERE coupon_id = $1 AND user_id = $2 AND NOT redeemed`

	// Same affected-rows pattern as the coupon ledger: zero rows means the
	// remaining stock is below the requested quantity.
	decrementStockSQL = `UPDATE product_variants SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2`

	insertOrderSQL = `INSERT INTO orders (
			id, user_id, guest_email, guest_name, guest_phone,
			shipping_address, shipping_provider_id,
			subtotal, discount_amount, shipping_fee, total_amount,
			coupon_code, status, payment_method, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, variant_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)`

	insertRedemptionSQL = `INSERT INTO coupon_redemptions
			(coupon_id, identity_key, user_id, guest_email, order_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING used_at`
)

var _ checkout.Tx = (*queries)(nil)

// queries implements checkout.Tx over a single pgx transaction.
type queries struct {
	tx pgx.Tx
}

// VariantsByID loads current price, stock, and category data for the given
// variant IDs in one query, keyed by variant ID.
func (q *queries) VariantsByID(ctx context.Context, ids []int64) (map[int64]catalog.Variant, error) {
	rows, err := q.tx.Query(ctx, variantsByIDSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query variants")
	}

	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, errors.Wrap(err, "scan variants")
	}

	byID := make(map[int64]catalog.Variant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}
	return byID, nil
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(
		&v.ID, &v.ProductID, &v.CategoryID, &v.SKU,
		&v.Size, &v.Color, &v.Price, &v.StockQuantity,
	)
	return v, err
}

// ProviderByID looks up a shipping provider and its flat fee.
func (q *queries) ProviderByID(ctx context.Context, id int64) (*shipping.Provider, error) {
	var p shipping.Provider
	err := q.tx.QueryRow(ctx, providerByIDSQL, id).Scan(&p.ID, &p.Name, &p.Fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &shipping.ProviderNotFoundError{ProviderID: id}
		}
		return nil, errors.Wrapf(err, "finding shipping provider %d", id)
	}
	return &p, nil
}

// CouponByCode looks up a coupon by its code (case-sensitive exact match).
// Returns coupon.ErrNotFound when no such coupon exists.
func (q *queries) CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		appType      string
	)
	err := q.tx.QueryRow(ctx, couponByCodeSQL, code).Scan(
		&c.ID, &c.Code, &discountType, &c.DiscountValue, &c.MinPurchase, &c.ExpiresAt,
		&c.MaxUses, &c.UsedCount, &c.UsesPerUser, &c.IsPublic, &appType, &c.ApplicableIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "finding coupon by code %q", code)
	}
	c.DiscountType = pricing.DiscountType(discountType)
	c.ApplicableType = coupon.ApplicabilityType(appType)
	return &c, nil
}

// HasGrant reports whether the user holds an unredeemed personal grant for
// the coupon.
func (q *queries) HasGrant(ctx context.Context, couponID, userID int64) (bool, error) {
	var exists bool
	if err := q.tx.QueryRow(ctx, hasGrantSQL, couponID, userID).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "checking grant for coupon %d", couponID)
	}
	return exists, nil
}

// RedemptionCount returns how many times the identity has redeemed the coupon.
func (q *queries) RedemptionCount(ctx context.Context, couponID int64, identityKey string) (int, error) {
	var count int
	if err := q.tx.QueryRow(ctx, redemptionCountSQL, couponID, identityKey).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "counting redemptions for coupon %d", couponID)
	}
	return count, nil
}

// ConsumeCouponUse increments used_count, failing with coupon.ErrExhausted
// when the global cap is already reached. The update blocks behind any
// concurrent redemption of the same coupon and re-evaluates the predicate
// once that transaction commits, so the cap holds under concurrency.
func (q *queries) ConsumeCouponUse(ctx context.Context, couponID int64) error {
	tag, err := q.tx.Exec(ctx, consumeCouponUseSQL, couponID)
	if err != nil {
		return errors.Wrapf(err, "incrementing uses for coupon %d", couponID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrExhausted
	}
	return nil
}

// ConsumeGrant marks the user's personal grant redeemed, failing with
// coupon.ErrNotAssigned when no unredeemed grant exists.
func (q *queries) ConsumeGrant(ctx context.Context, couponID, userID int64) error {
	tag, err := q.tx.Exec(ctx, consumeGrantSQL, couponID, userID)
	if err != nil {
		return errors.Wrapf(err, "redeeming grant for coupon %d", couponID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotAssigned
	}
	return nil
}

// DecrementStock atomically checks and decrements a variant's stock, failing
// with catalog.InsufficientStockError when fewer units remain than requested.
func (q *queries) DecrementStock(ctx context.Context, variantID int64, quantity int) error {
	tag, err := q.tx.Exec(ctx, decrementStockSQL, variantID, quantity)
	if err != nil {
		return errors.Wrapf(err, "decrementing stock for variant %d", variantID)
	}
	if tag.RowsAffected() == 0 {
		return &catalog.InsufficientStockError{VariantID: variantID}
	}
	return nil
}

// InsertOrder persists the order header and its items. The shipping address
// is serialized to JSON for storage in the JSONB column.
func (q *queries) InsertOrder(ctx context.Context, o *checkout.Order) error {
	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshaling shipping address")
	}

	var userID *int64
	if !o.Identity.IsGuest() {
		userID = &o.Identity.UserID
	}
	var providerID *int64
	if o.ShippingProviderID > 0 {
		providerID = &o.ShippingProviderID
	}

	err = q.tx.QueryRow(ctx, insertOrderSQL,
		o.ID, userID, o.Identity.GuestEmail, o.Identity.GuestName, o.Identity.GuestPhone,
		addressJSON, providerID,
		o.Subtotal, o.DiscountAmount, o.ShippingFee, o.TotalAmount,
		o.CouponCode, string(o.Status), o.PaymentMethod, string(o.PaymentStatus),
	).Scan(&o.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "creating order %q", o.ID)
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(insertOrderItemSQL, o.ID, item.VariantID, item.Quantity, item.UnitPrice)
	}
	if err := q.tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "creating items for order %q", o.ID)
	}
	return nil
}

// InsertRedemption records a coupon use. The row is never mutated afterwards.
func (q *queries) InsertRedemption(ctx context.Context, r *coupon.Redemption) error {
	var userID *int64
	if r.UserID > 0 {
		userID = &r.UserID
	}
	err := q.tx.QueryRow(ctx, insertRedemptionSQL,
		r.CouponID, r.IdentityKey, userID, r.GuestEmail, r.OrderID,
	).Scan(&r.UsedAt)
	if err != nil {
		return errors.Wrapf(err, "recording redemption of coupon %d", r.CouponID)
	}
	return nil
}
