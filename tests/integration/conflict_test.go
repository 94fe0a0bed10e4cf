//go:build integration

package integration

import (
	"context"
	"net/url"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solekart/checkout/internal/domain/checkout"
	"github.com/solekart/checkout/internal/repository"
)

// impatientPool connects with a short lock_timeout so a held row lock surfaces
// as retryable contention instead of stalling the test.
func impatientPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	p, err := repository.NewPool(context.Background(),
		dsn+"&options="+url.QueryEscape("-c lock_timeout=200ms"))
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestCheckout_ConflictWhenCouponRowStaysLocked(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	variantID := seedVariant(t, 500_000, 10)
	providerID := seedProvider(t, 30_000)
	couponID := seedCoupon(t, couponSeed{code: "LOCKED10", percent: 10, maxUses: 100, isPublic: true})

	svc := checkout.NewService(repository.NewStore(impatientPool(t)))

	// A competing transaction holds the coupon row for the duration of both
	// the first attempt and the retry, so each one times out on the row lock.
	blocker, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = blocker.Exec(ctx, `SELECT id FROM coupons WHERE id = $1 FOR UPDATE`, couponID)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, placeRequest(42, variantID, providerID, 1, "LOCKED10"))
	require.ErrorIs(t, err, checkout.ErrConflict)

	require.NoError(t, blocker.Rollback(ctx))

	// The losing attempts left no trace.
	assert.Equal(t, 0, orderCount(t))
	assert.Equal(t, 0, usedCountOf(t, couponID))
	assert.Equal(t, 10, stockOf(t, variantID))

	// Resubmitting after the lock is gone succeeds.
	order, err := svc.PlaceOrder(ctx, placeRequest(42, variantID, providerID, 1, "LOCKED10"))
	require.NoError(t, err)
	assert.True(t, order.DiscountAmount.Equal(money(50_000)))
	assert.Equal(t, 1, usedCountOf(t, couponID))
}
