package repository

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solekart/checkout/internal/domain/checkout"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "serialization failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: true,
		},
		{
			name: "deadlock detected",
			err:  &pgconn.PgError{Code: "40P01"},
			want: true,
		},
		{
			name: "lock not available",
			err:  &pgconn.PgError{Code: "55P03"},
			want: true,
		},
		{
			name: "wrapped lock error",
			err:  errors.Wrap(&pgconn.PgError{Code: "55P03"}, "consume coupon use"),
			want: true,
		},
		{
			name: "unique violation",
			err:  &pgconn.PgError{Code: "23505"},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestWithRetryPermanentError(t *testing.T) {
	permanent := errors.New("constraint violated")

	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, checkout.ErrConflict)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRecoversAfterContention(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryExhaustionIsConflict(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})

	require.ErrorIs(t, err, checkout.ErrConflict)
	assert.Equal(t, maxTxRetries+1, calls)
}

func TestWithRetryHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	calls := 0
	err := withRetry(ctx, func() error {
		calls++
		return &pgconn.PgError{Code: "55P03"}
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}
