package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyEndpointGate(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h.SetReady(false)
	rec = httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFailingReadinessCheck(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("database", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})

	h.Start(context.Background(), time.Hour)
	defer h.Stop()

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec.Code == http.StatusServiceUnavailable
	}, time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	h.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestLivenessIndependentOfReadyGate(t *testing.T) {
	h := New()
	h.AddLivenessCheck("noop", time.Second, func(context.Context) error { return nil })

	h.Start(context.Background(), time.Hour)
	defer h.Stop()

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		h.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
		return rec.Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)
}

func TestGoroutineCountCheck(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.Error(t, GoroutineCountCheck(0)(ctx))
}

func TestGCMaxPauseCheck(t *testing.T) {
	// Any real pause is far below an hour.
	check := GCMaxPauseCheck(time.Hour)
	assert.NoError(t, check(context.Background()))
}
