// Package handler exposes the checkout service over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/solekart/checkout/internal/domain/catalog"
	"github.com/solekart/checkout/internal/domain/checkout"
	"github.com/solekart/checkout/internal/domain/coupon"
	"github.com/solekart/checkout/internal/domain/pricing"
	"github.com/solekart/checkout/internal/domain/shipping"
)

// Handler serves the order-placement endpoint.
type Handler struct {
	checkout *checkout.Service

	ordersPlaced   metric.Int64Counter
	ordersRejected metric.Int64Counter
}

// NewHandler constructs a Handler around the checkout service, registering
// its metrics on the given provider.
func NewHandler(svc *checkout.Service, mp metric.MeterProvider) (*Handler, error) {
	meter := mp.Meter("checkout-api")

	placed, err := meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Orders successfully placed"))
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	rejected, err := meter.Int64Counter("checkout.orders.rejected",
		metric.WithDescription("Checkout attempts rejected, by kind"))
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}

	return &Handler{
		checkout:       svc,
		ordersPlaced:   placed,
		ordersRejected: rejected,
	}, nil
}

// Register mounts the handler's routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/checkout", h.placeOrder)
}

type placeOrderRequest struct {
	UserID             int64           `json:"userId,omitempty"`
	GuestEmail         string          `json:"guestEmail,omitempty"`
	GuestName          string          `json:"guestName,omitempty"`
	GuestPhone         string          `json:"guestPhone,omitempty"`
	ShippingAddress    addressPayload  `json:"shippingAddress"`
	Items              []orderItemBody `json:"items"`
	ShippingProviderID int64           `json:"shippingProviderId,omitempty"`
	CouponCode         string          `json:"couponCode,omitempty"`
	PaymentMethodCode  string          `json:"paymentMethodCode"`
}

type addressPayload struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
}

type orderItemBody struct {
	VariantID int64 `json:"variantId"`
	Quantity  int   `json:"quantity"`
}

type placeOrderResponse struct {
	OrderID        string  `json:"orderId"`
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discountAmount"`
	ShippingFee    float64 `json:"shippingFee"`
	TotalAmount    float64 `json:"totalAmount"`
	Status         string  `json:"status"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed request body")
		return
	}

	items := make([]checkout.ItemRequest, len(body.Items))
	for i, item := range body.Items {
		items[i] = checkout.ItemRequest{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
	}

	order, err := h.checkout.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		Identity: checkout.Identity{
			UserID:     body.UserID,
			GuestEmail: body.GuestEmail,
			GuestName:  body.GuestName,
			GuestPhone: body.GuestPhone,
		},
		ShippingAddress: checkout.Address{
			FullName:   body.ShippingAddress.FullName,
			Phone:      body.ShippingAddress.Phone,
			Line1:      body.ShippingAddress.Line1,
			Line2:      body.ShippingAddress.Line2,
			City:       body.ShippingAddress.City,
			Province:   body.ShippingAddress.Province,
			PostalCode: body.ShippingAddress.PostalCode,
		},
		Items:              items,
		ShippingProviderID: body.ShippingProviderID,
		CouponCode:         body.CouponCode,
		PaymentMethod:      body.PaymentMethodCode,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	h.ordersPlaced.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment.method", order.PaymentMethod),
		attribute.Bool("coupon.applied", order.CouponCode != ""),
	))

	writeJSON(w, http.StatusCreated, placeOrderResponse{
		OrderID:        order.ID,
		Subtotal:       order.Subtotal.InexactFloat64(),
		DiscountAmount: order.DiscountAmount.InexactFloat64(),
		ShippingFee:    order.ShippingFee.InexactFloat64(),
		TotalAmount:    order.TotalAmount.InexactFloat64(),
		Status:         string(order.Status),
	})
}

// writeOrderError maps a domain error to its error kind and HTTP status,
// records the rejection, and writes the response. Every kind is
// user-presentable; only unexpected persistence failures fall through to a
// generic 500.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, kind := classifyOrderError(err)

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("checkout.reject_kind", kind))
	h.ordersRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind)))

	if status == http.StatusInternalServerError {
		zctx.From(ctx).Error("place order failed", zap.Error(err))
		writeError(w, status, kind, "internal server error")
		return
	}
	writeError(w, status, kind, err.Error())
}

func classifyOrderError(err error) (status int, kind string) {
	switch {
	case errors.Is(err, pricing.ErrEmptyOrder):
		return http.StatusBadRequest, "EmptyOrder"
	case errors.Is(err, checkout.ErrInvalidIdentity),
		errors.Is(err, checkout.ErrPaymentMethodRequired):
		return http.StatusBadRequest, "BadRequest"
	case errors.Is(err, coupon.ErrNotFound):
		return http.StatusUnprocessableEntity, "CouponNotFound"
	case errors.Is(err, coupon.ErrExpired):
		return http.StatusUnprocessableEntity, "CouponExpired"
	case errors.Is(err, coupon.ErrExhausted):
		return http.StatusConflict, "CouponExhausted"
	case errors.Is(err, coupon.ErrNotAssigned):
		return http.StatusUnprocessableEntity, "CouponNotAssigned"
	case errors.Is(err, coupon.ErrMinPurchaseNotMet):
		return http.StatusUnprocessableEntity, "MinPurchaseNotMet"
	case errors.Is(err, coupon.ErrPerUserLimitReached):
		return http.StatusUnprocessableEntity, "PerUserLimitReached"
	case errors.Is(err, coupon.ErrNotApplicable):
		return http.StatusUnprocessableEntity, "CouponNotApplicable"
	case errors.Is(err, checkout.ErrConflict):
		return http.StatusConflict, "TransactionConflict"
	}

	var (
		invalidItem *pricing.InvalidLineItemError
		noStock     *catalog.InsufficientStockError
		noVariant   *catalog.VariantNotFoundError
		noProvider  *shipping.ProviderNotFoundError
	)
	switch {
	case errors.As(err, &invalidItem):
		return http.StatusBadRequest, "InvalidLineItem"
	case errors.As(err, &noStock):
		return http.StatusConflict, "InsufficientStock"
	case errors.As(err, &noVariant):
		return http.StatusNotFound, "VariantNotFound"
	case errors.As(err, &noProvider):
		return http.StatusNotFound, "ShippingProviderNotFound"
	}
	return http.StatusInternalServerError, "Internal"
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{
		Code:    status,
		Kind:    kind,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
