// Package checkout implements order placement: pricing, coupon redemption,
// inventory decrement, and order persistence as one atomic transaction.
package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. Transitions are monotonic: an order
// never moves backward and never leaves a terminal state.
type Status string

const (
	// StatusPendingPayment is the initial state for online payment methods.
	StatusPendingPayment Status = "pending_payment"
	// StatusPending is the initial state for cash-on-delivery orders.
	StatusPending Status = "pending"
	// StatusConfirmed means the order has been accepted for fulfilment.
	StatusConfirmed Status = "confirmed"
	// StatusShipped means the order has been handed to the shipping provider.
	StatusShipped Status = "shipped"
	// StatusDelivered is terminal.
	StatusDelivered Status = "delivered"
	// StatusCancelled is terminal and reachable from any non-terminal state.
	StatusCancelled Status = "cancelled"
)

// PaymentMethodCOD is the cash-on-delivery payment method code. Orders paid
// this way skip the pending_payment state.
const PaymentMethodCOD = "cod"

// PaymentStatus tracks whether the order has been paid.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

var statusRank = map[Status]int{
	StatusPendingPayment: 0,
	StatusPending:        1,
	StatusConfirmed:      2,
	StatusShipped:        3,
	StatusDelivered:      4,
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether moving from s to next respects the order
// state machine: strictly forward along
// pending_payment → pending → confirmed → shipped → delivered, with
// cancellation allowed from any non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// InitialStatus returns the state a freshly placed order starts in for the
// given payment method.
func InitialStatus(paymentMethod string) Status {
	if paymentMethod == PaymentMethodCOD {
		return StatusPending
	}
	return StatusPendingPayment
}

// ErrInvalidIdentity is returned when a request carries neither a user ID nor
// guest contact details, or both at once.
var ErrInvalidIdentity = errors.New("exactly one of user ID or guest contact is required")

// ErrPaymentMethodRequired is returned when the payment method code is empty.
var ErrPaymentMethodRequired = errors.New("payment method is required")

// Identity is the party placing the order: an account holder (UserID > 0) or
// a guest identified by contact email.
type Identity struct {
	UserID     int64
	GuestEmail string
	GuestName  string
	GuestPhone string
}

// IsGuest reports whether the identity has no persistent account.
func (i Identity) IsGuest() bool { return i.UserID == 0 }

// Key returns the stable identifier used for per-user coupon limits. Guests
// are keyed on their lowercased contact email, a deliberately weaker
// guarantee than an account ID.
func (i Identity) Key() string {
	if i.IsGuest() {
		return "guest:" + strings.ToLower(i.GuestEmail)
	}
	return fmt.Sprintf("user:%d", i.UserID)
}

// Validate checks that exactly one of the two identity forms is present.
func (i Identity) Validate() error {
	if i.UserID > 0 && i.GuestEmail == "" {
		return nil
	}
	if i.UserID == 0 && i.GuestEmail != "" {
		return nil
	}
	return ErrInvalidIdentity
}

// Address is the delivery destination, snapshotted onto the order.
type Address struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

// OrderItem is a persisted order line. UnitPrice is the catalog price at
// transaction time, never the client-submitted price.
type OrderItem struct {
	VariantID int64           `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is the persisted aggregate created by PlaceOrder. It is created
// atomically with its items and thereafter append-only except for Status and
// PaymentStatus. TotalAmount = Subtotal - DiscountAmount + ShippingFee.
type Order struct {
	ID                 string
	Identity           Identity
	ShippingAddress    Address
	ShippingProviderID int64 // 0 = no provider selected
	Items              []OrderItem
	Subtotal           decimal.Decimal
	DiscountAmount     decimal.Decimal
	ShippingFee        decimal.Decimal
	TotalAmount        decimal.Decimal
	CouponCode         string
	Status             Status
	PaymentMethod      string
	PaymentStatus      PaymentStatus
	CreatedAt          time.Time
}
