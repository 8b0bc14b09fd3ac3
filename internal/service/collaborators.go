package service

import (
	"context"
	"errors"
	"time"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/validation"
)

// ErrCartLocked is returned by CartProvider.Lock when another checkout
// session already holds the cart.
var ErrCartLocked = errors.New("cart locked by another checkout session")

// CartProvider is the externally owned shopping cart.
type CartProvider interface {
	Items(ctx context.Context) ([]domain.LineItem, error)
	Lock(ctx context.Context, sessionID string, d time.Duration) error
	Unlock(ctx context.Context, sessionID string) error
	Clear(ctx context.Context) error
}

// AuthProvider answers who the current shopper is.
type AuthProvider interface {
	IsAuthenticated(ctx context.Context) bool
	UserID(ctx context.Context) string
	Email(ctx context.Context) string
}

// RateQuery selects shipping methods for a destination and order value.
type RateQuery struct {
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
	OrderTotal int64  `json:"order_total"`
}

// ShippingRates quotes delivery options.
type ShippingRates interface {
	FetchShippingMethods(ctx context.Context, q RateQuery) ([]domain.ShippingMethod, error)
}

// IntentRequest sizes a payment intent. Amount is in minor units.
type IntentRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	SessionID string `json:"session_id"`
}

// ConfirmRequest confirms a previously created intent.
type ConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	SessionID       string `json:"session_id"`
}

// PaymentGateway creates and confirms card payment intents.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*domain.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, req ConfirmRequest) (*domain.IntentConfirmation, error)
}

// SavedPaymentMethodStore keeps tokenized payment methods for signed-in
// shoppers.
type SavedPaymentMethodStore interface {
	FetchSavedPaymentMethods(ctx context.Context) ([]domain.SavedPaymentMethod, error)
	SavePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.SavedPaymentMethod, error)
}

// OrderRequest is everything the order service needs to record an order.
// IdempotencyKey lets the order service collapse retried submissions.
type OrderRequest struct {
	IdempotencyKey   string                   `json:"-"`
	SessionID        string                   `json:"session_id"`
	UserID           string                   `json:"user_id,omitempty"`
	CustomerEmail    string                   `json:"customer_email"`
	CustomerName     string                   `json:"customer_name"`
	Items            []domain.LineItem        `json:"items"`
	ShippingAddress  domain.Address           `json:"shipping_address"`
	BillingAddress   domain.Address           `json:"billing_address"`
	ShippingMethod   domain.ShippingMethod    `json:"shipping_method"`
	PaymentMethod    domain.PaymentMethodType `json:"payment_method"`
	PaymentResult    domain.PaymentResult     `json:"payment_result"`
	Subtotal         int64                    `json:"subtotal"`
	ShippingCost     int64                    `json:"shipping_cost"`
	Tax              int64                    `json:"tax"`
	Total            int64                    `json:"total"`
	Currency         string                   `json:"currency"`
	MarketingConsent bool                     `json:"marketing_consent"`
	Locale           string                   `json:"locale"`
}

// OrderConfirmation identifies a created order.
type OrderConfirmation struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
}

// OrderService records orders. It is expected to decrement inventory in
// the same transaction as the order insert.
type OrderService interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderConfirmation, error)
}

// ConfirmationEmail addresses an order confirmation.
type ConfirmationEmail struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number,omitempty"`
	SessionID   string `json:"session_id"`
	Email       string `json:"email"`
}

// Notifier sends transactional email.
type Notifier interface {
	SendConfirmationEmail(ctx context.Context, msg ConfirmationEmail) error
}

// ProfileService returns saved checkout data for signed-in shoppers.
type ProfileService interface {
	FetchCheckoutProfile(ctx context.Context) (*domain.CheckoutProfile, error)
}

// Validator checks shipping and payment input.
type Validator interface {
	ValidateShippingInformation(info *domain.ShippingInfo) validation.Result
	ValidatePaymentMethod(method *domain.PaymentMethod) validation.Result
}

// CheckoutEvent is the payload of every checkout lifecycle event.
type CheckoutEvent struct {
	SessionID     string                   `json:"session_id"`
	UserID        string                   `json:"user_id,omitempty"`
	Step          domain.Step              `json:"step"`
	OrderID       string                   `json:"order_id,omitempty"`
	OrderNumber   string                   `json:"order_number,omitempty"`
	PaymentMethod domain.PaymentMethodType `json:"payment_method,omitempty"`
	ItemCount     int                      `json:"item_count"`
	Total         int64                    `json:"total"`
	Currency      string                   `json:"currency,omitempty"`
	Reason        string                   `json:"reason,omitempty"`
}

// EventPublisher emits checkout lifecycle events.
type EventPublisher interface {
	PublishCheckoutInitiated(ctx context.Context, e CheckoutEvent) error
	PublishCheckoutCompleted(ctx context.Context, e CheckoutEvent) error
	PublishCheckoutCancelled(ctx context.Context, e CheckoutEvent) error
	PublishPaymentFailed(ctx context.Context, e CheckoutEvent) error
}

// Toaster shows a transient message to the shopper.
type Toaster interface {
	Success(ctx context.Context, title, message string) error
}
