package domain

import (
	"strings"
	"time"
)

// Step is a stage of the checkout flow.
type Step string

// Checkout steps in the order a buyer moves through them.
const (
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepReview       Step = "review"
	StepConfirmation Step = "confirmation"
)

var stepOrder = []Step{StepShipping, StepPayment, StepReview, StepConfirmation}

// Steps returns the checkout steps in order.
func Steps() []Step {
	out := make([]Step, len(stepOrder))
	copy(out, stepOrder)
	return out
}

// Index returns the position of s in the flow, or -1 if s is unknown.
func (s Step) Index() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is one of the four checkout steps.
func (s Step) IsValid() bool {
	return s.Index() >= 0
}

// Next returns the step after s. ok is false at the last step.
func (s Step) Next() (Step, bool) {
	i := s.Index()
	if i < 0 || i == len(stepOrder)-1 {
		return "", false
	}
	return stepOrder[i+1], true
}

// Previous returns the step before s. ok is false at the first step.
func (s Step) Previous() (Step, bool) {
	i := s.Index()
	if i <= 0 {
		return "", false
	}
	return stepOrder[i-1], true
}

// DefaultCurrency is used when neither the cart nor the session carry one.
const DefaultCurrency = "EUR"

// SessionTTL is how long a checkout session stays resumable.
const SessionTTL = 30 * time.Minute

// Address is a postal address used for shipping and billing.
type Address struct {
	ID         string `json:"id,omitempty"`
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Company    string `json:"company,omitempty" validate:"max=200"`
	Street     string `json:"street" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Province   string `json:"province,omitempty" validate:"max=100"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=30"`
	IsDefault  bool   `json:"is_default,omitempty"`
}

// FullName joins the first and last name.
func (a Address) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// ShippingMethod is a delivery option offered by the rates service.
type ShippingMethod struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description,omitempty"`
	Price         int64  `json:"price" validate:"gte=0"`
	EstimatedDays int    `json:"estimated_days"`
}

// ShippingInfo is the address and method chosen on the shipping step.
type ShippingInfo struct {
	Address      Address        `json:"address"`
	Method       ShippingMethod `json:"method"`
	Instructions string         `json:"instructions,omitempty" validate:"max=500"`
}

// LineItem is one cart line as seen by checkout.
type LineItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"image_url,omitempty"`
}

// Total returns price times quantity.
func (li LineItem) Total() int64 {
	return li.Price * int64(li.Quantity)
}

// OrderData is the computed cart snapshot plus the fields filled in once
// the order service has accepted the order. Amounts are minor units.
type OrderData struct {
	Subtotal      int64      `json:"subtotal"`
	ShippingCost  int64      `json:"shipping_cost"`
	Tax           int64      `json:"tax"`
	Total         int64      `json:"total"`
	Currency      string     `json:"currency"`
	Items         []LineItem `json:"items"`
	OrderID       string     `json:"order_id,omitempty"`
	OrderNumber   string     `json:"order_number,omitempty"`
	CustomerEmail string     `json:"customer_email,omitempty"`
}

// NewOrderData builds totals from items. Tax is taxRateBP basis points of
// the subtotal.
func NewOrderData(items []LineItem, currency string, taxRateBP int64) *OrderData {
	od := &OrderData{
		Currency: currency,
		Items:    append([]LineItem(nil), items...),
	}
	for _, item := range items {
		od.Subtotal += item.Total()
	}
	od.Tax = od.Subtotal * taxRateBP / 10000
	od.Recalculate()
	return od
}

// ApplyShipping sets the shipping cost and recomputes the total.
func (o *OrderData) ApplyShipping(cost int64) {
	o.ShippingCost = cost
	o.Recalculate()
}

// Recalculate derives Total from its parts.
func (o *OrderData) Recalculate() {
	o.Total = o.Subtotal + o.ShippingCost + o.Tax
}

// ItemCount returns the number of units across all lines.
func (o *OrderData) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// Clone returns a deep copy.
func (o *OrderData) Clone() *OrderData {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	return &c
}

// GuestInfo is the identity captured from an unauthenticated buyer.
type GuestInfo struct {
	Email        string `json:"email" validate:"required,email"`
	EmailUpdates bool   `json:"email_updates"`
}

// Preferences are the buyer's stored checkout preferences.
type Preferences struct {
	PreferredShippingMethod string `json:"preferred_shipping_method,omitempty"`
	PreferredPaymentType    string `json:"preferred_payment_type,omitempty"`
	Locale                  string `json:"locale,omitempty"`
}

// Country is a destination the store ships to.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// CheckoutProfile is what the profile service returns for prefetching.
type CheckoutProfile struct {
	Addresses   []Address    `json:"addresses"`
	Preferences *Preferences `json:"preferences,omitempty"`
	Countries   []Country    `json:"countries,omitempty"`
}

// Consents are the checkboxes on the review step.
type Consents struct {
	TermsAccepted    bool `json:"terms_accepted"`
	PrivacyAccepted  bool `json:"privacy_accepted"`
	MarketingConsent bool `json:"marketing_consent"`
}
