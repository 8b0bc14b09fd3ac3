package domain

import "time"

// GeneralErrorField keys errors that are not tied to a field.
const GeneralErrorField = "general"

// CheckoutSession is the per-attempt checkout aggregate.
type CheckoutSession struct {
	CurrentStep   Step           `json:"current_step"`
	SessionID     string         `json:"session_id"`
	GuestInfo     *GuestInfo     `json:"guest_info,omitempty"`
	ContactEmail  string         `json:"contact_email,omitempty"`
	ShippingInfo  *ShippingInfo  `json:"shipping_info,omitempty"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
	OrderData     *OrderData     `json:"order_data,omitempty"`

	// PaymentIntent is set by payment preparation for card payments and
	// never persisted.
	PaymentIntent *PaymentIntent `json:"-"`

	Loading    bool `json:"loading"`
	Processing bool `json:"processing"`

	Errors           map[string]string   `json:"errors"`
	ValidationErrors map[string][]string `json:"validation_errors"`
	LastError        *CheckoutError      `json:"last_error,omitempty"`

	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`

	SavedAddresses           []Address            `json:"saved_addresses"`
	SavedPaymentMethods      []SavedPaymentMethod `json:"saved_payment_methods"`
	AvailableShippingMethods []ShippingMethod     `json:"available_shipping_methods"`
	AvailableCountries       []Country            `json:"available_countries"`

	Consents
	DataPrefetched bool         `json:"data_prefetched"`
	Preferences    *Preferences `json:"preferences,omitempty"`
}

// NewCheckoutSession returns a session with every field at its default.
func NewCheckoutSession() *CheckoutSession {
	return &CheckoutSession{
		CurrentStep:              StepShipping,
		Errors:                   map[string]string{},
		ValidationErrors:         map[string][]string{},
		SavedAddresses:           []Address{},
		SavedPaymentMethods:      []SavedPaymentMethod{},
		AvailableShippingMethods: []ShippingMethod{},
		AvailableCountries:       []Country{},
	}
}

// Clone returns a deep copy. The payment method is copied as is.
func (s *CheckoutSession) Clone() *CheckoutSession {
	c := *s
	if s.GuestInfo != nil {
		g := *s.GuestInfo
		c.GuestInfo = &g
	}
	if s.ShippingInfo != nil {
		si := *s.ShippingInfo
		c.ShippingInfo = &si
	}
	c.PaymentMethod = s.PaymentMethod.Clone()
	c.OrderData = s.OrderData.Clone()
	if s.PaymentIntent != nil {
		pi := *s.PaymentIntent
		c.PaymentIntent = &pi
	}
	if s.LastError != nil {
		le := *s.LastError
		c.LastError = &le
	}
	if s.Preferences != nil {
		p := *s.Preferences
		c.Preferences = &p
	}
	c.SessionExpiresAt = cloneTime(s.SessionExpiresAt)
	c.LastSyncAt = cloneTime(s.LastSyncAt)

	c.Errors = make(map[string]string, len(s.Errors))
	for k, v := range s.Errors {
		c.Errors[k] = v
	}
	c.ValidationErrors = make(map[string][]string, len(s.ValidationErrors))
	for k, v := range s.ValidationErrors {
		c.ValidationErrors[k] = append([]string(nil), v...)
	}
	c.SavedAddresses = append([]Address{}, s.SavedAddresses...)
	c.SavedPaymentMethods = append([]SavedPaymentMethod{}, s.SavedPaymentMethods...)
	c.AvailableShippingMethods = append([]ShippingMethod{}, s.AvailableShippingMethods...)
	c.AvailableCountries = append([]Country{}, s.AvailableCountries...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
