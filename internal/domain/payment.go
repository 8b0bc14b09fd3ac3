package domain

// PaymentMethodType identifies which payment detail is carried.
type PaymentMethodType string

// Supported payment method kinds.
const (
	PaymentCash         PaymentMethodType = "cash"
	PaymentCreditCard   PaymentMethodType = "credit_card"
	PaymentPayPal       PaymentMethodType = "paypal"
	PaymentBankTransfer PaymentMethodType = "bank_transfer"
)

// PaymentMethodTypes returns every supported kind.
func PaymentMethodTypes() []PaymentMethodType {
	return []PaymentMethodType{PaymentCash, PaymentCreditCard, PaymentPayPal, PaymentBankTransfer}
}

// IsValid reports whether t is a supported kind.
func (t PaymentMethodType) IsValid() bool {
	switch t {
	case PaymentCash, PaymentCreditCard, PaymentPayPal, PaymentBankTransfer:
		return true
	}
	return false
}

// Payment result statuses.
const (
	PaymentStatusSucceeded       = "succeeded"
	PaymentStatusCompleted       = "completed"
	PaymentStatusPending         = "pending"
	PaymentStatusPendingDelivery = "pending_delivery"
	PaymentStatusRequiresAction  = "requires_action"
	PaymentStatusFailed          = "failed"
)

// CashDetails confirms the buyer will pay on delivery.
type CashDetails struct {
	Confirmed bool `json:"confirmed" validate:"eq=true"`
}

// CreditCardDetails holds raw card data. It must never be persisted.
type CreditCardDetails struct {
	Number string `json:"number" validate:"required,credit_card"`
	Expiry string `json:"expiry" validate:"required,card_expiry"`
	CVV    string `json:"cvv" validate:"required,numeric,min=3,max=4"`
	Holder string `json:"holder" validate:"required,max=100"`
}

// Last4 returns the last four digits of the card number.
func (c CreditCardDetails) Last4() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// PayPalDetails identifies the PayPal account.
type PayPalDetails struct {
	Email string `json:"email" validate:"required,email"`
}

// BankTransferDetails carries the transfer reference.
type BankTransferDetails struct {
	Reference string `json:"reference" validate:"required,max=100"`
}

// PaymentMethod is a tagged union over the payment kinds. Exactly the
// detail matching Type is expected to be set.
type PaymentMethod struct {
	Type          PaymentMethodType    `json:"type"`
	SaveForFuture bool                 `json:"save_for_future"`
	Cash          *CashDetails         `json:"cash,omitempty"`
	CreditCard    *CreditCardDetails   `json:"credit_card,omitempty"`
	PayPal        *PayPalDetails       `json:"paypal,omitempty"`
	BankTransfer  *BankTransferDetails `json:"bank_transfer,omitempty"`
}

// Sanitized returns the projection that may be stored: the type, the
// save flag and, for cash, the confirmation flag.
func (m PaymentMethod) Sanitized() PaymentMethod {
	out := PaymentMethod{
		Type:          m.Type,
		SaveForFuture: m.SaveForFuture,
	}
	if m.Type == PaymentCash && m.Cash != nil {
		out.Cash = &CashDetails{Confirmed: m.Cash.Confirmed}
	}
	return out
}

// Clone returns a deep copy.
func (m *PaymentMethod) Clone() *PaymentMethod {
	if m == nil {
		return nil
	}
	c := *m
	if m.Cash != nil {
		cash := *m.Cash
		c.Cash = &cash
	}
	if m.CreditCard != nil {
		card := *m.CreditCard
		c.CreditCard = &card
	}
	if m.PayPal != nil {
		pp := *m.PayPal
		c.PayPal = &pp
	}
	if m.BankTransfer != nil {
		bt := *m.BankTransfer
		c.BankTransfer = &bt
	}
	return &c
}

// PaymentResult is the uniform outcome of executing a payment.
type PaymentResult struct {
	Success        bool              `json:"success"`
	TransactionID  string            `json:"transaction_id,omitempty"`
	PaymentMethod  PaymentMethodType `json:"payment_method"`
	Status         string            `json:"status,omitempty"`
	RequiresAction bool              `json:"requires_action,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// PaymentIntent is a gateway handle for an authorized but unconfirmed charge.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// IntentConfirmation is the gateway's answer to confirming an intent.
type IntentConfirmation struct {
	Status         string `json:"status"`
	TransactionID  string `json:"transaction_id,omitempty"`
	RequiresAction bool   `json:"requires_action,omitempty"`
	Error          string `json:"error,omitempty"`
}

// SavedPaymentMethod is a tokenized method kept by the payment store.
type SavedPaymentMethod struct {
	ID          string            `json:"id"`
	Type        PaymentMethodType `json:"type"`
	Brand       string            `json:"brand,omitempty"`
	Last4       string            `json:"last4,omitempty"`
	ExpiryMonth int               `json:"expiry_month,omitempty"`
	ExpiryYear  int               `json:"expiry_year,omitempty"`
	PayPalEmail string            `json:"paypal_email,omitempty"`
	IsDefault   bool              `json:"is_default"`
}
