// Package validation checks shipping and payment input before the checkout
// flow accepts it.
package validation

import (
	"errors"
	"strings"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/validator"
)

// FieldError is a single validation message. Field is empty for messages
// that apply to the whole input.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of a validation run.
type Result struct {
	IsValid bool         `json:"is_valid"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Messages returns every message in order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.Field != "" {
			out = append(out, e.Field+" "+e.Message)
			continue
		}
		out = append(out, e.Message)
	}
	return out
}

// Error joins the messages into one string.
func (r Result) Error() string {
	return strings.Join(r.Messages(), "; ")
}

func valid() Result {
	return Result{IsValid: true}
}

func invalid(errs ...FieldError) Result {
	return Result{IsValid: false, Errors: errs}
}

// Validator implements the checkout validation utilities.
type Validator struct{}

// New returns a Validator.
func New() *Validator {
	return &Validator{}
}

// ValidateShippingInformation requires a complete address and a method.
func (Validator) ValidateShippingInformation(info *domain.ShippingInfo) Result {
	if info == nil {
		return invalid(FieldError{Message: "shipping information is required"})
	}
	return fromStruct(info, "")
}

// ValidatePaymentMethod checks the details matching the method's type.
func (Validator) ValidatePaymentMethod(method *domain.PaymentMethod) Result {
	if method == nil {
		return invalid(FieldError{Message: "payment method is required"})
	}

	switch method.Type {
	case domain.PaymentCash:
		if method.Cash == nil {
			return invalid(FieldError{Field: "cash", Message: "cash payment must be confirmed"})
		}
		return fromStruct(method.Cash, "cash")
	case domain.PaymentCreditCard:
		if method.CreditCard == nil {
			return invalid(FieldError{Field: "credit_card", Message: "card details are required"})
		}
		card := *method.CreditCard
		card.Number = normalizeCardNumber(card.Number)
		return fromStruct(&card, "credit_card")
	case domain.PaymentPayPal:
		if method.PayPal == nil {
			return invalid(FieldError{Field: "paypal", Message: "paypal account is required"})
		}
		return fromStruct(method.PayPal, "paypal")
	case domain.PaymentBankTransfer:
		if method.BankTransfer == nil {
			return invalid(FieldError{Field: "bank_transfer", Message: "transfer reference is required"})
		}
		return fromStruct(method.BankTransfer, "bank_transfer")
	case "":
		return invalid(FieldError{Field: "type", Message: "is required"})
	default:
		return invalid(FieldError{Field: "type", Message: "must be one of: cash credit_card paypal bank_transfer"})
	}
}

// normalizeCardNumber strips the spaces and dashes buyers type between
// digit groups.
func normalizeCardNumber(n string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(n)
}

func fromStruct(s any, prefix string) Result {
	err := validator.Validate(s)
	if err == nil {
		return valid()
	}

	var valErr *validator.ValidationError
	if !errors.As(err, &valErr) {
		return invalid(FieldError{Field: prefix, Message: err.Error()})
	}

	list := valErr.List()
	errs := make([]FieldError, 0, len(list))
	for _, fe := range list {
		field := fe.Field
		if prefix != "" {
			field = prefix + "." + field
		}
		errs = append(errs, FieldError{Field: field, Message: fe.Message})
	}
	return invalid(errs...)
}
