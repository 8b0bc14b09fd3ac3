package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httpclient"
)

// PaymentClient creates and confirms card payment intents and manages
// saved payment methods through the payment service.
type PaymentClient struct {
	ep endpoint
}

// NewPaymentClient creates a payment client for the service at baseURL.
func NewPaymentClient(doer httpclient.Doer, baseURL string) *PaymentClient {
	return &PaymentClient{ep: newEndpoint(doer, baseURL, "payment")}
}

// CreatePaymentIntent creates an intent for req.Amount minor units.
func (c *PaymentClient) CreatePaymentIntent(ctx context.Context, req service.IntentRequest) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	if err := call(ctx, c.ep, http.MethodPost, "/api/v1/payments/intents", req, nil, &intent); err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &intent, nil
}

// ConfirmPaymentIntent confirms a previously created intent.
func (c *PaymentClient) ConfirmPaymentIntent(ctx context.Context, req service.ConfirmRequest) (*domain.IntentConfirmation, error) {
	path := "/api/v1/payments/intents/" + url.PathEscape(req.PaymentIntentID) + "/confirm"
	var conf domain.IntentConfirmation
	if err := call(ctx, c.ep, http.MethodPost, path, req, nil, &conf); err != nil {
		return nil, fmt.Errorf("confirm payment intent: %w", err)
	}
	return &conf, nil
}

// FetchSavedPaymentMethods lists the signed-in shopper's saved methods.
func (c *PaymentClient) FetchSavedPaymentMethods(ctx context.Context) ([]domain.SavedPaymentMethod, error) {
	var methods []domain.SavedPaymentMethod
	if err := call(ctx, c.ep, http.MethodGet, "/api/v1/users/me/payment-methods", nil, nil, &methods); err != nil {
		return nil, fmt.Errorf("fetch saved payment methods: %w", err)
	}
	return methods, nil
}

// SavePaymentMethod tokenizes and stores method for the signed-in shopper.
func (c *PaymentClient) SavePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.SavedPaymentMethod, error) {
	var saved domain.SavedPaymentMethod
	if err := call(ctx, c.ep, http.MethodPost, "/api/v1/users/me/payment-methods", method, nil, &saved); err != nil {
		return nil, fmt.Errorf("save payment method: %w", err)
	}
	return &saved, nil
}

var (
	_ service.PaymentGateway          = (*PaymentClient)(nil)
	_ service.SavedPaymentMethodStore = (*PaymentClient)(nil)
)
