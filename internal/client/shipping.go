package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httpclient"
)

// ShippingClient quotes delivery options from the shipping service.
type ShippingClient struct {
	ep endpoint
}

// NewShippingClient creates a shipping client for the service at baseURL.
func NewShippingClient(doer httpclient.Doer, baseURL string) *ShippingClient {
	return &ShippingClient{ep: newEndpoint(doer, baseURL, "shipping")}
}

type ratesResponse struct {
	Methods []domain.ShippingMethod `json:"methods"`
}

// FetchShippingMethods returns the methods available for q.
func (c *ShippingClient) FetchShippingMethods(ctx context.Context, q service.RateQuery) ([]domain.ShippingMethod, error) {
	var resp ratesResponse
	if err := call(ctx, c.ep, http.MethodPost, "/api/v1/shipping/rates", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch shipping rates: %w", err)
	}
	return resp.Methods, nil
}

var _ service.ShippingRates = (*ShippingClient)(nil)
