package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httpclient"
)

// OrderClient records orders through the order service.
type OrderClient struct {
	ep endpoint
}

// NewOrderClient creates an order client for the service at baseURL.
func NewOrderClient(doer httpclient.Doer, baseURL string) *OrderClient {
	return &OrderClient{ep: newEndpoint(doer, baseURL, "order")}
}

// CreateOrder submits req. The idempotency key, when set, is sent as the
// Idempotency-Key header.
func (c *OrderClient) CreateOrder(ctx context.Context, req service.OrderRequest) (*service.OrderConfirmation, error) {
	var header http.Header
	if req.IdempotencyKey != "" {
		header = http.Header{HeaderIdempotencyKey: []string{req.IdempotencyKey}}
	}

	var conf service.OrderConfirmation
	if err := call(ctx, c.ep, http.MethodPost, "/api/v1/orders", req, header, &conf); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &conf, nil
}

var _ service.OrderService = (*OrderClient)(nil)
