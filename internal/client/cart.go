package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httpclient"
)

// CartClient talks to the cart service.
type CartClient struct {
	ep endpoint
}

// NewCartClient creates a cart client for the service at baseURL.
func NewCartClient(doer httpclient.Doer, baseURL string) *CartClient {
	return &CartClient{ep: newEndpoint(doer, baseURL, "cart")}
}

type cartResponse struct {
	Items []domain.LineItem `json:"items"`
}

type lockRequest struct {
	SessionID string `json:"session_id"`
	Minutes   int    `json:"minutes,omitempty"`
}

// Items returns the lines of the shopper's cart.
func (c *CartClient) Items(ctx context.Context) ([]domain.LineItem, error) {
	var resp cartResponse
	if err := call(ctx, c.ep, http.MethodGet, "/api/v1/cart", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if resp.Items == nil {
		return []domain.LineItem{}, nil
	}
	return resp.Items, nil
}

// Lock takes the advisory checkout lock on the cart for d. A conflict means
// another checkout session holds it and is reported as ErrCartLocked.
func (c *CartClient) Lock(ctx context.Context, sessionID string, d time.Duration) error {
	body := lockRequest{SessionID: sessionID, Minutes: int(d.Round(time.Minute) / time.Minute)}
	err := call[struct{}](ctx, c.ep, http.MethodPost, "/api/v1/cart/lock", body, nil, nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrConflict) {
		return ErrCartLocked
	}
	return fmt.Errorf("lock cart: %w", err)
}

// Unlock releases the lock held by sessionID.
func (c *CartClient) Unlock(ctx context.Context, sessionID string) error {
	body := lockRequest{SessionID: sessionID}
	if err := call[struct{}](ctx, c.ep, http.MethodPost, "/api/v1/cart/unlock", body, nil, nil); err != nil {
		return fmt.Errorf("unlock cart: %w", err)
	}
	return nil
}

// Clear empties the cart.
func (c *CartClient) Clear(ctx context.Context) error {
	if err := call[struct{}](ctx, c.ep, http.MethodDelete, "/api/v1/cart", nil, nil, nil); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

var _ service.CartProvider = (*CartClient)(nil)
