package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httpclient"
)

// ProfileClient reads saved checkout data from the user service.
type ProfileClient struct {
	ep endpoint
}

// NewProfileClient creates a profile client for the service at baseURL.
func NewProfileClient(doer httpclient.Doer, baseURL string) *ProfileClient {
	return &ProfileClient{ep: newEndpoint(doer, baseURL, "user")}
}

// FetchCheckoutProfile returns the signed-in shopper's addresses,
// preferences and shippable countries.
func (c *ProfileClient) FetchCheckoutProfile(ctx context.Context) (*domain.CheckoutProfile, error) {
	var profile domain.CheckoutProfile
	if err := call(ctx, c.ep, http.MethodGet, "/api/v1/users/me/checkout-profile", nil, nil, &profile); err != nil {
		return nil, fmt.Errorf("fetch checkout profile: %w", err)
	}
	return &profile, nil
}

var _ service.ProfileService = (*ProfileClient)(nil)
