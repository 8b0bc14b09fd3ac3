package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httpclient"
)

// NotificationClient sends transactional email through the notification
// service.
type NotificationClient struct {
	ep endpoint
}

// NewNotificationClient creates a notification client for the service at
// baseURL.
func NewNotificationClient(doer httpclient.Doer, baseURL string) *NotificationClient {
	return &NotificationClient{ep: newEndpoint(doer, baseURL, "notification")}
}

// SendConfirmationEmail queues the order confirmation email.
func (c *NotificationClient) SendConfirmationEmail(ctx context.Context, msg service.ConfirmationEmail) error {
	if err := call[struct{}](ctx, c.ep, http.MethodPost, "/api/v1/notifications/order-confirmation", msg, nil, nil); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}
	return nil
}

var _ service.Notifier = (*NotificationClient)(nil)
