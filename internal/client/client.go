// Package client implements the checkout collaborators over HTTP against the
// other storefront services.
package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httpclient"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/middleware"
)

// ErrCartLocked is returned by CartClient.Lock when the cart service reports
// the cart as held by another checkout session.
var ErrCartLocked = service.ErrCartLocked

const (
	// HeaderIdempotencyKey lets the order service collapse retried
	// submissions.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderCartSession identifies a guest's cart by browser slot.
	HeaderCartSession = "X-Cart-Session"
)

type slotKey struct{}

// WithSlot stores the browser checkout slot in ctx so guest carts can be
// addressed downstream.
func WithSlot(ctx context.Context, slot string) context.Context {
	return context.WithValue(ctx, slotKey{}, slot)
}

// SlotFromContext returns the slot stored by WithSlot.
func SlotFromContext(ctx context.Context) string {
	s, _ := ctx.Value(slotKey{}).(string)
	return s
}

// envelope is the {"data": ...} wrapper every storefront service answers with.
type envelope[T any] struct {
	Data T `json:"data"`
}

// endpoint is one downstream service reached through the shared doer.
type endpoint struct {
	doer    httpclient.Doer
	baseURL string
	name    string
}

func newEndpoint(doer httpclient.Doer, baseURL, name string) endpoint {
	return endpoint{
		doer:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
	}
}

// call sends a JSON request, forwarding the shopper identity and the
// correlation id, and decodes the data envelope into out.
func call[T any](ctx context.Context, e endpoint, method, path string, body any, header http.Header, out *T) error {
	h := http.Header{}
	for k, vs := range header {
		h[k] = vs
	}
	if id := middleware.IdentityFromContext(ctx); id.Authenticated() {
		h.Set(middleware.HeaderUserID, id.UserID)
		if id.Email != "" {
			h.Set(middleware.HeaderUserEmail, id.Email)
		}
	}
	if slot := SlotFromContext(ctx); slot != "" {
		h.Set(HeaderCartSession, slot)
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		h.Set(middleware.HeaderCorrelationID, cid)
	}

	req := httpclient.Request{
		Method: method,
		URL:    e.baseURL + path,
		Header: h,
		Body:   body,
	}
	if out == nil {
		return httpclient.DoJSON(ctx, e.doer, e.name, req, nil)
	}

	var env envelope[T]
	if err := httpclient.DoJSON(ctx, e.doer, e.name, req, &env); err != nil {
		return err
	}
	*out = env.Data
	return nil
}

// ForwardedAuth answers identity questions from the gateway headers stored
// in the request context by middleware.ForwardedIdentity.
type ForwardedAuth struct{}

// IsAuthenticated reports whether the request carries a signed-in user.
func (ForwardedAuth) IsAuthenticated(ctx context.Context) bool {
	return middleware.IdentityFromContext(ctx).Authenticated()
}

// UserID returns the signed-in user id or "".
func (ForwardedAuth) UserID(ctx context.Context) string {
	return middleware.IdentityFromContext(ctx).UserID
}

// Email returns the signed-in user's email or "".
func (ForwardedAuth) Email(ctx context.Context) string {
	return middleware.IdentityFromContext(ctx).Email
}

var _ service.AuthProvider = ForwardedAuth{}

// CircuitOpenFallback answers requests rejected by an open circuit breaker
// with a retryable 503 instead of the raw breaker error.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("downstream service is temporarily unavailable, please retry shortly")
}
