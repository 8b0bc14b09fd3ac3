package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKeyType string

const identityKey contextKeyType = "identity"

// Identity is the shopper identity forwarded by the storefront gateway.
// A zero Identity means a guest.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticated reports whether the gateway resolved a signed-in user.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Identity headers set by the gateway after it has verified the session.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// ForwardedIdentity reads the gateway identity headers into the request
// context. Requests without X-User-ID are treated as guests.
func ForwardedIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{
				UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
				Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
				Name:   strings.TrimSpace(r.Header.Get(HeaderUserName)),
			}
			if !id.Authenticated() {
				id = Identity{}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by ForwardedIdentity.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// UserIDFromContext returns the authenticated user id, or "" for guests.
func UserIDFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).UserID
}

// NoStore marks every response as uncacheable. Checkout responses carry
// per-shopper state and must never be served from a shared cache.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
