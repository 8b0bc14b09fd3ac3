package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/client"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

// SlotCookieName is the cookie identifying the browser's checkout slot.
const SlotCookieName = "checkout_slot"

// slotMaxAge matches the checkout session lifetime.
const slotMaxAge = 30 * time.Minute

// CheckoutSlot assigns every browser a stable slot id through the
// checkout_slot cookie. A missing or malformed cookie gets a fresh id. The
// cookie is re-issued on every response so its expiry slides with activity.
func CheckoutSlot(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slot := ""
			if c, err := r.Cookie(SlotCookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					slot = c.Value
				}
			}
			if slot == "" {
				slot = uuid.NewString()
			}

			http.SetCookie(w, &http.Cookie{
				Name:     SlotCookieName,
				Value:    slot,
				Path:     "/",
				MaxAge:   int(slotMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := client.WithSlot(r.Context(), slot)
			if l := logger.FromContext(ctx); l != slog.Default() {
				ctx = logger.NewContext(ctx, l.With("checkout_slot", slot))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
