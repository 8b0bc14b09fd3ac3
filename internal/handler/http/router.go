package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/health"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the router.
const ServiceName = "checkout"

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	CORS         middleware.CORSConfig
	RateLimit    middleware.RateLimitConfig
	CookieSecure bool
}

// NewRouter creates a chi router with all checkout service routes registered.
func NewRouter(
	manager *service.Manager,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.ForwardedIdentity())
	r.Use(middleware.RequestLogger(logger))

	// Health check and metrics endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Checkout API endpoints
	checkoutHandler := NewCheckoutHandler(manager, logger)

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit, logger))
		r.Use(middleware.NoStore)
		r.Use(CheckoutSlot(cfg.CookieSecure))

		r.Get("/", checkoutHandler.GetCheckout)
		r.Post("/init", checkoutHandler.InitCheckout)
		r.Put("/guest", checkoutHandler.UpdateGuestInfo)
		r.Put("/shipping", checkoutHandler.UpdateShippingInfo)
		r.Get("/shipping-methods", checkoutHandler.LoadShippingMethods)
		r.Put("/payment", checkoutHandler.UpdatePaymentMethod)
		r.Post("/payment-methods", checkoutHandler.SavePaymentMethod)
		r.Put("/consents", checkoutHandler.UpdateConsents)
		r.Post("/step", checkoutHandler.GoToStep)
		r.Post("/next", checkoutHandler.ProceedToNextStep)
		r.Post("/previous", checkoutHandler.GoToPreviousStep)
		r.Post("/cancel", checkoutHandler.CancelCheckout)
		r.Post("/reset", checkoutHandler.ResetCheckout)
		r.Delete("/errors", checkoutHandler.ClearError)
		r.Post("/retry", checkoutHandler.RetryLastAction)
	})

	return r
}
