package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/client"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httputil"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/middleware"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/validator"
)

const maxBodyBytes = 1 << 20

// CheckoutHandler handles HTTP requests for checkout endpoints. Each
// browser slot maps to one orchestrator held by the manager.
type CheckoutHandler struct {
	manager *service.Manager
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(manager *service.Manager, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		manager: manager,
		logger:  logger,
	}
}

// --- Request DTOs ---

// InitCheckoutRequest optionally carries the cart lines. Without items the
// cart service is asked for them.
type InitCheckoutRequest struct {
	Items []LineItemRequest `json:"items" validate:"omitempty,dive"`
}

// LineItemRequest is one cart line in the init request.
type LineItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id"`
	Name      string `json:"name" validate:"required"`
	SKU       string `json:"sku"`
	Price     int64  `json:"price" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	ImageURL  string `json:"image_url"`
}

// GoToStepRequest names the target step.
type GoToStepRequest struct {
	Step string `json:"step" validate:"required,oneof=shipping payment review confirmation"`
}

// --- Response DTOs ---

// CheckoutResponse is the session view plus readiness flags and any
// pending notices.
type CheckoutResponse struct {
	*domain.CheckoutSession
	CanProceedToPayment bool             `json:"can_proceed_to_payment"`
	CanProceedToReview  bool             `json:"can_proceed_to_review"`
	CanCompleteOrder    bool             `json:"can_complete_order"`
	Notices             []service.Notice `json:"notices"`
}

// RetryResponse tells the client which operation to re-run.
type RetryResponse struct {
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable"`
}

// --- Handlers ---

// GetCheckout handles GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	entry := h.manager.Get(r.Context(), client.SlotFromContext(r.Context()))
	httputil.WriteData(w, http.StatusOK, buildResponse(entry))
}

// InitCheckout handles POST /api/v1/checkout/init
func (h *CheckoutHandler) InitCheckout(w http.ResponseWriter, r *http.Request) {
	var req InitCheckoutRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	items := make([]domain.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.LineItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			SKU:       item.SKU,
			Price:     item.Price,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		}
	}

	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		if err := o.InitializeCheckout(ctx, items); err != nil {
			return err
		}
		o.PrefetchCheckoutData(ctx)
		return nil
	})
}

// UpdateGuestInfo handles PUT /api/v1/checkout/guest
func (h *CheckoutHandler) UpdateGuestInfo(w http.ResponseWriter, r *http.Request) {
	var req domain.GuestInfo
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		return o.UpdateGuestInfo(ctx, req)
	})
}

// UpdateShippingInfo handles PUT /api/v1/checkout/shipping
func (h *CheckoutHandler) UpdateShippingInfo(w http.ResponseWriter, r *http.Request) {
	var req domain.ShippingInfo
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		return o.UpdateShippingInfo(ctx, req, nil)
	})
}

// LoadShippingMethods handles GET /api/v1/checkout/shipping-methods
func (h *CheckoutHandler) LoadShippingMethods(w http.ResponseWriter, r *http.Request) {
	entry, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	methods := entry.Orchestrator().LoadShippingMethods(r.Context())
	httputil.WriteData(w, http.StatusOK, map[string]any{"methods": methods})
}

// UpdatePaymentMethod handles PUT /api/v1/checkout/payment
func (h *CheckoutHandler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentMethod
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		return o.UpdatePaymentMethod(ctx, req)
	})
}

// SavePaymentMethod handles POST /api/v1/checkout/payment-methods
func (h *CheckoutHandler) SavePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if !middleware.IdentityFromContext(r.Context()).Authenticated() {
		httputil.WriteError(w, r, apperrors.Unauthorized("sign in to save payment methods"), h.logger)
		return
	}

	var req domain.PaymentMethod
	if !decodeBody(w, r, &req) {
		return
	}

	entry, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	saved, err := entry.Orchestrator().SavePaymentMethodData(r.Context(), req)
	if err != nil {
		h.writeCheckoutError(w, r, entry.Orchestrator(), err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, saved)
}

// UpdateConsents handles PUT /api/v1/checkout/consents
func (h *CheckoutHandler) UpdateConsents(w http.ResponseWriter, r *http.Request) {
	var req domain.Consents
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		o.UpdateConsents(ctx, req)
		return nil
	})
}

// GoToStep handles POST /api/v1/checkout/step
func (h *CheckoutHandler) GoToStep(w http.ResponseWriter, r *http.Request) {
	var req GoToStepRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		if o.GoToStep(ctx, domain.Step(req.Step)) {
			return nil
		}
		return stepBlocked("cannot move to step " + req.Step)
	})
}

// ProceedToNextStep handles POST /api/v1/checkout/next
func (h *CheckoutHandler) ProceedToNextStep(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		current := o.Session().Step()
		next, err := o.ProceedToNextStep(ctx)
		if err != nil {
			return err
		}
		if next == "" {
			if _, more := current.Next(); more {
				return stepBlocked("current step is incomplete")
			}
		}
		return nil
	})
}

// GoToPreviousStep handles POST /api/v1/checkout/previous
func (h *CheckoutHandler) GoToPreviousStep(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		o.GoToPreviousStep(ctx)
		return nil
	})
}

// CancelCheckout handles POST /api/v1/checkout/cancel
func (h *CheckoutHandler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		o.CancelCheckout(ctx)
		return nil
	})
}

// ResetCheckout handles POST /api/v1/checkout/reset
func (h *CheckoutHandler) ResetCheckout(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, o *service.Orchestrator) error {
		o.ResetCheckout(ctx)
		return nil
	})
}

// ClearError handles DELETE /api/v1/checkout/errors
func (h *CheckoutHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	h.mutate(w, r, func(_ context.Context, o *service.Orchestrator) error {
		o.ClearError(field)
		return nil
	})
}

// RetryLastAction handles POST /api/v1/checkout/retry
func (h *CheckoutHandler) RetryLastAction(w http.ResponseWriter, r *http.Request) {
	entry, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	field, retryable := entry.Orchestrator().RetryLastAction()
	httputil.WriteData(w, http.StatusOK, RetryResponse{Field: field, Retryable: retryable})
}

// --- Helpers ---

// acquire takes the slot's entry exclusively. A concurrent request on the
// same slot gets 409 CHECKOUT_BUSY.
func (h *CheckoutHandler) acquire(w http.ResponseWriter, r *http.Request) (*service.Entry, func(), bool) {
	entry, release, err := h.manager.Acquire(r.Context(), client.SlotFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrBusy) {
			w.Header().Set("Retry-After", "1")
			httputil.WriteJSON(w, http.StatusConflict, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:      "CHECKOUT_BUSY",
					Message:   "another checkout request is in progress",
					Retryable: true,
					RequestID: logger.CorrelationIDFromContext(r.Context()),
				},
			})
			return nil, nil, false
		}
		httputil.WriteError(w, r, err, h.logger)
		return nil, nil, false
	}
	return entry, release, true
}

// mutate runs fn under the slot's exclusive lock and answers with the
// resulting view, or with the mapped error.
func (h *CheckoutHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(context.Context, *service.Orchestrator) error) {
	entry, release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	if err := fn(r.Context(), entry.Orchestrator()); err != nil {
		h.writeCheckoutError(w, r, entry.Orchestrator(), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, buildResponse(entry))
}

func buildResponse(entry *service.Entry) CheckoutResponse {
	o := entry.Orchestrator()
	return CheckoutResponse{
		CheckoutSession:     o.View(),
		CanProceedToPayment: o.CanProceedToPayment(),
		CanProceedToReview:  o.CanProceedToReview(),
		CanCompleteOrder:    o.CanCompleteOrder(),
		Notices:             entry.Notices().Drain(),
	}
}

// stepBlocked reports a navigation refused by step validation.
func stepBlocked(message string) error {
	return domain.NewValidationError("step", message)
}

// decodeBody decodes a required JSON body, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), nil)
		return false
	}
	return true
}

// decodeOptional is decodeBody for endpoints that accept an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), nil)
		return false
	}
	return true
}
