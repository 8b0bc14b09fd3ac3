package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/caraseli02/MoldovaDirect-sub004/internal/domain"
	"github.com/caraseli02/MoldovaDirect-sub004/internal/service"
	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/httputil"
	"github.com/caraseli02/MoldovaDirect-sub004/pkg/logger"
)

// writeCheckoutError maps a checkout failure to a response. Validation
// failures carry the session's per-field messages, payment failures are
// 422, and system failures take the status of any wrapped AppError.
// Errors that are not CheckoutErrors go through httputil.WriteError.
func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, r *http.Request, o *service.Orchestrator, err error) {
	ce, ok := domain.AsCheckoutError(err)
	if !ok {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	switch ce.Kind {
	case domain.KindValidation:
		fields := o.View().ValidationErrors
		if len(fields) == 0 {
			fields = map[string][]string{ce.Field: {ce.Message}}
		}
		httputil.WriteFieldErrors(w, r, ce.Message, fields)

	case domain.KindPayment:
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
			Error: &httputil.ErrorResponse{
				Code:      "PAYMENT_FAILED",
				Message:   ce.Message,
				Retryable: ce.Retryable,
				RequestID: requestID,
			},
		})

	default:
		status, code := http.StatusInternalServerError, "CHECKOUT_ERROR"
		var appErr *apperrors.AppError
		if errors.As(ce, &appErr) {
			status, code = appErr.Status, appErr.Code
		}
		if status >= http.StatusInternalServerError {
			l := logger.FromContext(r.Context())
			if l == slog.Default() {
				l = h.logger
			}
			l.ErrorContext(r.Context(), "checkout operation failed",
				slog.String("error", err.Error()),
			)
		}
		httputil.WriteJSON(w, status, httputil.Response{
			Error: &httputil.ErrorResponse{
				Code:      code,
				Message:   ce.Message,
				Retryable: ce.Retryable,
				RequestID: requestID,
			},
		})
	}
}
