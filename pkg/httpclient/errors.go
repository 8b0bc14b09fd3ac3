package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/caraseli02/MoldovaDirect-sub004/pkg/errors"
)

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 1 << 20

// DownstreamErrorResponse is the {"error":{"code","message"}} envelope the
// cart, order and payment services answer with on failure.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusErrors maps downstream 4xx statuses onto local AppErrors.
var statusErrors = map[int]func(msg string) *apperrors.AppError{
	http.StatusBadRequest:          apperrors.InvalidInput,
	http.StatusUnauthorized:        apperrors.Unauthorized,
	http.StatusForbidden:           apperrors.Forbidden,
	http.StatusConflict:            apperrors.Conflict,
	http.StatusGone:                apperrors.Gone,
	http.StatusUnprocessableEntity: apperrors.PaymentFailed,
	http.StatusServiceUnavailable:  apperrors.ServiceUnavailable,
}

// ParseResponseError consumes and closes a non-2xx response and turns it
// into an error. The message is prefixed with service. 404s become
// NotFound, other known statuses their AppError, unknown 4xx keep their
// status under DOWNSTREAM_ERROR, and remaining 5xx become plain errors
// carrying the status.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", service, resp.StatusCode, err)
	}

	code, msg := decodeDownstreamError(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NotFound(service, msg)
	}
	if build, ok := statusErrors[resp.StatusCode]; ok {
		return build(service + ": " + msg)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s server error (%d/%s): %s", service, resp.StatusCode, code, msg)
	}
	if code == "" {
		code = "DOWNSTREAM_ERROR"
	}
	return &apperrors.AppError{Code: code, Message: service + ": " + msg, Status: resp.StatusCode}
}

// decodeDownstreamError returns the code and message of a structured error
// body, or the trimmed raw body as the message.
func decodeDownstreamError(body []byte) (code, msg string) {
	var envelope DownstreamErrorResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		return envelope.Error.Code, envelope.Error.Message
	}
	return "", strings.TrimSpace(string(body))
}
