package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/cart"
	"github.com/Aswinesag/gitness/internal/catalog"
	"github.com/Aswinesag/gitness/internal/checkout"
	"github.com/Aswinesag/gitness/internal/identity"
	mw "github.com/Aswinesag/gitness/internal/middleware"
	"github.com/Aswinesag/gitness/internal/order"
	"github.com/Aswinesag/gitness/internal/payment"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg, notification string) {
	mw.WriteError(w, r, status, msg, notification)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json", "")
		return false
	}
	return true
}

// fail maps a service error to a status and JSON body. Unknown errors become
// fallback (500 or 502) and are logged with the request's identity.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallback int, notification string) {
	status, msg := statusFor(err)
	if status == 0 {
		status, msg = fallback, http.StatusText(fallback)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("user_id", identity.UserID(r.Context())),
			zap.String("correlation_id", mw.GetCorrelationID(r.Context())),
			zap.Error(err))
	}
	writeError(w, r, status, msg, notification)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, cart.ErrSignedOut), errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized, "User not authenticated"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound, "Cart item not found"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, checkout.ErrNotStarted):
		return http.StatusNotFound, "Checkout not started"
	case errors.Is(err, payment.ErrSessionNotFound), errors.Is(err, checkout.ErrSessionMismatch):
		return http.StatusNotFound, "Checkout session not found"
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, "Cart is empty"
	case errors.Is(err, catalog.ErrMissingFields):
		return http.StatusBadRequest, "Missing required fields"
	case errors.Is(err, checkout.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, checkout.ErrNotPaid):
		return http.StatusPaymentRequired, "Payment not completed"
	case errors.Is(err, payment.ErrNotConfigured):
		return http.StatusServiceUnavailable, "Payment gateway not configured"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	}
	return 0, ""
}
