package httpapi

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/order"
	"github.com/Aswinesag/gitness/internal/payment"
)

// Webhook receives gateway callbacks. Once the payload is authenticated the
// gateway always gets {"received": true}; a failed finalization is logged and
// dead-lettered instead of being retried by the gateway.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid payload", "")
		return
	}

	ev, err := h.webhooks.Parse(payload, r.Header.Get(payment.SignatureHeader))
	switch {
	case errors.Is(err, payment.ErrInvalidSignature), errors.Is(err, payment.ErrMissingSignature):
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "Invalid signature", "")
		return
	case err != nil:
		h.logger.Warn("webhook payload rejected", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "invalid payload", "")
		return
	}

	switch c := ev.Checkout; {
	case c == nil:
	case c.UserID == "":
		h.logger.Warn("webhook checkout without user id; not finalized",
			zap.String("event_id", ev.ID), zap.String("session_id", c.SessionID))
	default:
		h.finalizeFromWebhook(r, ev.ID, *c)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) finalizeFromWebhook(r *http.Request, eventID string, c payment.CompletedCheckout) {
	if c.PaymentStatus != payment.PaymentStatusPaid {
		h.logger.Info("webhook checkout not paid",
			zap.String("event_id", eventID), zap.String("session_id", c.SessionID), zap.String("payment_status", c.PaymentStatus))
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	res, err := h.orders.Finalize(ctx, order.Request{
		UserID:         c.UserID,
		TotalAmount:    c.Amount(),
		IdempotencyKey: c.IdempotencyKey(),
		Source:         order.SourceHosted,
	})
	if err == nil {
		h.logger.Info("webhook order finalized",
			zap.String("event_id", eventID), zap.String("session_id", c.SessionID),
			zap.String("order_id", res.Order.ID), zap.Bool("created", res.Created))
		return
	}

	h.logger.Error("webhook finalize failed",
		zap.String("event_id", eventID), zap.String("session_id", c.SessionID), zap.String("user_id", c.UserID), zap.Error(err))
	if h.deadLetters == nil {
		return
	}
	// The request context may already be spent; dead letters get their own budget.
	dctx, dcancel := h.detachedContext(r)
	defer dcancel()
	if err := h.deadLetters.PublishFinalizeFailed(dctx, c, err); err != nil {
		h.logger.Error("dead-letter publish failed", zap.String("session_id", c.SessionID), zap.Error(err))
	}
}
