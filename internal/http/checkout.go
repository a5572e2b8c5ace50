package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Aswinesag/gitness/internal/checkout"
	"github.com/Aswinesag/gitness/internal/identity"
)

const (
	notifyCheckoutFailed = "Checkout failed, please try again"
	successPath          = "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	cancelPath           = "/checkout"
)

type validationResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields"`
	Checkout checkout.State    `json:"checkout"`
}

func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	s, err := h.checkout.Start(ctx, identity.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, notifyCheckoutFailed)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	s, err := h.checkout.Get(identity.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) CheckoutNext(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, checkout.Next{})
}

func (h *Handler) CheckoutBack(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Step checkout.Step `json:"step"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	h.apply(w, r, checkout.Back{To: body.Step})
}

func (h *Handler) CheckoutDetails(w http.ResponseWriter, r *http.Request) {
	var d checkout.Details
	if !decodeJSON(w, r, &d) {
		return
	}
	h.apply(w, r, checkout.SubmitDetails{Details: d})
}

func (h *Handler) CheckoutCard(w http.ResponseWriter, r *http.Request) {
	var c checkout.Card
	if !decodeJSON(w, r, &c) {
		return
	}
	h.apply(w, r, checkout.SubmitCard{Card: c})
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, ev checkout.Event) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	s, err := h.checkout.Apply(ctx, identity.UserID(r.Context()), ev)
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:    "validation failed",
			Fields:   verr.Fields,
			Checkout: s,
		})
	case err != nil:
		h.fail(w, r, err, http.StatusInternalServerError, notifyCheckoutFailed)
	default:
		writeJSON(w, http.StatusOK, s)
	}
}

// CreateCheckoutSession starts the hosted payment flow and returns the
// gateway's redirect URL.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	p, _ := identity.FromContext(r.Context())
	session, err := h.checkout.BeginHostedPayment(ctx, checkout.HostedRequest{
		UserID:     p.UserID,
		Email:      p.Email,
		SuccessURL: h.origin + successPath,
		CancelURL:  h.origin + cancelPath,
	})
	if err != nil {
		h.fail(w, r, err, http.StatusBadGateway, notifyCheckoutFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":        session.URL,
		"session_id": session.ID,
	})
}

// CompleteHostedCheckout handles the success redirect.
func (h *Handler) CompleteHostedCheckout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.SessionID == "" {
		writeError(w, r, http.StatusBadRequest, "Session ID is required", "")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	s, err := h.checkout.CompleteHostedPayment(ctx, identity.UserID(r.Context()), body.SessionID)
	if err != nil {
		h.fail(w, r, err, http.StatusBadGateway, notifyCheckoutFailed)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) RetrieveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "Session ID is required", "")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	session, err := h.gateway.RetrieveSession(ctx, id)
	if err != nil {
		h.fail(w, r, err, http.StatusBadGateway, "")
		return
	}
	if session.UserID() != identity.UserID(r.Context()) {
		h.fail(w, r, checkout.ErrSessionMismatch, http.StatusNotFound, "")
		return
	}
	session.URL = ""
	writeJSON(w, http.StatusOK, session)
}
