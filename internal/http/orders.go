package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Aswinesag/gitness/internal/identity"
	"github.com/Aswinesag/gitness/internal/order"
)

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	orders, err := h.orders.ListByUser(ctx, identity.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to load orders")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	o, err := h.orders.Get(ctx, identity.UserID(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to load order")
		return
	}
	if o == nil {
		h.fail(w, r, order.ErrNotFound, http.StatusNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, o)
}
