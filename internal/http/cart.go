package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Aswinesag/gitness/internal/cart"
	"github.com/Aswinesag/gitness/internal/identity"
	"github.com/Aswinesag/gitness/internal/pricing"
)

const (
	notifyAddFailed    = "Failed to add to cart"
	notifyUpdateFailed = "Failed to update cart"
	notifyRemoveFailed = "Failed to remove item"
)

type cartResponse struct {
	Lines  []cart.Line    `json:"lines"`
	Totals pricing.Totals `json:"totals"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	lines, err := h.cart.ListCart(ctx, identity.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to load cart")
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Lines: lines, Totals: h.prices.Aggregate(lines)})
}

func (h *Handler) CartCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	n, err := h.cart.Count(ctx, identity.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID string `json:"product_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ProductID == "" {
		writeError(w, r, http.StatusBadRequest, "missing product_id", notifyAddFailed)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	change, err := h.cart.AddItem(ctx, identity.UserID(r.Context()), body.ProductID)
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, notifyAddFailed)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity *int `json:"quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Quantity == nil {
		writeError(w, r, http.StatusBadRequest, "missing quantity", notifyUpdateFailed)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	change, err := h.cart.UpdateQuantity(ctx, identity.UserID(r.Context()), chi.URLParam(r, "lineId"), *body.Quantity)
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, notifyUpdateFailed)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	change, err := h.cart.RemoveItem(ctx, identity.UserID(r.Context()), chi.URLParam(r, "lineId"))
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, notifyRemoveFailed)
		return
	}
	writeJSON(w, http.StatusOK, change)
}
