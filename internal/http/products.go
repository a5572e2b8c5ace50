package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Aswinesag/gitness/internal/catalog"
)

// productView adds the price the storefront actually charges.
type productView struct {
	catalog.Product
	EffectivePrice string `json:"effective_price"`
}

func (h *Handler) view(p catalog.Product) productView {
	return productView{Product: p, EffectivePrice: h.prices.EffectivePrice(p).StringFixed(2)}
}

func (h *Handler) views(ps []catalog.Product) []productView {
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, h.view(p))
	}
	return out
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, h.catalog.List)
}

func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, h.catalog.ListDeals)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]catalog.Product, error)) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	ps, err := list(ctx)
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to load products")
		return
	}
	writeJSON(w, http.StatusOK, h.views(ps))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	p, err := h.catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to load product")
		return
	}
	writeJSON(w, http.StatusOK, h.view(p))
}
