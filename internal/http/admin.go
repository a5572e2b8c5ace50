package httpapi

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Aswinesag/gitness/internal/catalog"
	"github.com/Aswinesag/gitness/internal/export"
	"github.com/Aswinesag/gitness/internal/identity"
)

func (h *Handler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, h.catalog.List)
}

func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewProduct
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		h.fail(w, r, err, http.StatusBadRequest, "")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	p, err := h.catalog.Create(ctx, in)
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to create product")
		return
	}
	h.logger.Info("product created",
		zap.String("product_id", p.ID), zap.String("admin", identity.UserID(r.Context())))
	writeJSON(w, http.StatusCreated, h.view(p))
}

func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var patch catalog.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	p, err := h.catalog.Update(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to update product")
		return
	}
	writeJSON(w, http.StatusOK, h.view(p))
}

func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := h.catalog.Delete(ctx, id); err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	h.logger.Info("product deleted", zap.String("product_id", id), zap.String("admin", identity.UserID(r.Context())))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AdminExportProducts downloads the catalog as an xlsx workbook.
func (h *Handler) AdminExportProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	ps, err := h.catalog.List(ctx)
	if err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to export products")
		return
	}

	// Buffer so a write failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := export.WriteProducts(&buf, ps, h.prices); err != nil {
		h.fail(w, r, err, http.StatusInternalServerError, "Failed to export products")
		return
	}

	w.Header().Set("Content-Type", export.XLSXContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+export.ProductsFileName)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
