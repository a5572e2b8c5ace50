package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/Aswinesag/gitness/internal/middleware"
)

func NewRouter(d Deps) http.Handler {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.CorrelationID)
	r.Use(mw.Logging(d.Logger))
	r.Use(mw.Recover(d.Logger))
	r.Use(mw.CORS(d.CORSAllowOrigins))
	r.Use(mw.Authenticate(d.Identity))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/deals", h.ListDeals)
		r.Get("/products/{id}", h.GetProduct)

		// Authenticated by signature, not by user token.
		r.Post("/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireUser)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Get("/count", h.CartCount)
				r.Get("/stream", h.CartStream)
				r.Post("/items", h.AddCartItem)
				r.Patch("/items/{lineId}", h.UpdateCartItem)
				r.Delete("/items/{lineId}", h.RemoveCartItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", h.StartCheckout)
				r.Get("/", h.GetCheckout)
				r.Post("/next", h.CheckoutNext)
				r.Post("/back", h.CheckoutBack)
				r.Post("/details", h.CheckoutDetails)
				r.Post("/card", h.CheckoutCard)
				r.Post("/hosted/complete", h.CompleteHostedCheckout)
			})
			r.Post("/create-checkout-session", h.CreateCheckoutSession)
			r.Get("/retrieve-session/{sessionId}", h.RetrieveSession)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{orderId}", h.GetOrder)

			r.Route("/admin/products", func(r chi.Router) {
				r.Use(mw.RequireAdmin(d.Identity))
				r.Get("/", h.AdminListProducts)
				r.Post("/", h.AdminCreateProduct)
				r.Get("/export", h.AdminExportProducts)
				r.Put("/{id}", h.AdminUpdateProduct)
				r.Delete("/{id}", h.AdminDeleteProduct)
			})
		})
	})

	return r
}
