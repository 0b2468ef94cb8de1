package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/dmarkua/storefront-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware интернет-магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Optional)

			r.Get("/catalog", h.Catalog)
			r.Get("/catalog/newest", h.Newest)
			r.Get("/catalog/products/{id}", h.Product)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Delete("/cart/items/{id}", h.RemoveCartItem)
			r.Post("/cart/checkout", h.Checkout)

			r.Get("/shipping/cities", h.Cities)
			r.Get("/shipping/warehouses", h.Warehouses)
		})

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/favorites", h.GetFavorites)
				r.Post("/favorites", h.AddFavorite)
				r.Delete("/favorites/{id}", h.RemoveFavorite)

				r.Post("/reviews", h.AddReview)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(custommiddleware.RequireAdmin(h.service))

			r.Get("/currency", h.GetCurrency)
			r.Put("/currency", h.SetCurrency)

			r.Get("/orders", h.AdminOrders)
			r.Get("/orders/{id}", h.AdminOrder)
			r.Put("/orders/{id}", h.UpdateOrderItems)
			r.Put("/orders/{id}/status", h.UpdateOrderStatus)

			r.Get("/products", h.AdminProducts)
			r.Post("/products", h.CreateProduct)
			r.Patch("/products/{id}", h.PatchProduct)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
