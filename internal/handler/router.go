package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/bakery-system/internal/middleware"
	"github.com/mmeshcher/bakery-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса пекарни.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Get("/menu", h.Menu)
		r.Get("/menu/search", h.SearchMenu)
		r.Get("/menu/{productID}", h.ProductByID)

		// Оформление заказа доступно гостям: токен учитывается, но не обязателен.
		r.With(h.authMiddleware.Optional).Post("/orders", h.Checkout)
		r.Get("/orders/track/{orderID}", h.TrackOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/orders/history", h.OrderHistory)

			r.Route("/employee", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleEmployee))

				r.Get("/orders", h.OrdersByDate)
				r.Post("/orders/status", h.UpdateOrderStatus)
				r.Put("/orders/{orderID}/note", h.UpdateEmployeeNote)
				r.Get("/stock", h.Stock)
			})

			r.Route("/manager", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleManager))

				r.Post("/products", h.CreateProduct)
				r.Put("/products/{productID}", h.UpdateProduct)
				r.Delete("/products/{productID}", h.DeleteProduct)

				r.Get("/revenue", h.DailyRevenue)
				r.Get("/revenue/weekly", h.WeeklyRevenue)
			})
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
