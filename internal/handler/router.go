package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/tamagotchi-server/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Health)

	// WebSocket обходит gzip: соединение перехватывается у ResponseWriter.
	if h.ws != nil {
		r.With(h.ownerMiddleware.Middleware).Get("/ws", h.ws.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)
		r.Use(h.ownerMiddleware.Middleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/shop/items", h.ListItems)

			r.Route("/pets", func(r chi.Router) {
				r.Get("/", h.ListPets)
				r.Post("/", h.CreatePet)

				r.Route("/{petID}", func(r chi.Router) {
					r.Get("/", h.GetPet)
					r.Delete("/", h.DeletePet)
					r.Post("/actions/{action}", h.ApplyAction)
					r.Post("/game", h.FinishGame)
					r.Post("/shop/buy", h.Buy)
					r.Get("/purchases", h.GetPurchases)
					r.Get("/inventory", h.GetInventory)
					r.Post("/inventory/use", h.UseItem)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
