package quotations

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotations", h.List)
	r.Post("/quotations", h.Create)
	r.Route("/quotations/{id}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Get("/history", h.History)
		r.Post("/calculate", h.Calculate)
		r.Post("/send", h.Send)
		r.Post("/respond", h.Respond)
		r.Post("/cancel", h.Cancel)
	})
}
