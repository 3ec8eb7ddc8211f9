package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/AgentForge/internal/adapter/ws"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub) {
	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Post("/agents", h.SpawnAgent)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Post("/agents/{id}/pause", h.PauseAgent)
		r.Post("/agents/{id}/resume", h.ResumeAgent)
		r.Post("/agents/{id}/terminate", h.TerminateAgent)

		// Observability
		r.Get("/stats", h.Stats)
		r.Get("/events", h.ListEvents)
		r.Get("/units", h.ListUnits)
	})

	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}
}
