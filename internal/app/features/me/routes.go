// internal/app/features/me/routes.go
package me

import (
	"github.com/go-chi/chi/v5"
	"github.com/opethaiwoh/favored/internal/app/system/auth"
)

// Routes mounts under /me.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/badges", h.ServeBadges)
	r.Get("/certificates", h.ServeCertificates)
	r.Get("/applications", h.ServeApplications)
	r.Get("/notifications", h.ServeNotifications)
	r.Post("/notifications/{id}/read", h.HandleMarkRead)
	return r
}
