// internal/app/features/reviews/routes.go
package reviews

import (
	"github.com/go-chi/chi/v5"
	"github.com/opethaiwoh/favored/internal/app/system/auth"
)

// Routes mounts under /completions. Only the roles that may approve or
// reject completion requests reach it.
func Routes(h *Handler, sm *auth.SessionManager, reviewerRoles ...string) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(reviewerRoles...))
	r.Get("/pending", h.ServePending)
	r.Get("/{requestID}", h.ServeDetail)
	return r
}
