// internal/app/features/completion/routes.go
package completion

import (
	"github.com/go-chi/chi/v5"
	"github.com/opethaiwoh/favored/internal/app/system/auth"
)

// Routes mounts under /groups/{id}/completion. Reviewer checks for approve
// and reject happen in the workflow, whose reviewer role is configurable.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeState)
	r.Get("/evaluation-form", h.ServeForm)
	r.Post("/initiate", h.HandleInitiate)
	r.Post("/submit", h.HandleSubmit)
	r.Post("/approve", h.HandleApprove)
	r.Post("/reject", h.HandleReject)
	r.Post("/finalize", h.HandleFinalize)
	r.Post("/solo", h.HandleSolo)
	return r
}
