// internal/app/features/applications/routes.go
package applications

import (
	"github.com/go-chi/chi/v5"
	"github.com/opethaiwoh/favored/internal/app/system/auth"
)

// Routes mounts under /applications. {id} is the target for join, list and
// stream, and the application for approve and reject.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Post("/{kind}/bulk-approve", h.HandleBulkApprove)
	r.Post("/{kind}/bulk-reject", h.HandleBulkReject)
	r.Post("/{kind}/{id}", h.HandleJoin)
	r.Get("/{kind}/{id}", h.ServeList)
	r.Get("/{kind}/{id}/stream", h.ServeStream)
	r.Post("/{kind}/{id}/approve", h.HandleApprove)
	r.Post("/{kind}/{id}/reject", h.HandleReject)
	return r
}
