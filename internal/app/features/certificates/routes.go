// internal/app/features/certificates/routes.go
package certificates

import "github.com/go-chi/chi/v5"

// Routes mounts under /certificates. Verification needs no session.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{number}", h.ServeVerify)
	return r
}
