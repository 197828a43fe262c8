// internal/app/features/errors/render.go
package errors

import (
	"net/http"

	"github.com/opethaiwoh/favored/internal/app/system/auth"
	"github.com/opethaiwoh/favored/internal/domain/models"
)

// RequireActor returns the signed-in user as an Actor, or writes a 401.
func RequireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		Write(w, http.StatusUnauthorized, "sign in required")
		return models.Actor{}, false
	}
	return u.Actor(), true
}
