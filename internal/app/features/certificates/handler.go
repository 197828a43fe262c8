// internal/app/features/certificates/handler.go
package certificates

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/opethaiwoh/favored/internal/app/features/errors"
	certificatestore "github.com/opethaiwoh/favored/internal/app/store/certificates"
	"github.com/opethaiwoh/favored/internal/app/system/timeouts"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler lets anyone holding a certificate number check that it was issued.
type Handler struct {
	Certificates *certificatestore.Store
	Log          *zap.Logger
	ErrLog       *apierrors.ErrorLogger
}

func NewHandler(db *mongo.Database, errLog *apierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Certificates: certificatestore.New(db),
		Log:          logger,
		ErrLog:       errLog,
	}
}

// Verification is the public face of a certificate. The recipient's email
// is left out.
type Verification struct {
	Number        string    `json:"number"`
	Type          string    `json:"type"`
	ProjectTitle  string    `json:"project_title"`
	RecipientName string    `json:"recipient_name"`
	TeamSize      int       `json:"team_size"`
	BadgeCount    int       `json:"badge_count"`
	IsSoloProject bool      `json:"is_solo_project"`
	IssuedAt      time.Time `json:"issued_at"`
}

func verification(c models.Certificate) Verification {
	return Verification{
		Number:        c.Number,
		Type:          c.Type,
		ProjectTitle:  c.ProjectTitle,
		RecipientName: c.RecipientName,
		TeamSize:      c.TeamSize,
		BadgeCount:    c.BadgeCount,
		IsSoloProject: c.IsSoloProject,
		IssuedAt:      c.IssuedAt,
	}
}

// ServeVerify handles GET /certificates/{number}.
func (h *Handler) ServeVerify(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if number == "" {
		apierrors.Write(w, http.StatusBadRequest, "certificate number required")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "verify certificate")
	defer cancel()

	c, err := h.Certificates.GetByNumber(ctx, number)
	if errors.Is(err, mongo.ErrNoDocuments) {
		apierrors.Write(w, http.StatusNotFound, "certificate not found")
		return
	}
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not verify certificate")
		return
	}
	apierrors.JSON(w, http.StatusOK, verification(c))
}
