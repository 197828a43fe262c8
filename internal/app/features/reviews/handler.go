// internal/app/features/reviews/handler.go
package reviews

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/opethaiwoh/favored/internal/app/features/errors"
	"github.com/opethaiwoh/favored/internal/app/store/audit"
	badgestore "github.com/opethaiwoh/favored/internal/app/store/badges"
	completionstore "github.com/opethaiwoh/favored/internal/app/store/completions"
	"github.com/opethaiwoh/favored/internal/app/system/paging"
	"github.com/opethaiwoh/favored/internal/app/system/timeouts"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// historyLimit caps the audit events returned with one request.
const historyLimit = 100

// Handler serves the reviewer's view of completion requests: the queue of
// submissions awaiting a decision and the detail of any one request.
type Handler struct {
	Requests *completionstore.Store
	Badges   *badgestore.Store
	Audit    *audit.Store
	Log      *zap.Logger
	ErrLog   *apierrors.ErrorLogger
}

func NewHandler(db *mongo.Database, errLog *apierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Requests: completionstore.New(db),
		Badges:   badgestore.New(db),
		Audit:    audit.New(db),
		Log:      logger,
		ErrLog:   errLog,
	}
}

// Detail is one completion request with what it produced and how it got there.
type Detail struct {
	Request models.CompletionRequest `json:"request"`
	Badges  []models.Badge           `json:"badges"`
	History []HistoryEntry           `json:"history"`
}

// HistoryEntry is an audit event as reviewers see it.
type HistoryEntry struct {
	At         time.Time         `json:"at"`
	Event      string            `json:"event"`
	ActorEmail string            `json:"actor_email,omitempty"`
	Success    bool              `json:"success"`
	Reason     string            `json:"reason,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// ServePending handles GET /completions/pending?limit=N.
func (h *Handler) ServePending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list pending completions")
	defer cancel()

	pending, err := h.Requests.ListPending(ctx, paging.ParseLimit(r))
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not load pending completions")
		return
	}
	if pending == nil {
		pending = []models.CompletionRequest{}
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"requests": pending})
}

// ServeDetail handles GET /completions/{requestID}.
func (h *Handler) ServeDetail(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "requestID"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid completion request id")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "completion detail")
	defer cancel()

	req, err := h.Requests.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		apierrors.Write(w, http.StatusNotFound, "completion request not found")
		return
	}
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not load completion request")
		return
	}

	badges, err := h.Badges.ListByRequest(ctx, id)
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not load badges")
		return
	}
	events, err := h.Audit.ListByEntity(ctx, audit.EntityCompletionRequest, id.Hex(), historyLimit)
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not load completion history")
		return
	}

	d := Detail{Request: req, Badges: badges, History: make([]HistoryEntry, 0, len(events))}
	if d.Badges == nil {
		d.Badges = []models.Badge{}
	}
	for _, e := range events {
		d.History = append(d.History, HistoryEntry{
			At:         e.CreatedAt,
			Event:      e.EventType,
			ActorEmail: e.ActorEmail,
			Success:    e.Success,
			Reason:     e.FailureReason,
			Details:    e.Details,
		})
	}
	apierrors.JSON(w, http.StatusOK, d)
}
