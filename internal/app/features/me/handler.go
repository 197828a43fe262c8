// internal/app/features/me/handler.go
package me

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/opethaiwoh/favored/internal/app/features/errors"
	applicationstore "github.com/opethaiwoh/favored/internal/app/store/applications"
	badgestore "github.com/opethaiwoh/favored/internal/app/store/badges"
	certificatestore "github.com/opethaiwoh/favored/internal/app/store/certificates"
	notificationstore "github.com/opethaiwoh/favored/internal/app/store/notifications"
	"github.com/opethaiwoh/favored/internal/app/system/paging"
	"github.com/opethaiwoh/favored/internal/app/system/timeouts"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the signed-in user's badges, certificates, applications
// and notifications.
type Handler struct {
	Applications  *applicationstore.Store
	Badges        *badgestore.Store
	Certificates  *certificatestore.Store
	Notifications *notificationstore.Store
	Log           *zap.Logger
	ErrLog        *apierrors.ErrorLogger
}

func NewHandler(db *mongo.Database, errLog *apierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Applications:  applicationstore.New(db),
		Badges:        badgestore.New(db),
		Certificates:  certificatestore.New(db),
		Notifications: notificationstore.New(db),
		Log:           logger,
		ErrLog:        errLog,
	}
}

// ServeBadges handles GET /me/badges.
func (h *Handler) ServeBadges(w http.ResponseWriter, r *http.Request) {
	actor, ok := apierrors.RequireActor(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list badges")
	defer cancel()

	badges, err := h.Badges.ListByRecipient(ctx, actor.Email)
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not load badges")
		return
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"badges": badges})
}

// ServeCertificates handles GET /me/certificates.
func (h *Handler) ServeCertificates(w http.ResponseWriter, r *http.Request) {
	actor, ok := apierrors.RequireActor(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list certificates")
	defer cancel()

	certs, err := h.Certificates.ListByRecipient(ctx, actor.Email)
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not load certificates")
		return
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"certificates": certs})
}

// ServeApplications handles GET /me/applications. The user's applications
// of every kind are returned, grouped by kind.
func (h *Handler) ServeApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := apierrors.RequireActor(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list applications")
	defer cancel()

	byKind := map[string][]models.Application{}
	for _, kind := range []string{models.ApplicationKindEventGroup, models.ApplicationKindProject} {
		apps, err := h.Applications.ListByApplicant(ctx, kind, actor.Email)
		if err != nil {
			h.ErrLog.HandleServerError(w, r, err, "could not load applications")
			return
		}
		byKind[kind] = apps
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"applications": byKind})
}

// ServeNotifications handles GET /me/notifications?unread=1&limit=20. Both
// notifications addressed to the user and to the user's role are listed.
func (h *Handler) ServeNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := apierrors.RequireActor(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list notifications")
	defer cancel()

	items, err := h.Notifications.ListForUser(ctx, actor.Email, actor.Role, paging.ParseFlag(r, "unread"), paging.ParseLimit(r))
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not load notifications")
		return
	}
	unread, err := h.Notifications.CountUnread(ctx, actor.Email, actor.Role)
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not count notifications")
		return
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"notifications": items, "unread": unread})
}

// HandleMarkRead handles POST /me/notifications/{id}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := apierrors.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "mark notification read")
	defer cancel()

	err = h.Notifications.MarkRead(ctx, id, actor.Email, actor.Role)
	if errors.Is(err, mongo.ErrNoDocuments) {
		apierrors.Write(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.ErrLog.HandleServerError(w, r, err, "could not update notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
