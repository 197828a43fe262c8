// internal/app/features/applications/handler.go
package applications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/opethaiwoh/favored/internal/app/features/errors"
	"github.com/opethaiwoh/favored/internal/app/system/ratelimit"
	"github.com/opethaiwoh/favored/internal/app/system/timeouts"
	"github.com/opethaiwoh/favored/internal/app/workflow/membership"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	maxBody     = 64 << 10
	maxBulkSize = 200
)

// Workflow is the membership service as the handlers use it.
type Workflow interface {
	RequestToJoin(ctx context.Context, applicant models.Actor, jr membership.JoinRequest) (membership.JoinResult, error)
	Approve(ctx context.Context, kind string, id primitive.ObjectID, reviewer models.Actor) (membership.Review, error)
	Reject(ctx context.Context, kind string, id primitive.ObjectID, reviewer models.Actor, reason string) (membership.Review, error)
	BulkApprove(ctx context.Context, kind string, ids []primitive.ObjectID, reviewer models.Actor) membership.BulkResult
	BulkReject(ctx context.Context, kind string, ids []primitive.ObjectID, reviewer models.Actor, reason string) membership.BulkResult
	List(ctx context.Context, kind string, targetID primitive.ObjectID, actor models.Actor, status string) ([]membership.View, error)
	Subscribe(ctx context.Context, kind string, targetID primitive.ObjectID, actor models.Actor, cb func([]membership.View)) (func(), error)
}

// Handler serves join requests and their review.
type Handler struct {
	Svc     Workflow
	Limiter *ratelimit.JoinLimiter
	Log     *zap.Logger
	ErrLog  *apierrors.ErrorLogger
}

// NewHandler builds a Handler. A nil limiter disables throttling.
func NewHandler(svc Workflow, limiter *ratelimit.JoinLimiter, errLog *apierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Svc: svc, Limiter: limiter, Log: logger, ErrLog: errLog}
}

type joinRequest struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type bulkRequest struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason"`
}

type joinConflict struct {
	apierrors.Body
	Outcome     string             `json:"outcome"`
	Application models.Application `json:"application"`
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (models.Actor, string, primitive.ObjectID, bool) {
	actor, ok := apierrors.RequireActor(w, r)
	if !ok {
		return models.Actor{}, "", primitive.NilObjectID, false
	}
	kind := chi.URLParam(r, "kind")
	if _, known := models.ApplicationCollection(kind); !known {
		apierrors.Write(w, http.StatusNotFound, "unknown application kind")
		return models.Actor{}, "", primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid id")
		return models.Actor{}, "", primitive.NilObjectID, false
	}
	return actor, kind, id, true
}

// HandleJoin handles POST /applications/{kind}/{id}, where id is the
// event group or project listing.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	actor, kind, targetID, ok := h.params(w, r)
	if !ok {
		return
	}
	var body joinRequest
	if !decodeOptional(w, r, &body) {
		return
	}
	if h.Limiter != nil {
		if allowed, msg := h.Limiter.Check(r, actor.Email); !allowed {
			apierrors.Write(w, http.StatusTooManyRequests, msg)
			return
		}
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "request to join")
	defer cancel()

	res, err := h.Svc.RequestToJoin(ctx, actor, membership.JoinRequest{
		Kind:     kind,
		TargetID: targetID,
		Role:     body.Role,
		Message:  body.Message,
	})
	switch {
	case err == nil:
		apierrors.JSON(w, http.StatusCreated, res)
	case errors.Is(err, membership.ErrAlreadyPending), errors.Is(err, membership.ErrAlreadyMember):
		apierrors.JSON(w, http.StatusConflict, joinConflict{
			Body:        apierrors.Body{Error: res.Outcome, Message: err.Error()},
			Outcome:     res.Outcome,
			Application: res.Application,
		})
	default:
		h.fail(w, r, err, "could not create application")
	}
}

// ServeList handles GET /applications/{kind}/{id}?status=pending.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actor, kind, targetID, ok := h.params(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list applications")
	defer cancel()

	views, err := h.Svc.List(ctx, kind, targetID, actor, r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, r, err, "could not list applications")
		return
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"applications": views})
}

// HandleApprove handles POST /applications/{kind}/{id}/approve, where id
// is the application.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	actor, kind, id, ok := h.params(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "approve application")
	defer cancel()

	rev, err := h.Svc.Approve(ctx, kind, id, actor)
	if err != nil {
		h.fail(w, r, err, "could not approve application")
		return
	}
	apierrors.JSON(w, http.StatusOK, rev)
}

// HandleReject handles POST /applications/{kind}/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	actor, kind, id, ok := h.params(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if !decodeOptional(w, r, &body) {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "reject application")
	defer cancel()

	rev, err := h.Svc.Reject(ctx, kind, id, actor, body.Reason)
	if err != nil {
		h.fail(w, r, err, "could not reject application")
		return
	}
	apierrors.JSON(w, http.StatusOK, rev)
}

// HandleBulkApprove handles POST /applications/{kind}/bulk-approve.
func (h *Handler) HandleBulkApprove(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, false)
}

// HandleBulkReject handles POST /applications/{kind}/bulk-reject.
func (h *Handler) HandleBulkReject(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, true)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request, reject bool) {
	actor, ok := apierrors.RequireActor(w, r)
	if !ok {
		return
	}
	kind := chi.URLParam(r, "kind")
	if _, known := models.ApplicationCollection(kind); !known {
		apierrors.Write(w, http.StatusNotFound, "unknown application kind")
		return
	}
	var body bulkRequest
	if !decode(w, r, &body) {
		return
	}
	if len(body.IDs) == 0 || len(body.IDs) > maxBulkSize {
		apierrors.Write(w, http.StatusBadRequest, "ids must list between 1 and 200 applications")
		return
	}
	ids := make([]primitive.ObjectID, 0, len(body.IDs))
	for _, s := range body.IDs {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			apierrors.Write(w, http.StatusBadRequest, "invalid id "+s)
			return
		}
		ids = append(ids, id)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Batch(), h.Log, "bulk review applications")
	defer cancel()

	var res membership.BulkResult
	if reject {
		res = h.Svc.BulkReject(ctx, kind, ids, actor, body.Reason)
	} else {
		res = h.Svc.BulkApprove(ctx, kind, ids, actor)
	}
	apierrors.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := 0
	switch {
	case errors.Is(err, membership.ErrInvalidRequest), errors.Is(err, membership.ErrUnknownKind):
		status = http.StatusBadRequest
	case errors.Is(err, membership.ErrNotTargetAdmin):
		status = http.StatusForbidden
	case errors.Is(err, membership.ErrTargetNotFound), errors.Is(err, membership.ErrApplicationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, membership.ErrNotPending),
		errors.Is(err, membership.ErrAlreadyPending),
		errors.Is(err, membership.ErrAlreadyMember):
		status = http.StatusConflict
	case errors.Is(err, membership.ErrSubscriptionDisabled):
		status = http.StatusServiceUnavailable
	}
	if status == 0 {
		h.ErrLog.HandleServerError(w, r, err, msg)
		return
	}
	apierrors.Write(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptional is decode for endpoints whose body may be absent. An empty
// body leaves v untouched whether or not the client declared its length.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return true
		}
		apierrors.Write(w, http.StatusBadRequest, "request body required")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		apierrors.Write(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
