// internal/app/features/completion/handler.go
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/opethaiwoh/favored/internal/app/features/errors"
	"github.com/opethaiwoh/favored/internal/app/system/timeouts"
	"github.com/opethaiwoh/favored/internal/app/workflow/completion"
	"github.com/opethaiwoh/favored/internal/app/workflow/evaluation"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

// Workflow is the completion service as the handlers use it.
type Workflow interface {
	State(ctx context.Context, groupID primitive.ObjectID) (completion.State, error)
	EvaluationForm(ctx context.Context, groupID primitive.ObjectID, actor models.Actor) (evaluation.Form, error)
	Initiate(ctx context.Context, groupID primitive.ObjectID, actor models.Actor) (models.CompletionRequest, error)
	Submit(ctx context.Context, groupID primitive.ObjectID, actor models.Actor, evals []models.MemberEvaluation) (models.CompletionRequest, error)
	Approve(ctx context.Context, groupID primitive.ObjectID, reviewer models.Actor) (completion.Decision, error)
	Reject(ctx context.Context, groupID primitive.ObjectID, reviewer models.Actor, reason string) (completion.Decision, error)
	Finalize(ctx context.Context, groupID primitive.ObjectID, actor models.Actor) (completion.Summary, error)
	SoloComplete(ctx context.Context, groupID primitive.ObjectID, actor models.Actor) (completion.Summary, error)
}

// Handler serves the group completion workflow.
type Handler struct {
	Svc    Workflow
	Log    *zap.Logger
	ErrLog *apierrors.ErrorLogger
}

func NewHandler(svc Workflow, errLog *apierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Svc: svc, Log: logger, ErrLog: errLog}
}

type submitRequest struct {
	Evaluations []models.MemberEvaluation `json:"evaluations"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// begin resolves the acting user and the group id. It writes the error
// response itself and reports false when the request cannot proceed.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request) (models.Actor, primitive.ObjectID, bool) {
	actor, ok := apierrors.RequireActor(w, r)
	if !ok {
		return models.Actor{}, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid group id")
		return models.Actor{}, primitive.NilObjectID, false
	}
	return actor, id, true
}

// ServeState handles GET /groups/{id}/completion.
func (h *Handler) ServeState(w http.ResponseWriter, r *http.Request) {
	_, id, ok := h.begin(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "completion state")
	defer cancel()

	st, err := h.Svc.State(ctx, id)
	if err != nil {
		h.fail(w, r, err, "could not load completion state")
		return
	}
	apierrors.JSON(w, http.StatusOK, st)
}

// ServeForm handles GET /groups/{id}/completion/evaluation-form.
func (h *Handler) ServeForm(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.begin(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "evaluation form")
	defer cancel()

	form, err := h.Svc.EvaluationForm(ctx, id, actor)
	if err != nil {
		h.fail(w, r, err, "could not build evaluation form")
		return
	}
	apierrors.JSON(w, http.StatusOK, form)
}

// HandleInitiate handles POST /groups/{id}/completion/initiate.
func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.begin(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "initiate completion")
	defer cancel()

	req, err := h.Svc.Initiate(ctx, id, actor)
	if err != nil {
		h.fail(w, r, err, "could not initiate completion")
		return
	}
	apierrors.JSON(w, http.StatusCreated, req)
}

// HandleSubmit handles POST /groups/{id}/completion/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.begin(w, r)
	if !ok {
		return
	}
	var body submitRequest
	if !decode(w, r, &body) {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "submit evaluations")
	defer cancel()

	req, err := h.Svc.Submit(ctx, id, actor, body.Evaluations)
	if err != nil {
		h.fail(w, r, err, "could not submit evaluations")
		return
	}
	apierrors.JSON(w, http.StatusOK, req)
}

// HandleApprove handles POST /groups/{id}/completion/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.begin(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "approve completion")
	defer cancel()

	d, err := h.Svc.Approve(ctx, id, actor)
	if err != nil {
		h.fail(w, r, err, "could not approve completion")
		return
	}
	apierrors.JSON(w, http.StatusOK, d)
}

// HandleReject handles POST /groups/{id}/completion/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.begin(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if !decode(w, r, &body) {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "reject completion")
	defer cancel()

	d, err := h.Svc.Reject(ctx, id, actor, body.Reason)
	if err != nil {
		h.fail(w, r, err, "could not reject completion")
		return
	}
	apierrors.JSON(w, http.StatusOK, d)
}

// HandleFinalize handles POST /groups/{id}/completion/finalize. A run that
// stopped part way answers 202 with the summary so the admin can retry.
func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.begin(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "finalize completion")
	defer cancel()

	sum, err := h.Svc.Finalize(ctx, id, actor)
	h.summary(w, r, sum, err, "could not finalize completion")
}

// HandleSolo handles POST /groups/{id}/completion/solo.
func (h *Handler) HandleSolo(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.begin(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "solo completion")
	defer cancel()

	sum, err := h.Svc.SoloComplete(ctx, id, actor)
	h.summary(w, r, sum, err, "could not complete solo project")
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request, sum completion.Summary, err error, msg string) {
	switch {
	case err == nil:
		apierrors.JSON(w, http.StatusOK, sum)
	case errors.Is(err, completion.ErrIncompleteFinalize):
		h.Log.Warn("completion stopped part way",
			zap.String("request_id", sum.RequestID),
			zap.Error(err))
		apierrors.JSON(w, http.StatusAccepted, sum)
	default:
		h.fail(w, r, err, msg)
	}
}

// fail maps workflow errors to responses. Anything unrecognised is a 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var verr *evaluation.ValidationError
	if errors.As(err, &verr) {
		apierrors.JSON(w, http.StatusUnprocessableEntity, apierrors.Body{
			Error:   "invalid",
			Message: verr.Error(),
			Detail:  verr.Problems,
		})
		return
	}
	var perr *completion.PreconditionError
	if errors.As(err, &perr) {
		status := statusFor(err)
		apierrors.JSON(w, status, apierrors.Body{
			Error:      apierrors.Code(status),
			Message:    perr.Error(),
			Violations: perr.Violations,
		})
		return
	}
	h.ErrLog.HandleServerError(w, r, err, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, completion.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, completion.ErrNotGroupAdmin), errors.Is(err, completion.ErrNotReviewer):
		return http.StatusForbidden
	case errors.Is(err, completion.ErrReasonRequired):
		return http.StatusBadRequest
	}
	return http.StatusConflict
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
