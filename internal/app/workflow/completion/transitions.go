package completion

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	completionstore "github.com/opethaiwoh/favored/internal/app/store/completions"
	"github.com/opethaiwoh/favored/internal/app/system/events"
	"github.com/opethaiwoh/favored/internal/app/system/htmlsanitize"
	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/app/system/notify"
	"github.com/opethaiwoh/favored/internal/app/system/txn"
	"github.com/opethaiwoh/favored/internal/app/workflow/evaluation"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const refCompletionRequest = "completion_request"

// Initiate starts the workflow for a group: it snapshots the active members
// into a new request in the evaluation phase and flags the group as
// completing. Both writes share a transaction when the deployment supports
// one; otherwise the request is created first and a repeated call repairs
// the group flag before reporting ErrAlreadyInitiated.
func (s *Service) Initiate(ctx context.Context, groupID primitive.ObjectID, actor models.Actor) (models.CompletionRequest, error) {
	const op = "initiate completion"

	g, err := s.loadAsAdmin(ctx, op, groupID, actor)
	if err != nil {
		return models.CompletionRequest{}, err
	}
	existing, err := s.findRequest(ctx, op, groupID)
	if err != nil {
		return models.CompletionRequest{}, err
	}
	if existing != nil {
		if existing.IsTerminal() {
			return models.CompletionRequest{}, refuse(op, ErrTerminal)
		}
		if err := s.groups.MarkCompleting(ctx, groupID); err != nil {
			return models.CompletionRequest{}, fmt.Errorf("%s: resume group update: %w", op, err)
		}
		return *existing, refuse(op, ErrAlreadyInitiated)
	}

	members, err := s.members.ActiveMembers(ctx, groupID)
	if err != nil {
		return models.CompletionRequest{}, fmt.Errorf("%s: load members: %w", op, err)
	}

	adminEmail := actor.Email
	if adminEmail == "" {
		adminEmail = g.AdminEmail
	}
	draft := models.CompletionRequest{
		GroupID:     g.ID,
		GroupTitle:  g.Title,
		Project:     g.Project,
		AdminID:     actor.ID,
		AdminEmail:  adminEmail,
		AdminName:   actor.DisplayName(),
		Status:      models.CompletionStatusEvaluation,
		Phase:       models.PhaseEvaluation,
		TeamSize:    len(members),
		TeamMembers: members,
		InitiatedAt: s.now(),
	}

	var created models.CompletionRequest
	write := func(ctx context.Context) error {
		req, err := s.requests.Create(ctx, draft)
		if err != nil {
			return err
		}
		created = req
		return s.groups.MarkCompleting(ctx, groupID)
	}

	err = txn.ErrNotSupported
	if s.tx != nil {
		err = s.tx.Run(ctx, write)
	}
	if errors.Is(err, txn.ErrNotSupported) {
		err = write(ctx)
	}
	s.transition("initiate", err)
	if errors.Is(err, completionstore.ErrDuplicateCompletion) {
		return models.CompletionRequest{}, refuse(op, ErrAlreadyInitiated)
	}
	if err != nil {
		return models.CompletionRequest{}, fmt.Errorf("%s: %w", op, err)
	}

	s.audit.CompletionInitiated(ctx, actor, created)
	s.publish(ctx, events.CompletionInitiated, created, actor, map[string]string{
		"team_size": strconv.Itoa(created.TeamSize),
	})
	return created, nil
}

// Submit stores the admin's evaluations and hands the request to review.
// Every evaluation must carry a known category, level and contribution and
// name a distinct evaluable member; otherwise an *evaluation.ValidationError
// lists the problems and nothing is written.
func (s *Service) Submit(ctx context.Context, groupID primitive.ObjectID, actor models.Actor, evals []models.MemberEvaluation) (models.CompletionRequest, error) {
	const op = "submit evaluation"

	g, err := s.loadAsAdmin(ctx, op, groupID, actor)
	if err != nil {
		return models.CompletionRequest{}, err
	}
	req, err := s.liveRequest(ctx, op, groupID)
	if err != nil {
		return models.CompletionRequest{}, err
	}
	if req.Status != models.CompletionStatusEvaluation {
		return models.CompletionRequest{}, refuse(op, ErrWrongPhase, "evaluation was already submitted")
	}

	roster := evaluation.Build(req.TeamMembers, initiator(req))
	if roster.IsSolo() {
		return models.CompletionRequest{}, refuse(op, ErrSoloProject)
	}

	evals = evaluation.Normalize(evals)
	if err := evaluation.Validate(evals, roster.Evaluations); err != nil {
		return models.CompletionRequest{}, err
	}
	fillFromRoster(evals, roster.Evaluations)

	updated, err := s.requests.SubmitEvaluation(ctx, req.ID, evals, s.now())
	s.transition("submit", err)
	if errors.Is(err, completionstore.ErrConflict) {
		return models.CompletionRequest{}, refuse(op, ErrStateChanged)
	}
	if err != nil {
		return models.CompletionRequest{}, fmt.Errorf("%s: %w", op, err)
	}

	for _, role := range s.ReviewerRoles() {
		_ = s.inApp(ctx, models.Notification{
			RecipientRole: role,
			Type:          models.NotificationCompletionReview,
			Title:         "Completion review requested",
			Message:       fmt.Sprintf("%s submitted %d evaluations for %s.", actor.DisplayName(), len(evals), g.Title),
			RefType:       refCompletionRequest,
			RefID:         updated.ID.Hex(),
		})
	}
	s.audit.EvaluationSubmitted(ctx, actor, updated)
	s.publish(ctx, events.EvaluationSubmitted, updated, actor, map[string]string{
		"evaluations": strconv.Itoa(len(evals)),
	})
	return updated, nil
}

// fillFromRoster copies the snapshot name and role onto evaluations that
// arrived without them.
func fillFromRoster(evals, roster []models.MemberEvaluation) {
	byEmail := make(map[string]models.MemberEvaluation, len(roster))
	for _, r := range roster {
		byEmail[normalize.Email(r.MemberEmail)] = r
	}
	for i := range evals {
		r, ok := byEmail[normalize.Email(evals[i].MemberEmail)]
		if !ok {
			continue
		}
		if evals[i].MemberName == "" || evals[i].MemberName == evals[i].MemberEmail {
			evals[i].MemberName = r.MemberName
		}
		if evals[i].Role == "" {
			evals[i].Role = r.Role
		}
	}
}

// Decision is the result of a reviewer action. Email is the best-effort
// notification to the group admin.
type Decision struct {
	Request models.CompletionRequest `json:"request"`
	Email   notify.Result            `json:"email"`
}

type decisionPayload struct {
	GroupID    string `json:"groupId"`
	GroupTitle string `json:"groupTitle"`
	Reviewer   string `json:"reviewer"`
	Reason     string `json:"reason,omitempty"`
}

// Approve records a reviewer's approval. The group admin can then
// finalize.
func (s *Service) Approve(ctx context.Context, groupID primitive.ObjectID, reviewer models.Actor) (Decision, error) {
	const op = "approve completion"

	if !s.IsReviewer(reviewer) {
		return Decision{}, refuse(op, ErrNotReviewer)
	}
	req, err := s.reviewable(ctx, op, groupID)
	if err != nil {
		return Decision{}, err
	}

	updated, err := s.requests.Approve(ctx, req.ID, reviewer.Email, s.now())
	s.transition("approve", err)
	if errors.Is(err, completionstore.ErrConflict) {
		return Decision{}, refuse(op, ErrStateChanged)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	d := Decision{Request: updated}
	d.Email = s.send(ctx, notify.KindCompletionApproved, decisionPayload{
		GroupID:    updated.GroupID.Hex(),
		GroupTitle: updated.GroupTitle,
		Reviewer:   reviewer.DisplayName(),
	}, adminRecipient(updated), reviewer, s.groupLink(updated.GroupID))

	_ = s.inApp(ctx, models.Notification{
		RecipientEmail: updated.AdminEmail,
		Type:           models.NotificationCompletionApproved,
		Title:          "Completion approved",
		Message:        fmt.Sprintf("%s is approved. You can now award badges.", updated.GroupTitle),
		RefType:        refCompletionRequest,
		RefID:          updated.ID.Hex(),
	})
	s.audit.CompletionApproved(ctx, reviewer, updated)
	s.publish(ctx, events.CompletionApproved, updated, reviewer, nil)
	return d, nil
}

// Reject sends the request back to the group admin with a reason. The
// admin may edit and resubmit.
func (s *Service) Reject(ctx context.Context, groupID primitive.ObjectID, reviewer models.Actor, reason string) (Decision, error) {
	const op = "reject completion"

	if !s.IsReviewer(reviewer) {
		return Decision{}, refuse(op, ErrNotReviewer)
	}
	reason = htmlsanitize.PlainText(reason)
	if reason == "" {
		return Decision{}, refuse(op, ErrReasonRequired)
	}
	req, err := s.reviewable(ctx, op, groupID)
	if err != nil {
		return Decision{}, err
	}

	updated, err := s.requests.Reject(ctx, req.ID, reviewer.Email, reason, s.now())
	s.transition("reject", err)
	if errors.Is(err, completionstore.ErrConflict) {
		return Decision{}, refuse(op, ErrStateChanged)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	d := Decision{Request: updated}
	d.Email = s.send(ctx, notify.KindCompletionRejected, decisionPayload{
		GroupID:    updated.GroupID.Hex(),
		GroupTitle: updated.GroupTitle,
		Reviewer:   reviewer.DisplayName(),
		Reason:     reason,
	}, adminRecipient(updated), reviewer, s.groupLink(updated.GroupID))

	_ = s.inApp(ctx, models.Notification{
		RecipientEmail: updated.AdminEmail,
		Type:           models.NotificationCompletionRejected,
		Title:          "Completion needs changes",
		Message:        fmt.Sprintf("%s was sent back: %s", updated.GroupTitle, reason),
		RefType:        refCompletionRequest,
		RefID:          updated.ID.Hex(),
	})
	s.audit.CompletionRejected(ctx, reviewer, updated, reason)
	s.publish(ctx, events.CompletionRejected, updated, reviewer, map[string]string{"reason": reason})
	return d, nil
}

// reviewable loads a request that is waiting for a reviewer decision.
func (s *Service) reviewable(ctx context.Context, op string, groupID primitive.ObjectID) (models.CompletionRequest, error) {
	if _, err := s.loadGroup(ctx, op, groupID); err != nil {
		return models.CompletionRequest{}, err
	}
	req, err := s.liveRequest(ctx, op, groupID)
	if err != nil {
		return models.CompletionRequest{}, err
	}
	if req.Status != models.CompletionStatusPendingApproval {
		return models.CompletionRequest{}, refuse(op, ErrWrongPhase, "evaluation has not been submitted")
	}
	if req.AdminApproval.Approved {
		return models.CompletionRequest{}, refuse(op, ErrWrongPhase, "already approved")
	}
	return req, nil
}

func adminRecipient(req models.CompletionRequest) notify.Recipient {
	name := req.AdminName
	if name == "" {
		name = req.AdminEmail
	}
	return notify.Recipient{Email: req.AdminEmail, Name: name, Role: "group_admin"}
}

func logReq(req models.CompletionRequest) []zap.Field {
	return []zap.Field{
		zap.String("completion_request_id", req.ID.Hex()),
		zap.String("group_id", req.GroupID.Hex()),
	}
}
