package completion

import (
	"context"
	"fmt"

	"github.com/opethaiwoh/favored/internal/app/workflow/evaluation"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// State is the admin-facing view of a group's completion.
type State struct {
	Group       models.Group              `json:"group"`
	Request     *models.CompletionRequest `json:"request,omitempty"`
	CurrentStep int                       `json:"current_step"`
	IsSolo      bool                      `json:"is_solo"`
}

// State returns the group's request, if any, with the derived step and
// whether the group has anybody to evaluate.
func (s *Service) State(ctx context.Context, groupID primitive.ObjectID) (State, error) {
	const op = "completion state"

	g, err := s.loadGroup(ctx, op, groupID)
	if err != nil {
		return State{}, err
	}
	req, err := s.findRequest(ctx, op, groupID)
	if err != nil {
		return State{}, err
	}

	st := State{Group: g, Request: req, CurrentStep: models.CurrentStep(req, g)}
	if req != nil {
		st.IsSolo = evaluation.Build(req.TeamMembers, initiator(*req)).IsSolo()
		return st, nil
	}
	members, err := s.members.ActiveMembers(ctx, groupID)
	if err != nil {
		return State{}, fmt.Errorf("%s: load members: %w", op, err)
	}
	admin := models.Actor{ID: g.AdminID, Email: g.AdminEmail}
	st.IsSolo = evaluation.Build(members, admin).IsSolo()
	return st, nil
}

// EvaluationForm returns the form the admin should edit: the stored
// evaluations when there are some (after a rejection, or for review), a
// fresh form built from the frozen snapshot otherwise. Before initiation it
// previews the form from the live membership.
func (s *Service) EvaluationForm(ctx context.Context, groupID primitive.ObjectID, actor models.Actor) (evaluation.Form, error) {
	const op = "evaluation form"

	if _, err := s.loadAsAdmin(ctx, op, groupID, actor); err != nil {
		return evaluation.Form{}, err
	}
	req, err := s.findRequest(ctx, op, groupID)
	if err != nil {
		return evaluation.Form{}, err
	}
	if req == nil {
		members, err := s.members.ActiveMembers(ctx, groupID)
		if err != nil {
			return evaluation.Form{}, fmt.Errorf("%s: load members: %w", op, err)
		}
		return evaluation.Build(members, actor), nil
	}
	if len(req.EvaluationForm.Evaluations) > 0 {
		return evaluation.Form{Evaluations: req.EvaluationForm.Evaluations}, nil
	}
	return evaluation.Build(req.TeamMembers, initiator(*req)), nil
}
