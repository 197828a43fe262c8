package completion

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	completionstore "github.com/opethaiwoh/favored/internal/app/store/completions"
	"github.com/opethaiwoh/favored/internal/app/system/events"
	"github.com/opethaiwoh/favored/internal/app/system/metrics"
	"github.com/opethaiwoh/favored/internal/app/system/notify"
	"github.com/opethaiwoh/favored/internal/app/workflow/evaluation"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// MemberResult is the outcome of one member's badge, email and in-app
// notification.
type MemberResult struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	BadgeID   string `json:"badge_id,omitempty"`
	Issued    bool   `json:"issued"`
	New       bool   `json:"new"`
	EmailSent bool   `json:"email_sent"`
	Error     string `json:"error,omitempty"`
}

// Summary reports what a finalize or solo run did. Side effect failures
// are counted here and never fail the run.
type Summary struct {
	RequestID           string         `json:"request_id"`
	Completed           bool           `json:"completed"`
	Solo                bool           `json:"solo"`
	BadgesAwarded       int            `json:"badges_awarded"`
	BadgesFailed        int            `json:"badges_failed"`
	EmailsSuccessful    int            `json:"emails_successful"`
	EmailsFailed        int            `json:"emails_failed"`
	EmailsSkipped       int            `json:"emails_skipped"`
	NotificationsFailed int            `json:"notifications_failed"`
	CertificateNumber   string         `json:"certificate_number,omitempty"`
	Members             []MemberResult `json:"members"`
	Message             string         `json:"message"`
}

func (sum *Summary) describe() {
	switch {
	case sum.Solo && sum.Completed:
		sum.Message = "solo project completed; certificate issued"
	case sum.BadgesFailed > 0:
		sum.Message = fmt.Sprintf("%d of %d badges could not be issued; retry to finish",
			sum.BadgesFailed, sum.BadgesFailed+sum.BadgesAwarded)
	case !sum.Completed:
		sum.Message = "badges awarded, but completion could not be recorded; retry to finish"
	case sum.EmailsFailed > 0:
		sum.Message = fmt.Sprintf("badges awarded, but %d of %d emails failed to send",
			sum.EmailsFailed, sum.EmailsFailed+sum.EmailsSuccessful)
	case sum.EmailsSkipped > 0:
		sum.Message = fmt.Sprintf("badges awarded; email is disabled, so %d members were notified in-app only",
			sum.EmailsSkipped)
	default:
		sum.Message = "badges awarded and everyone was notified"
	}
}

type badgePayload struct {
	BadgeID      string   `json:"badgeId"`
	ProjectTitle string   `json:"projectTitle"`
	Category     string   `json:"category"`
	CategoryName string   `json:"categoryName"`
	Icon         string   `json:"icon"`
	Level        string   `json:"level"`
	Contribution string   `json:"contribution"`
	Skills       []string `json:"skills"`
	Notes        string   `json:"notes,omitempty"`
}

// Finalize issues a badge per submitted evaluation, a certificate for the
// admin, then completes the group, closes the originating listing and marks
// the request terminal, in that order.
//
// Each member is handled on its own: a failed badge does not stop the
// others. If any badge or later step fails, the request stays non-terminal
// and ErrIncompleteFinalize is returned with the Summary; calling Finalize
// again resumes, since badges and certificates already issued are found
// rather than duplicated.
func (s *Service) Finalize(ctx context.Context, groupID primitive.ObjectID, actor models.Actor) (Summary, error) {
	const op = "finalize completion"

	g, err := s.loadAsAdmin(ctx, op, groupID, actor)
	if err != nil {
		return Summary{}, err
	}
	req, err := s.liveRequest(ctx, op, groupID)
	if err != nil {
		return Summary{}, err
	}
	if evaluation.Build(req.TeamMembers, initiator(req)).IsSolo() {
		return Summary{}, refuse(op, ErrSoloProject)
	}
	if !req.AdminApproval.Approved {
		return Summary{}, refuse(op, ErrNotApproved)
	}
	if len(req.EvaluationForm.Evaluations) == 0 {
		return Summary{}, refuse(op, ErrWrongPhase, "evaluation has not been submitted")
	}

	sum := Summary{RequestID: req.ID.Hex(), Members: []MemberResult{}}
	for _, ev := range req.EvaluationForm.Evaluations {
		sum.Members = append(sum.Members, s.awardOne(ctx, req, ev, actor, &sum))
	}

	if sum.BadgesFailed > 0 {
		s.transition("finalize", ErrIncompleteFinalize)
		s.audit.CompletionFinalized(ctx, actor, req, sum.BadgesAwarded, sum.BadgesFailed, sum.EmailsFailed)
		sum.describe()
		return sum, fmt.Errorf("%s: %w", op, ErrIncompleteFinalize)
	}

	cert, _, err := s.certificates.Issue(ctx, models.Certificate{
		Type:                models.CertificateProjectCompletion,
		CompletionRequestID: req.ID,
		GroupID:             req.GroupID,
		ProjectTitle:        req.GroupTitle,
		Project:             projectOf(req, g),
		RecipientID:         req.AdminID,
		RecipientEmail:      req.AdminEmail,
		RecipientName:       req.AdminName,
		TeamSize:            req.TeamSize,
		BadgeCount:          sum.BadgesAwarded,
	})
	if err != nil {
		return s.incomplete(ctx, op, "issue certificate", req, actor, sum, err)
	}
	sum.CertificateNumber = cert.Number

	final, err := s.closeOut(ctx, req, g, models.FinalCompletion{
		CertificatesGenerated: true,
		BadgesAwarded:         true,
	})
	if errors.Is(err, completionstore.ErrConflict) {
		return Summary{}, refuse(op, ErrTerminal)
	}
	if err != nil {
		return s.incomplete(ctx, op, "close out", req, actor, sum, err)
	}

	sum.Completed = true
	sum.describe()
	s.transition("finalize", nil)
	s.audit.CompletionFinalized(ctx, actor, final, sum.BadgesAwarded, 0, sum.EmailsFailed)
	s.publish(ctx, events.CompletionFinalized, final, actor, map[string]string{
		"badges_awarded": strconv.Itoa(sum.BadgesAwarded),
		"emails_failed":  strconv.Itoa(sum.EmailsFailed),
		"certificate":    cert.Number,
	})
	return sum, nil
}

// awardOne issues one member's badge, then emails and notifies them in-app.
// A badge that already existed from an earlier attempt is counted but not
// announced again.
func (s *Service) awardOne(ctx context.Context, req models.CompletionRequest, ev models.MemberEvaluation, actor models.Actor, sum *Summary) MemberResult {
	res := MemberResult{Email: ev.MemberEmail, Name: ev.MemberName}

	badge, created, err := s.badges.Issue(ctx, models.Badge{
		CompletionRequestID: req.ID,
		GroupID:             req.GroupID,
		ProjectTitle:        req.GroupTitle,
		Project:             req.Project,
		RecipientEmail:      ev.MemberEmail,
		RecipientName:       ev.MemberName,
		RecipientRole:       ev.Role,
		Category:            ev.BadgeCategory,
		Level:               ev.BadgeLevel,
		Contribution:        ev.Contribution,
		Skills:              ev.SkillsDisplayed,
		AdminNotes:          ev.AdminNotes,
		AwardedByID:         actor.ID,
		AwardedByEmail:      actor.Email,
		AwardedByName:       actor.DisplayName(),
		AwardedAt:           s.now(),
	})
	if err != nil {
		sum.BadgesFailed++
		res.Error = err.Error()
		s.log.Error("badge issue failed", append(logReq(req), zap.String("recipient", ev.MemberEmail), zap.Error(err))...)
		return res
	}
	sum.BadgesAwarded++
	res.Issued = true
	res.New = created
	res.BadgeID = badge.ID.Hex()
	if !created {
		return res
	}
	metrics.BadgesIssued().WithLabelValues(badge.Category).Inc()

	info, _ := models.LookupBadgeCategory(badge.Category)
	sent := s.send(ctx, notify.KindBadgeAwarded, badgePayload{
		BadgeID:      badge.ID.Hex(),
		ProjectTitle: badge.ProjectTitle,
		Category:     badge.Category,
		CategoryName: info.DisplayName,
		Icon:         info.Icon,
		Level:        badge.Level,
		Contribution: badge.Contribution,
		Skills:       badge.Skills,
		Notes:        badge.AdminNotes,
	}, notify.Recipient{Email: ev.MemberEmail, Name: ev.MemberName, Role: ev.Role}, actor, s.link("/me/badges"))
	switch {
	case sent.OK:
		sum.EmailsSuccessful++
		res.EmailSent = true
	case sent.Skipped:
		sum.EmailsSkipped++
	default:
		sum.EmailsFailed++
	}

	if err := s.inApp(ctx, models.Notification{
		RecipientEmail: ev.MemberEmail,
		Type:           models.NotificationBadgeAwarded,
		Title:          "You earned a badge",
		Message:        fmt.Sprintf("%s %s badge for %s.", badge.Level, nameOr(info.DisplayName, badge.Category), badge.ProjectTitle),
		RefType:        "badge",
		RefID:          badge.ID.Hex(),
	}); err != nil {
		sum.NotificationsFailed++
	}
	return res
}

// SoloComplete finishes a group with nobody to evaluate: one solo
// certificate for the admin, no badges. A request is created first when the
// group has none.
func (s *Service) SoloComplete(ctx context.Context, groupID primitive.ObjectID, actor models.Actor) (Summary, error) {
	const op = "complete solo project"

	g, err := s.loadAsAdmin(ctx, op, groupID, actor)
	if err != nil {
		return Summary{}, err
	}
	existing, err := s.findRequest(ctx, op, groupID)
	if err != nil {
		return Summary{}, err
	}
	if existing != nil && existing.IsTerminal() {
		return Summary{}, refuse(op, ErrTerminal)
	}

	var req models.CompletionRequest
	if existing != nil {
		req = *existing
		if !evaluation.Build(req.TeamMembers, initiator(req)).IsSolo() {
			return Summary{}, refuse(op, ErrNotSolo)
		}
	} else {
		members, err := s.members.ActiveMembers(ctx, groupID)
		if err != nil {
			return Summary{}, fmt.Errorf("%s: load members: %w", op, err)
		}
		if !evaluation.Build(members, actor).IsSolo() {
			return Summary{}, refuse(op, ErrNotSolo)
		}
		req, err = s.requests.Create(ctx, models.CompletionRequest{
			GroupID:     g.ID,
			GroupTitle:  g.Title,
			Project:     g.Project,
			AdminID:     actor.ID,
			AdminEmail:  actor.Email,
			AdminName:   actor.DisplayName(),
			Status:      models.CompletionStatusEvaluation,
			Phase:       models.PhaseEvaluation,
			TeamSize:    len(members),
			TeamMembers: members,
			InitiatedAt: s.now(),
		})
		if errors.Is(err, completionstore.ErrDuplicateCompletion) {
			return Summary{}, refuse(op, ErrStateChanged)
		}
		if err != nil {
			return Summary{}, fmt.Errorf("%s: create request: %w", op, err)
		}
	}

	sum := Summary{RequestID: req.ID.Hex(), Solo: true, Members: []MemberResult{}}
	teamSize := req.TeamSize
	if teamSize == 0 {
		teamSize = 1
	}
	cert, _, err := s.certificates.Issue(ctx, models.Certificate{
		Type:                models.CertificateSoloCompletion,
		CompletionRequestID: req.ID,
		GroupID:             req.GroupID,
		ProjectTitle:        req.GroupTitle,
		Project:             projectOf(req, g),
		RecipientID:         req.AdminID,
		RecipientEmail:      req.AdminEmail,
		RecipientName:       req.AdminName,
		TeamSize:            teamSize,
		BadgeCount:          0,
		IsSoloProject:       true,
	})
	if err != nil {
		return s.incomplete(ctx, op, "issue certificate", req, actor, sum, err)
	}
	sum.CertificateNumber = cert.Number

	final, err := s.closeOut(ctx, req, g, models.FinalCompletion{
		CertificatesGenerated: true,
		IsSoloProject:         true,
	})
	if errors.Is(err, completionstore.ErrConflict) {
		return Summary{}, refuse(op, ErrTerminal)
	}
	if err != nil {
		return s.incomplete(ctx, op, "close out", req, actor, sum, err)
	}

	sum.Completed = true
	sum.describe()
	s.transition("solo", nil)
	s.audit.SoloProjectCompleted(ctx, actor, final)
	s.publish(ctx, events.SoloProjectCompleted, final, actor, map[string]string{"certificate": cert.Number})
	return sum, nil
}

// closeOut completes the group, closes the listing and finally marks the
// request terminal. Every step is safe to repeat.
func (s *Service) closeOut(ctx context.Context, req models.CompletionRequest, g models.Group, fc models.FinalCompletion) (models.CompletionRequest, error) {
	at := s.now()
	if err := s.groups.MarkCompleted(ctx, g.ID, at); err != nil {
		return models.CompletionRequest{}, fmt.Errorf("complete group: %w", err)
	}
	if ref := projectOf(req, g); ref != nil && s.listings != nil {
		err := s.listings.Close(ctx, *ref, at)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			s.log.Warn("originating listing not found; skipping close",
				append(logReq(req), zap.String("collection", ref.Collection), zap.String("listing_id", ref.ID.Hex()))...)
		case err != nil:
			return models.CompletionRequest{}, fmt.Errorf("close listing: %w", err)
		}
	}
	fc.Completed = true
	fc.CompletedAt = &at
	return s.requests.Finalize(ctx, req.ID, fc)
}

func (s *Service) incomplete(ctx context.Context, op, step string, req models.CompletionRequest, actor models.Actor, sum Summary, err error) (Summary, error) {
	s.log.Error("completion step failed", append(logReq(req), zap.String("step", step), zap.Error(err))...)
	s.transition(opTransition(op), err)
	if !sum.Solo {
		s.audit.CompletionFinalized(ctx, actor, req, sum.BadgesAwarded, sum.BadgesFailed, sum.EmailsFailed)
	}
	sum.describe()
	return sum, fmt.Errorf("%s: %s: %w: %w", op, step, ErrIncompleteFinalize, err)
}

func opTransition(op string) string {
	if op == "complete solo project" {
		return "solo"
	}
	return "finalize"
}

// projectOf prefers the reference frozen on the request.
func projectOf(req models.CompletionRequest, g models.Group) *models.ProjectRef {
	ref := req.Project
	if ref == nil {
		ref = g.Project
	}
	if ref == nil || !ref.Valid() {
		return nil
	}
	return ref
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
