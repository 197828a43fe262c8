// Package membership runs join requests for event groups and project
// teams: pending applications are approved or rejected once, and a rejected
// applicant may apply again.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	applicationstore "github.com/opethaiwoh/favored/internal/app/store/applications"
	"github.com/opethaiwoh/favored/internal/app/store/audit"
	"github.com/opethaiwoh/favored/internal/app/system/auditlog"
	"github.com/opethaiwoh/favored/internal/app/system/events"
	"github.com/opethaiwoh/favored/internal/app/system/htmlsanitize"
	"github.com/opethaiwoh/favored/internal/app/system/metrics"
	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/app/system/notify"
	"github.com/opethaiwoh/favored/internal/app/system/watch"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrUnknownKind          = errors.New("unknown application kind")
	ErrTargetNotFound       = errors.New("target not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrAlreadyPending       = errors.New("already_pending")
	ErrAlreadyMember        = errors.New("already_member")
	ErrNotPending           = errors.New("application has already been reviewed")
	ErrNotTargetAdmin       = errors.New("only an admin of the target can review applications")
	ErrInvalidRequest       = errors.New("invalid application")
	ErrSubscriptionDisabled = errors.New("live subscriptions are not configured")
)

// Applications stores applications of every kind.
type Applications interface {
	Create(ctx context.Context, app models.Application) (models.Application, error)
	Get(ctx context.Context, kind string, id primitive.ObjectID) (models.Application, error)
	FindOpen(ctx context.Context, kind string, targetID primitive.ObjectID, email string) (models.Application, error)
	Decide(ctx context.Context, kind string, id primitive.ObjectID, status string, reviewer models.Actor, reason string, at time.Time) (models.Application, error)
	ListByTarget(ctx context.Context, kind string, targetID primitive.ObjectID, status string) ([]models.Application, error)
}

// Targets resolves a target to its title and admins.
type Targets interface {
	Resolve(ctx context.Context, kind string, id primitive.ObjectID) (models.Target, error)
}

// Notifications stores in-app notifications.
type Notifications interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
}

// WatchFunc starts a change subscription on kind's collection and returns
// its stop function.
type WatchFunc func(kind string, filter bson.M, refresh watch.Refresh) (stop func(), err error)

// Deps wires a Service. Notify, Events, Audit, Watch and Log are optional.
type Deps struct {
	Applications  Applications
	Targets       Targets
	Notifications Notifications

	Notify notify.Port
	Events events.Publisher
	Audit  *auditlog.Logger
	Watch  WatchFunc
	Log    *zap.Logger

	BaseURL string
	Now     func() time.Time
}

type Service struct {
	apps    Applications
	targets Targets
	notes   Notifications
	notify  notify.Port
	events  events.Publisher
	audit   *auditlog.Logger
	watch   WatchFunc
	log     *zap.Logger
	baseURL string
	now     func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		apps:    d.Applications,
		targets: d.Targets,
		notes:   d.Notifications,
		notify:  d.Notify,
		events:  d.Events,
		audit:   d.Audit,
		watch:   d.Watch,
		log:     d.Log,
		baseURL: strings.TrimRight(d.BaseURL, "/"),
		now:     d.Now,
	}
	if s.notify == nil {
		s.notify = notify.Nop{}
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

var validate = validator.New()

// JoinRequest is what an applicant submits.
type JoinRequest struct {
	Kind     string             `json:"kind" validate:"required,oneof=event_group project"`
	TargetID primitive.ObjectID `json:"target_id" validate:"required"`
	Role     string             `json:"role" validate:"omitempty,max=40"`
	Message  string             `json:"message" validate:"max=2000"`
}

// Outcome values reported by RequestToJoin.
const (
	OutcomeCreated        = "created"
	OutcomeAlreadyPending = "already_pending"
	OutcomeAlreadyMember  = "already_member"
)

// JoinResult reports a join request. On a duplicate, Application is the
// existing open application and the error is ErrAlreadyPending or
// ErrAlreadyMember.
type JoinResult struct {
	Outcome     string             `json:"outcome"`
	Application models.Application `json:"application"`
	Emails      []notify.Result    `json:"emails,omitempty"`
}

type applicationPayload struct {
	ApplicationID string `json:"applicationId"`
	Kind          string `json:"kind"`
	TargetID      string `json:"targetId"`
	TargetTitle   string `json:"targetTitle"`
	Applicant     string `json:"applicant"`
	ApplicantMail string `json:"applicantEmail"`
	Role          string `json:"role"`
	Message       string `json:"message,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func payload(app models.Application) applicationPayload {
	return applicationPayload{
		ApplicationID: app.ID.Hex(),
		Kind:          app.Kind,
		TargetID:      app.TargetID.Hex(),
		TargetTitle:   app.TargetTitle,
		Applicant:     app.ApplicantName,
		ApplicantMail: app.ApplicantEmail,
		Role:          app.Role,
		Message:       app.Message,
		Reason:        app.RejectionReason,
	}
}

// RequestToJoin creates a pending application from applicant, unless one
// is already pending or active. Target admins are emailed and notified
// in-app; neither can fail the request.
func (s *Service) RequestToJoin(ctx context.Context, applicant models.Actor, jr JoinRequest) (JoinResult, error) {
	jr.Role = normalize.Role(htmlsanitize.PlainText(jr.Role))
	if jr.Role == "" {
		jr.Role = models.RoleMember
	}
	jr.Message = htmlsanitize.PlainText(jr.Message)
	if err := validate.Struct(jr); err != nil {
		return JoinResult{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	email := normalize.Email(applicant.Email)
	if email == "" {
		return JoinResult{}, fmt.Errorf("%w: applicant has no email", ErrInvalidRequest)
	}

	target, err := s.resolve(ctx, jr.Kind, jr.TargetID)
	if err != nil {
		return JoinResult{}, err
	}
	if target.IsAdmin(applicant) {
		return JoinResult{Outcome: OutcomeAlreadyMember}, ErrAlreadyMember
	}
	if res, err := s.existing(ctx, jr.Kind, jr.TargetID, email); err != nil || res.Outcome != "" {
		return res, err
	}

	app, err := s.apps.Create(ctx, models.Application{
		Kind:           jr.Kind,
		TargetID:       jr.TargetID,
		TargetTitle:    target.Title,
		ApplicantID:    applicant.ID,
		ApplicantEmail: strings.TrimSpace(applicant.Email),
		ApplicantName:  applicant.DisplayName(),
		Role:           jr.Role,
		Message:        jr.Message,
		AppliedAt:      s.now(),
	})
	if errors.Is(err, applicationstore.ErrDuplicateApplication) {
		// Lost a race with a concurrent request from the same applicant.
		if res, ferr := s.existing(ctx, jr.Kind, jr.TargetID, email); ferr != nil || res.Outcome != "" {
			return res, ferr
		}
		return JoinResult{Outcome: OutcomeAlreadyPending}, ErrAlreadyPending
	}
	s.transition("application_create", err)
	if err != nil {
		return JoinResult{}, fmt.Errorf("create application: %w", err)
	}

	res := JoinResult{Outcome: OutcomeCreated, Application: app}
	for _, admin := range target.Admins {
		res.Emails = append(res.Emails, s.send(ctx, notify.KindApplicationReceived, app,
			notify.Recipient{Email: admin.Email, Name: admin.Name, Role: admin.Role}, applicant))
		s.inApp(ctx, models.Notification{
			RecipientEmail: admin.Email,
			Type:           models.NotificationApplicationNew,
			Title:          "New application",
			Message:        fmt.Sprintf("%s asked to join %s as %s.", app.ApplicantName, target.Title, app.Role),
			RefType:        audit.EntityApplication,
			RefID:          app.ID.Hex(),
		})
	}
	if len(target.Admins) == 0 {
		s.log.Warn("application target has no admins to notify",
			zap.String("kind", app.Kind), zap.String("target_id", app.TargetID.Hex()))
	}

	s.audit.ApplicationReviewed(ctx, audit.EventApplicationCreated, applicant, app)
	s.publish(ctx, events.ApplicationCreated, app, applicant)
	return res, nil
}

// existing reports an open application as a duplicate outcome. An empty
// Outcome means there is none.
func (s *Service) existing(ctx context.Context, kind string, targetID primitive.ObjectID, email string) (JoinResult, error) {
	open, err := s.apps.FindOpen(ctx, kind, targetID, email)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return JoinResult{}, nil
	}
	if err != nil {
		return JoinResult{}, fmt.Errorf("check existing application: %w", err)
	}
	if open.Status == models.ApplicationActive {
		return JoinResult{Outcome: OutcomeAlreadyMember, Application: open}, ErrAlreadyMember
	}
	return JoinResult{Outcome: OutcomeAlreadyPending, Application: open}, ErrAlreadyPending
}

// Review is the result of one approve or reject.
type Review struct {
	Application models.Application `json:"application"`
	Email       notify.Result      `json:"email"`
}

// Approve makes a pending application active and welcomes the applicant.
func (s *Service) Approve(ctx context.Context, kind string, id primitive.ObjectID, reviewer models.Actor) (Review, error) {
	return s.decide(ctx, kind, id, reviewer, models.ApplicationActive, "")
}

// Reject closes a pending application with an optional reason. The
// applicant may apply again afterwards.
func (s *Service) Reject(ctx context.Context, kind string, id primitive.ObjectID, reviewer models.Actor, reason string) (Review, error) {
	return s.decide(ctx, kind, id, reviewer, models.ApplicationRejected, htmlsanitize.PlainText(reason))
}

func (s *Service) decide(ctx context.Context, kind string, id primitive.ObjectID, reviewer models.Actor, status, reason string) (Review, error) {
	if _, ok := models.ApplicationCollection(kind); !ok {
		return Review{}, ErrUnknownKind
	}
	app, err := s.apps.Get(ctx, kind, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Review{}, ErrApplicationNotFound
	}
	if err != nil {
		return Review{}, fmt.Errorf("load application: %w", err)
	}
	if app.Status != models.ApplicationPending {
		return Review{Application: app}, ErrNotPending
	}
	if err := s.authorize(ctx, kind, app.TargetID, reviewer); err != nil {
		return Review{}, err
	}

	name := "application_approve"
	if status == models.ApplicationRejected {
		name = "application_reject"
	}
	app, err = s.apps.Decide(ctx, kind, id, status, reviewer, reason, s.now())
	s.transition(name, err)
	switch {
	case errors.Is(err, applicationstore.ErrNotPending):
		return Review{}, ErrNotPending
	case errors.Is(err, mongo.ErrNoDocuments):
		return Review{}, ErrApplicationNotFound
	case err != nil:
		return Review{}, fmt.Errorf("review application: %w", err)
	}

	r := Review{Application: app}
	to := notify.Recipient{Email: app.ApplicantEmail, Name: app.ApplicantName, Role: app.Role}
	if status == models.ApplicationActive {
		r.Email = s.send(ctx, notify.KindApplicationApproved, app, to, reviewer)
		s.inApp(ctx, models.Notification{
			RecipientEmail: app.ApplicantEmail,
			Type:           models.NotificationApplicationOK,
			Title:          "Application approved",
			Message:        fmt.Sprintf("Welcome to %s.", app.TargetTitle),
			RefType:        audit.EntityApplication,
			RefID:          app.ID.Hex(),
		})
		s.audit.ApplicationReviewed(ctx, audit.EventApplicationApproved, reviewer, app)
		s.publish(ctx, events.ApplicationApproved, app, reviewer)
		return r, nil
	}

	msg := fmt.Sprintf("Your application to %s was not accepted.", app.TargetTitle)
	if reason != "" {
		msg += " Reason: " + reason
	}
	r.Email = s.send(ctx, notify.KindApplicationRejected, app, to, reviewer)
	s.inApp(ctx, models.Notification{
		RecipientEmail: app.ApplicantEmail,
		Type:           models.NotificationApplicationDenied,
		Title:          "Application declined",
		Message:        msg,
		RefType:        audit.EntityApplication,
		RefID:          app.ID.Hex(),
	})
	s.audit.ApplicationReviewed(ctx, audit.EventApplicationRejected, reviewer, app)
	s.publish(ctx, events.ApplicationRejected, app, reviewer)
	return r, nil
}

func (s *Service) resolve(ctx context.Context, kind string, id primitive.ObjectID) (models.Target, error) {
	if _, ok := models.ApplicationCollection(kind); !ok {
		return models.Target{}, ErrUnknownKind
	}
	t, err := s.targets.Resolve(ctx, kind, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Target{}, ErrTargetNotFound
	}
	if err != nil {
		return models.Target{}, fmt.Errorf("resolve target: %w", err)
	}
	return t, nil
}

// authorize allows target admins and platform admins.
func (s *Service) authorize(ctx context.Context, kind string, targetID primitive.ObjectID, a models.Actor) error {
	if strings.EqualFold(strings.TrimSpace(a.Role), models.RoleAdmin) {
		return nil
	}
	t, err := s.resolve(ctx, kind, targetID)
	if err != nil {
		return err
	}
	if !t.IsAdmin(a) {
		return ErrNotTargetAdmin
	}
	return nil
}

func (s *Service) send(ctx context.Context, kind string, app models.Application, to notify.Recipient, actor models.Actor) notify.Result {
	url := ""
	if s.baseURL != "" {
		url = s.baseURL + "/applications/" + app.Kind + "/" + app.TargetID.Hex()
	}
	res := s.notify.Send(ctx, notify.Message{
		Kind:      kind,
		Data:      payload(app),
		Recipient: to,
		Context: notify.Context{
			ActorEmail: actor.Email,
			ActorName:  actor.DisplayName(),
			Source:     app.Kind,
			URL:        url,
		},
	})
	if !res.OK && !res.Skipped {
		s.log.Warn("application email failed; in-app notification only",
			zap.String("kind", kind),
			zap.String("recipient", to.Email),
			zap.String("error", res.Error))
	}
	return res
}

func (s *Service) inApp(ctx context.Context, n models.Notification) {
	if s.notes == nil {
		return
	}
	if _, err := s.notes.Create(ctx, n); err != nil {
		s.log.Warn("in-app notification failed",
			zap.String("type", n.Type),
			zap.String("recipient", n.RecipientEmail),
			zap.Error(err))
	}
}

func (s *Service) transition(name string, err error) {
	metrics.Transitions().WithLabelValues(name, metrics.Outcome(err)).Inc()
}

func (s *Service) publish(ctx context.Context, name string, app models.Application, actor models.Actor) {
	s.events.Publish(ctx, name, app.ID.Hex(), actor.Email, map[string]string{
		"kind":      app.Kind,
		"target_id": app.TargetID.Hex(),
		"status":    app.Status,
	})
}
