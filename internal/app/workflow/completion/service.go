// Package completion runs the project completion and badge award workflow:
// initiate, evaluate, review, then finalize with badges and certificates, or
// take the solo shortcut when there is nobody to evaluate.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opethaiwoh/favored/internal/app/system/auditlog"
	"github.com/opethaiwoh/favored/internal/app/system/events"
	"github.com/opethaiwoh/favored/internal/app/system/metrics"
	"github.com/opethaiwoh/favored/internal/app/system/notify"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Groups is the group storage the workflow needs.
type Groups interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
	MarkCompleting(ctx context.Context, id primitive.ObjectID) error
	MarkCompleted(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// Members lists a group's active members, already normalized.
type Members interface {
	ActiveMembers(ctx context.Context, groupID primitive.ObjectID) ([]models.TeamMember, error)
}

// Requests stores completion requests. Update methods are conditional and
// return completionstore.ErrConflict when the request moved on.
type Requests interface {
	Create(ctx context.Context, req models.CompletionRequest) (models.CompletionRequest, error)
	GetByGroup(ctx context.Context, groupID primitive.ObjectID) (models.CompletionRequest, error)
	SubmitEvaluation(ctx context.Context, id primitive.ObjectID, evals []models.MemberEvaluation, at time.Time) (models.CompletionRequest, error)
	Approve(ctx context.Context, id primitive.ObjectID, by string, at time.Time) (models.CompletionRequest, error)
	Reject(ctx context.Context, id primitive.ObjectID, by, reason string, at time.Time) (models.CompletionRequest, error)
	Finalize(ctx context.Context, id primitive.ObjectID, fc models.FinalCompletion) (models.CompletionRequest, error)
}

// Badges issues badges idempotently.
type Badges interface {
	Issue(ctx context.Context, b models.Badge) (models.Badge, bool, error)
}

// Certificates issues certificates idempotently.
type Certificates interface {
	Issue(ctx context.Context, c models.Certificate) (models.Certificate, bool, error)
}

// Notifications stores in-app notifications.
type Notifications interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Listings closes the originating project listing.
type Listings interface {
	Close(ctx context.Context, ref models.ProjectRef, at time.Time) error
}

// Transactor runs fn atomically. It returns txn.ErrNotSupported when the
// deployment has no transactions, in which case the caller falls back to
// ordered idempotent writes.
type Transactor interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps wires a Service. Notify, Events, Audit, Tx and Log are optional.
type Deps struct {
	Groups        Groups
	Members       Members
	Requests      Requests
	Badges        Badges
	Certificates  Certificates
	Notifications Notifications
	Listings      Listings
	Tx            Transactor

	Notify notify.Port
	Events events.Publisher
	Audit  *auditlog.Logger
	Log    *zap.Logger

	// ReviewerRole receives review-request notifications. Default "admin".
	ReviewerRole string
	// BaseURL prefixes links placed in emails.
	BaseURL string
	Now     func() time.Time
}

// Service is safe for concurrent use. State lives in the stores.
type Service struct {
	groups        Groups
	members       Members
	requests      Requests
	badges        Badges
	certificates  Certificates
	notifications Notifications
	listings      Listings
	tx            Transactor

	notify       notify.Port
	events       events.Publisher
	audit        *auditlog.Logger
	log          *zap.Logger
	reviewerRole string
	baseURL      string
	now          func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		groups:        d.Groups,
		members:       d.Members,
		requests:      d.Requests,
		badges:        d.Badges,
		certificates:  d.Certificates,
		notifications: d.Notifications,
		listings:      d.Listings,
		tx:            d.Tx,
		notify:        d.Notify,
		events:        d.Events,
		audit:         d.Audit,
		log:           d.Log,
		reviewerRole:  strings.ToLower(strings.TrimSpace(d.ReviewerRole)),
		baseURL:       strings.TrimRight(d.BaseURL, "/"),
		now:           d.Now,
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
	if s.reviewerRole == "" {
		s.reviewerRole = models.RoleAdmin
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// ReviewerRoles lists the roles that may approve or reject completion
// requests: the configured reviewer role plus admin and reviewer.
func (s *Service) ReviewerRoles() []string {
	roles := []string{s.reviewerRole}
	for _, r := range []string{models.RoleAdmin, models.RoleReviewer} {
		if r != s.reviewerRole {
			roles = append(roles, r)
		}
	}
	return roles
}

// IsReviewer reports whether a may approve or reject completion requests.
func (s *Service) IsReviewer(a models.Actor) bool {
	role := strings.ToLower(strings.TrimSpace(a.Role))
	for _, r := range s.ReviewerRoles() {
		if role == r {
			return true
		}
	}
	return false
}

func (s *Service) loadGroup(ctx context.Context, op string, id primitive.ObjectID) (models.Group, error) {
	g, err := s.groups.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Group{}, refuse(op, ErrGroupNotFound)
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("%s: load group: %w", op, err)
	}
	return g, nil
}

// loadAsAdmin loads the group and checks that actor administers it.
func (s *Service) loadAsAdmin(ctx context.Context, op string, id primitive.ObjectID, actor models.Actor) (models.Group, error) {
	g, err := s.loadGroup(ctx, op, id)
	if err != nil {
		return models.Group{}, err
	}
	if !g.IsAdmin(actor) {
		return models.Group{}, refuse(op, ErrNotGroupAdmin)
	}
	return g, nil
}

// findRequest returns nil, nil when the group has no request yet.
func (s *Service) findRequest(ctx context.Context, op string, groupID primitive.ObjectID) (*models.CompletionRequest, error) {
	req, err := s.requests.GetByGroup(ctx, groupID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load completion request: %w", op, err)
	}
	return &req, nil
}

// liveRequest returns the group's request and refuses when there is none
// or it is terminal.
func (s *Service) liveRequest(ctx context.Context, op string, groupID primitive.ObjectID) (models.CompletionRequest, error) {
	req, err := s.findRequest(ctx, op, groupID)
	if err != nil {
		return models.CompletionRequest{}, err
	}
	if req == nil {
		return models.CompletionRequest{}, refuse(op, ErrNotInitiated)
	}
	if req.IsTerminal() {
		return models.CompletionRequest{}, refuse(op, ErrTerminal)
	}
	return *req, nil
}

// initiator is the admin identity recorded on the request. Evaluation
// forms exclude this person.
func initiator(req models.CompletionRequest) models.Actor {
	return models.Actor{ID: req.AdminID, Name: req.AdminName, Email: req.AdminEmail}
}

func (s *Service) link(path string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + path
}

func (s *Service) groupLink(groupID primitive.ObjectID) string {
	return s.link("/groups/" + groupID.Hex() + "/completion")
}

// send emails one recipient through the dispatcher.
func (s *Service) send(ctx context.Context, kind string, data any, to notify.Recipient, actor models.Actor, url string) notify.Result {
	res := s.notify.Send(ctx, notify.Message{
		Kind:      kind,
		Data:      data,
		Recipient: to,
		Context: notify.Context{
			ActorEmail: actor.Email,
			ActorName:  actor.DisplayName(),
			Source:     "completion",
			URL:        url,
		},
	})
	if !res.OK && !res.Skipped {
		s.log.Warn("notification email failed",
			zap.String("kind", kind),
			zap.String("recipient", to.Email),
			zap.String("error", res.Error))
	}
	return res
}

// inApp stores an in-app notification. Failures are logged and reported
// but never undo the transition that triggered them.
func (s *Service) inApp(ctx context.Context, n models.Notification) error {
	if s.notifications == nil {
		return nil
	}
	if _, err := s.notifications.Create(ctx, n); err != nil {
		s.log.Warn("in-app notification failed",
			zap.String("type", n.Type),
			zap.String("recipient", n.RecipientEmail+n.RecipientRole),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) transition(name string, err error) {
	metrics.Transitions().WithLabelValues(name, metrics.Outcome(err)).Inc()
}

func (s *Service) publish(ctx context.Context, name string, req models.CompletionRequest, actor models.Actor, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["group_id"] = req.GroupID.Hex()
	s.events.Publish(ctx, name, req.ID.Hex(), actor.Email, attrs)
}
