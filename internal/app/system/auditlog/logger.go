// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/opethaiwoh/favored/internal/app/store/audit"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.uber.org/zap"
)

// Destinations for a category.
const (
	DestAll = "all" // MongoDB + zap
	DestDB  = "db"  // MongoDB only
	DestLog = "log" // zap only
	DestOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Workflow controls logging for completion and membership transitions.
	Workflow string
}

// Logger records workflow transitions to MongoDB (via audit.Store) and to
// structured logs. A nil *Logger is a no-op so services can run without one.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{store: store, zapLog: zapLog, config: config}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.String("entity_type", event.EntityType),
		zap.String("entity_id", event.EntityID),
		zap.Bool("success", event.Success),
	}
	if event.ActorEmail != "" {
		fields = append(fields, zap.String("actor_email", event.ActorEmail))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event according to configuration.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := l.config.Workflow
	if setting == "" {
		setting = DestAll
	}
	if setting == DestOff {
		return
	}
	if setting == DestAll || setting == DestLog {
		l.logToZap(event)
	}
	if (setting == DestAll || setting == DestDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) completion(ctx context.Context, eventType string, actor models.Actor, req models.CompletionRequest, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:   audit.CategoryCompletion,
		EventType:  eventType,
		EntityType: audit.EntityCompletionRequest,
		EntityID:   req.ID.Hex(),
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Success:    true,
		Details:    withGroup(details, req),
	})
}

func withGroup(details map[string]string, req models.CompletionRequest) map[string]string {
	if details == nil {
		details = map[string]string{}
	}
	details["group_id"] = req.GroupID.Hex()
	return details
}

// --- Completion events ---

// CompletionInitiated records the start of the workflow for a group.
func (l *Logger) CompletionInitiated(ctx context.Context, actor models.Actor, req models.CompletionRequest) {
	l.completion(ctx, audit.EventCompletionInitiated, actor, req, map[string]string{
		"team_size": strconv.Itoa(req.TeamSize),
	})
}

// EvaluationSubmitted records an evaluation form handed to review.
func (l *Logger) EvaluationSubmitted(ctx context.Context, actor models.Actor, req models.CompletionRequest) {
	l.completion(ctx, audit.EventEvaluationSubmitted, actor, req, map[string]string{
		"evaluations": strconv.Itoa(len(req.EvaluationForm.Evaluations)),
	})
}

// CompletionApproved records a reviewer approval.
func (l *Logger) CompletionApproved(ctx context.Context, actor models.Actor, req models.CompletionRequest) {
	l.completion(ctx, audit.EventCompletionApproved, actor, req, nil)
}

// CompletionRejected records a reviewer rejection and its reason.
func (l *Logger) CompletionRejected(ctx context.Context, actor models.Actor, req models.CompletionRequest, reason string) {
	l.completion(ctx, audit.EventCompletionRejected, actor, req, map[string]string{"reason": reason})
}

// CompletionFinalized records the badge and certificate run. A run with badge
// failures is recorded as unsuccessful.
func (l *Logger) CompletionFinalized(ctx context.Context, actor models.Actor, req models.CompletionRequest, badgesAwarded, badgesFailed, emailsFailed int) {
	ev := audit.Event{
		Category:   audit.CategoryCompletion,
		EventType:  audit.EventCompletionFinalized,
		EntityType: audit.EntityCompletionRequest,
		EntityID:   req.ID.Hex(),
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Success:    badgesFailed == 0,
		Details: withGroup(map[string]string{
			"badges_awarded": strconv.Itoa(badgesAwarded),
			"badges_failed":  strconv.Itoa(badgesFailed),
			"emails_failed":  strconv.Itoa(emailsFailed),
		}, req),
	}
	if badgesFailed > 0 {
		ev.FailureReason = "some badges were not issued"
	}
	l.Log(ctx, ev)
}

// SoloProjectCompleted records the solo shortcut.
func (l *Logger) SoloProjectCompleted(ctx context.Context, actor models.Actor, req models.CompletionRequest) {
	l.completion(ctx, audit.EventSoloProjectCompleted, actor, req, nil)
}

// --- Membership events ---

// ApplicationReviewed records a create, approve or reject of an application.
func (l *Logger) ApplicationReviewed(ctx context.Context, eventType string, actor models.Actor, app models.Application) {
	details := map[string]string{
		"kind":      app.Kind,
		"target_id": app.TargetID.Hex(),
		"applicant": app.ApplicantEmail,
		"status":    app.Status,
	}
	if app.RejectionReason != "" {
		details["reason"] = app.RejectionReason
	}
	l.Log(ctx, audit.Event{
		Category:   audit.CategoryMembership,
		EventType:  eventType,
		EntityType: audit.EntityApplication,
		EntityID:   app.ID.Hex(),
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Success:    true,
		Details:    details,
	})
}
