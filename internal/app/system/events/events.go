// Package events publishes committed workflow transitions to NATS so other
// platform services can react (feeds, search indexing, analytics).
//
// Publishing happens after the transition is persisted. A failed publish is
// logged and never reported to the caller.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event names, appended to the configured subject prefix.
const (
	CompletionInitiated  = "completion.initiated"
	EvaluationSubmitted  = "completion.submitted"
	CompletionApproved   = "completion.approved"
	CompletionRejected   = "completion.rejected"
	CompletionFinalized  = "completion.finalized"
	SoloProjectCompleted = "completion.solo_completed"
	ApplicationCreated   = "application.created"
	ApplicationApproved  = "application.approved"
	ApplicationRejected  = "application.rejected"
)

// Event is the envelope published for each transition.
type Event struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Source     string            `json:"source"`
	EntityID   string            `json:"entity_id"`
	ActorEmail string            `json:"actor_email,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher emits workflow events.
type Publisher interface {
	Publish(ctx context.Context, name, entityID, actorEmail string, attrs map[string]string)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, string, map[string]string) {}

type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes JSON envelopes to "<prefix>.<event name>".
type NATSPublisher struct {
	nc     conn
	prefix string
	source string
	log    *zap.Logger
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(nc *nats.Conn, prefix string, log *zap.Logger) *NATSPublisher {
	return newPublisher(nc, prefix, log)
}

func newPublisher(nc conn, prefix string, log *zap.Logger) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "favored"
	}
	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
		source: uuid.NewString(),
		log:    log.With(zap.String("component", "events")),
	}
}

// Subject returns the subject an event name is published on.
func (p *NATSPublisher) Subject(name string) string {
	return p.prefix + "." + name
}

// Publish sends one event. Errors are logged.
func (p *NATSPublisher) Publish(ctx context.Context, name, entityID, actorEmail string, attrs map[string]string) {
	ev := Event{
		ID:         uuid.NewString(),
		Name:       name,
		Source:     p.source,
		EntityID:   entityID,
		ActorEmail: actorEmail,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal event", zap.String("event", name), zap.Error(err))
		return
	}
	if err := p.nc.Publish(p.Subject(name), payload); err != nil {
		p.log.Warn("publish event failed",
			zap.String("subject", p.Subject(name)),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// Connect dials NATS with reconnect logging. An empty url returns nil and no
// error; callers fall back to Nop.
func Connect(url, name string, log *zap.Logger) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}
