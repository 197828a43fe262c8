// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryCompletion = "completion"
	CategoryMembership = "membership"
)

// Completion workflow event types
const (
	EventCompletionInitiated  = "completion_initiated"
	EventEvaluationSubmitted  = "evaluation_submitted"
	EventCompletionApproved   = "completion_approved"
	EventCompletionRejected   = "completion_rejected"
	EventCompletionFinalized  = "completion_finalized"
	EventSoloProjectCompleted = "solo_project_completed"
)

// Membership workflow event types
const (
	EventApplicationCreated  = "application_created"
	EventApplicationApproved = "application_approved"
	EventApplicationRejected = "application_rejected"
)

// Entity types
const (
	EntityCompletionRequest = "completion_request"
	EntityApplication       = "application"
)

// Event is one recorded workflow transition.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`

	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// What changed
	EntityType string `bson:"entity_type"`
	EntityID   string `bson:"entity_id"`

	// Who changed it
	ActorID    string `bson:"actor_id,omitempty"`
	ActorEmail string `bson:"actor_email,omitempty"`

	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty"`
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// ListByEntity returns the history of one entity, newest first.
func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string, limit int64) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, bson.M{"entity_type": entityType, "entity_id": entityID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
