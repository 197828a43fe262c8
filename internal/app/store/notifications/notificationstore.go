// internal/app/store/notifications/notificationstore.go
package notificationstore

import (
	"context"
	"strings"
	"time"

	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultListLimit = 50

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notifications")}
}

func (s *Store) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.RecipientEmailCI = normalize.Email(n.RecipientEmail)
	n.RecipientRole = strings.ToLower(strings.TrimSpace(n.RecipientRole))
	n.Read = false
	n.ReadAt = nil
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// audience matches notifications addressed to the email or broadcast to the
// role. Empty inputs match nothing.
func audience(email, role string) bson.A {
	or := bson.A{}
	if e := normalize.Email(email); e != "" {
		or = append(or, bson.M{"recipient_email_ci": e})
	}
	if r := strings.ToLower(strings.TrimSpace(role)); r != "" {
		or = append(or, bson.M{"recipient_role": r})
	}
	return or
}

// ListForUser returns the newest notifications addressed to email or to
// role. limit <= 0 uses a default.
func (s *Store) ListForUser(ctx context.Context, email, role string, unreadOnly bool, limit int64) ([]models.Notification, error) {
	or := audience(email, role)
	if len(or) == 0 {
		return []models.Notification{}, nil
	}
	filter := bson.M{"$or": or}
	if unreadOnly {
		filter["read"] = false
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	cur, err := s.c.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CountUnread(ctx context.Context, email, role string) (int64, error) {
	or := audience(email, role)
	if len(or) == 0 {
		return 0, nil
	}
	return s.c.CountDocuments(ctx, bson.M{"$or": or, "read": false})
}

// MarkRead flags one notification as read. It returns mongo.ErrNoDocuments
// when the notification is not addressed to the caller.
func (s *Store) MarkRead(ctx context.Context, id primitive.ObjectID, email, role string) error {
	or := audience(email, role)
	if len(or) == 0 {
		return mongo.ErrNoDocuments
	}
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "$or": or},
		bson.M{"$set": bson.M{"read": true, "read_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
