// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"time"

	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// MarkCompleting flags the group as in the completion workflow. A completed
// group is left alone, so replaying the call is harmless.
func (s *Store) MarkCompleting(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.GroupStatusCompleted}},
		bson.M{"$set": bson.M{
			"status":     models.GroupStatusCompleting,
			"updated_at": time.Now().UTC(),
		}},
	)
	return err
}

// MarkCompleted closes the group. The first completed_at wins.
func (s *Store) MarkCompleted(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.GroupStatusCompleted}},
		bson.M{"$set": bson.M{
			"status":       models.GroupStatusCompleted,
			"completed_at": at,
			"updated_at":   at,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return mongo.ErrNoDocuments
		}
	}
	return nil
}
