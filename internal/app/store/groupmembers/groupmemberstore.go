// internal/app/store/groupmembers/groupmemberstore.go
package groupmemberstore

import (
	"context"

	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store reads group_members. Documents in this collection were written by
// several client generations, so reads go through normalize and callers only
// see models.TeamMember.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_members")}
}

// ActiveMembers returns the group's active members. group_id may be stored
// as an ObjectID or as its hex string; a missing or null status counts as active.
// Documents with no resolvable email are dropped.
func (s *Store) ActiveMembers(ctx context.Context, groupID primitive.ObjectID) ([]models.TeamMember, error) {
	filter := bson.M{
		"group_id": bson.M{"$in": bson.A{groupID, groupID.Hex()}},
		"$or": bson.A{
			bson.M{"status": "active"},
			bson.M{"status": nil},
		},
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return normalize.Members(docs), nil
}
