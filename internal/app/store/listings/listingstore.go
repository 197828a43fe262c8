// internal/app/store/listings/listingstore.go
package listingstore

import (
	"context"
	"errors"
	"time"

	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrUnknownCollection is returned for a ProjectRef outside the listing
// collections.
var ErrUnknownCollection = errors.New("unknown listing collection")

// Listing is the subset of a project listing the workflows read. Listings
// are owned by other parts of the platform, so the field names follow the
// documents as they are stored.
type Listing struct {
	ID                       primitive.ObjectID `bson:"_id"`
	Title                    string             `bson:"title"`
	OwnerID                  string             `bson:"owner_id"`
	OwnerEmail               string             `bson:"owner_email"`
	OwnerName                string             `bson:"owner_name"`
	CompanyID                string             `bson:"company_id,omitempty"`
	Status                   string             `bson:"status"`
	IsActive                 bool               `bson:"isActive"`
	AvailableForApplications bool               `bson:"availableForApplications"`
	CompletedAt              *time.Time         `bson:"completedAt,omitempty"`

	Collection string `bson:"-"`
}

type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) coll(ref models.ProjectRef) (*mongo.Collection, error) {
	if !ref.Valid() {
		return nil, ErrUnknownCollection
	}
	return s.db.Collection(ref.Collection), nil
}

func (s *Store) Get(ctx context.Context, ref models.ProjectRef) (Listing, error) {
	c, err := s.coll(ref)
	if err != nil {
		return Listing{}, err
	}
	var l Listing
	if err := c.FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&l); err != nil {
		return Listing{}, err
	}
	l.Collection = ref.Collection
	return l, nil
}

// Find looks the id up across every listing collection, in
// models.ListingCollections order.
func (s *Store) Find(ctx context.Context, id primitive.ObjectID) (Listing, error) {
	for _, name := range models.ListingCollections {
		l, err := s.Get(ctx, models.ProjectRef{Collection: name, ID: id})
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return Listing{}, err
		}
	}
	return Listing{}, mongo.ErrNoDocuments
}

// Close marks the listing completed and stops it accepting applications.
// Closing an already closed listing is a no-op.
func (s *Store) Close(ctx context.Context, ref models.ProjectRef, at time.Time) error {
	c, err := s.coll(ref)
	if err != nil {
		return err
	}
	res, err := c.UpdateOne(ctx,
		bson.M{"_id": ref.ID},
		bson.M{"$set": bson.M{
			"status":                   models.ListingStatusCompleted,
			"isActive":                 false,
			"availableForApplications": false,
			"completedAt":              at,
			"updated_at":               at,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
