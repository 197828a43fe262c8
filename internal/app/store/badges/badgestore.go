// internal/app/store/badges/badgestore.go
package badgestore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateBadge is returned by Create when the recipient already holds a
// badge for the completion request.
var ErrDuplicateBadge = errors.New("badge already awarded for this completion")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("member_badges")}
}

func (s *Store) Create(ctx context.Context, b models.Badge) (models.Badge, error) {
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if b.AwardedAt.IsZero() {
		b.AwardedAt = time.Now().UTC()
	}
	b.RecipientEmailCI = normalize.Email(b.RecipientEmail)
	if b.Skills == nil {
		b.Skills = []string{}
	}
	if _, err := s.c.InsertOne(ctx, b); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Badge{}, ErrDuplicateBadge
		}
		return models.Badge{}, err
	}
	return b, nil
}

// Issue creates the badge unless the recipient already has one for the same
// completion request, in which case the stored badge is returned with
// created=false. Replaying an award is therefore safe.
func (s *Store) Issue(ctx context.Context, b models.Badge) (badge models.Badge, created bool, err error) {
	badge, err = s.Create(ctx, b)
	if err == nil {
		return badge, true, nil
	}
	if !errors.Is(err, ErrDuplicateBadge) {
		return models.Badge{}, false, err
	}
	existing, err := s.GetForRecipient(ctx, b.CompletionRequestID, b.RecipientEmail)
	if err != nil {
		return models.Badge{}, false, err
	}
	return existing, false, nil
}

func (s *Store) GetForRecipient(ctx context.Context, requestID primitive.ObjectID, email string) (models.Badge, error) {
	var b models.Badge
	err := s.c.FindOne(ctx, bson.M{
		"completion_request_id": requestID,
		"recipient_email_ci":    normalize.Email(email),
	}).Decode(&b)
	if err != nil {
		return models.Badge{}, err
	}
	return b, nil
}

// ListByRecipient returns a member's badges, newest first.
func (s *Store) ListByRecipient(ctx context.Context, email string) ([]models.Badge, error) {
	return s.find(ctx,
		bson.M{"recipient_email_ci": normalize.Email(email)},
		options.Find().SetSort(bson.D{{Key: "awarded_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
}

// ListByRequest returns the badges one completion request issued.
func (s *Store) ListByRequest(ctx context.Context, requestID primitive.ObjectID) ([]models.Badge, error) {
	return s.find(ctx,
		bson.M{"completion_request_id": requestID},
		options.Find().SetSort(bson.D{{Key: "recipient_email_ci", Value: 1}}),
	)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Badge, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Badge{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
