// internal/app/store/certificates/certificatestore.go
package certificatestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateCertificate is returned by Create when a certificate with the
// same (request, recipient, type) or the same number already exists.
var ErrDuplicateCertificate = errors.New("certificate already issued")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("certificates")}
}

// NewNumber returns a printable certificate number such as
// FVD-2026-3F9A1C2B.
func NewNumber(at time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("FVD-%d-%s", at.Year(), strings.ToUpper(id[:8]))
}

func (s *Store) Create(ctx context.Context, c models.Certificate) (models.Certificate, error) {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now().UTC()
	}
	if c.Number == "" {
		c.Number = NewNumber(c.IssuedAt)
	}
	c.RecipientEmailCI = normalize.Email(c.RecipientEmail)
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Certificate{}, ErrDuplicateCertificate
		}
		return models.Certificate{}, err
	}
	return c, nil
}

// Issue creates the certificate unless one of the same type already exists
// for the recipient and request, in which case that one is returned with
// created=false. A clash on the generated number is retried once.
func (s *Store) Issue(ctx context.Context, c models.Certificate) (cert models.Certificate, created bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.Get(ctx, c.CompletionRequestID, c.RecipientEmail, c.Type)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return models.Certificate{}, false, err
		}

		cert, err = s.Create(ctx, c)
		if err == nil {
			return cert, true, nil
		}
		if !errors.Is(err, ErrDuplicateCertificate) {
			return models.Certificate{}, false, err
		}
		c.Number = ""
	}

	existing, err := s.Get(ctx, c.CompletionRequestID, c.RecipientEmail, c.Type)
	if err != nil {
		return models.Certificate{}, false, ErrDuplicateCertificate
	}
	return existing, false, nil
}

func (s *Store) Get(ctx context.Context, requestID primitive.ObjectID, email, certType string) (models.Certificate, error) {
	var c models.Certificate
	err := s.c.FindOne(ctx, bson.M{
		"completion_request_id": requestID,
		"recipient_email_ci":    normalize.Email(email),
		"type":                  certType,
	}).Decode(&c)
	if err != nil {
		return models.Certificate{}, err
	}
	return c, nil
}

func (s *Store) GetByNumber(ctx context.Context, number string) (models.Certificate, error) {
	var c models.Certificate
	if err := s.c.FindOne(ctx, bson.M{"number": strings.ToUpper(strings.TrimSpace(number))}).Decode(&c); err != nil {
		return models.Certificate{}, err
	}
	return c, nil
}

// ListByRecipient returns a member's certificates, newest first.
func (s *Store) ListByRecipient(ctx context.Context, email string) ([]models.Certificate, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"recipient_email_ci": normalize.Email(email)},
		options.Find().SetSort(bson.D{{Key: "issued_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Certificate{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
