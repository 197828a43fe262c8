// internal/app/store/targets/targetstore.go
package targetstore

import (
	"context"
	"errors"

	listingstore "github.com/opethaiwoh/favored/internal/app/store/listings"
	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrUnknownKind is returned for a target kind the directory cannot resolve.
var ErrUnknownKind = errors.New("unknown target kind")

// Store resolves application targets to a title and the people who review
// their applications.
//
//   - event groups: event_groups, their admins in event_group_members, and
//     the linked tech_events title when the group has none of its own.
//   - projects: the listing owner, plus company_members admins (falling back
//     to the companies owner) when the listing belongs to a company.
type Store struct {
	db       *mongo.Database
	listings *listingstore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{db: db, listings: listingstore.New(db)}
}

// Resolve returns mongo.ErrNoDocuments when the target does not exist.
func (s *Store) Resolve(ctx context.Context, kind string, id primitive.ObjectID) (models.Target, error) {
	switch kind {
	case models.ApplicationKindEventGroup:
		return s.eventGroup(ctx, id)
	case models.ApplicationKindProject:
		return s.project(ctx, id)
	}
	return models.Target{}, ErrUnknownKind
}

func (s *Store) eventGroup(ctx context.Context, id primitive.ObjectID) (models.Target, error) {
	var doc bson.M
	if err := s.db.Collection("event_groups").FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.Target{}, err
	}

	t := models.Target{Kind: models.ApplicationKindEventGroup, ID: id}
	t.Title = normalize.FirstString(doc, "title", "name")
	if t.Title == "" {
		t.Title = s.eventTitle(ctx, doc["event_id"])
	}

	admins, err := s.people(ctx, "event_group_members", bson.M{
		"target_id": bson.M{"$in": bson.A{id, id.Hex()}},
		"role":      models.RoleAdmin,
		"status":    models.ApplicationActive,
	})
	if err != nil {
		return models.Target{}, err
	}
	if len(admins) == 0 {
		admins = ownerFrom(doc, "created_by_")
	}
	t.Admins = admins
	return t, nil
}

// eventTitle looks up the tech_events title for an event_id stored as an
// ObjectID or hex string.
func (s *Store) eventTitle(ctx context.Context, ref any) string {
	var eventID primitive.ObjectID
	switch v := ref.(type) {
	case primitive.ObjectID:
		eventID = v
	case string:
		oid, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return ""
		}
		eventID = oid
	default:
		return ""
	}
	var ev bson.M
	if err := s.db.Collection("tech_events").FindOne(ctx, bson.M{"_id": eventID}).Decode(&ev); err != nil {
		return ""
	}
	return normalize.FirstString(ev, "title", "name")
}

func (s *Store) project(ctx context.Context, id primitive.ObjectID) (models.Target, error) {
	l, err := s.listings.Find(ctx, id)
	if err != nil {
		return models.Target{}, err
	}
	t := models.Target{Kind: models.ApplicationKindProject, ID: id, Title: l.Title}

	var admins []models.Recipient
	if l.OwnerEmail != "" {
		admins = append(admins, models.Recipient{
			ID:    l.OwnerID,
			Name:  nameOr(l.OwnerName, l.OwnerEmail),
			Email: normalize.Email(l.OwnerEmail),
			Role:  models.RoleAdmin,
		})
	}
	if l.CompanyID != "" {
		company, err := s.companyAdmins(ctx, l.CompanyID)
		if err != nil {
			return models.Target{}, err
		}
		admins = append(admins, company...)
	}
	t.Admins = dedupe(admins)
	return t, nil
}

func (s *Store) companyAdmins(ctx context.Context, companyID string) ([]models.Recipient, error) {
	ids := bson.A{companyID}
	if oid, err := primitive.ObjectIDFromHex(companyID); err == nil {
		ids = append(ids, oid)
	}
	admins, err := s.people(ctx, "company_members", bson.M{
		"company_id": bson.M{"$in": ids},
		"role":       bson.M{"$in": bson.A{models.RoleAdmin, "owner"}},
		"status":     models.ApplicationActive,
	})
	if err != nil || len(admins) > 0 {
		return admins, err
	}

	var company bson.M
	err = s.db.Collection("companies").FindOne(ctx, bson.M{"_id": bson.M{"$in": ids}}).Decode(&company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ownerFrom(company, "owner_"), nil
}

// people reads member-shaped documents and normalizes them into recipients.
func (s *Store) people(ctx context.Context, coll string, filter bson.M) ([]models.Recipient, error) {
	cur, err := s.db.Collection(coll).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Recipient, 0, len(docs))
	for _, m := range normalize.Members(docs) {
		out = append(out, models.Recipient{ID: m.UserID, Name: m.Name, Email: m.Email, Role: models.RoleAdmin})
	}
	return dedupe(out), nil
}

// ownerFrom builds a single recipient from <prefix>id/email/name fields.
func ownerFrom(doc bson.M, prefix string) []models.Recipient {
	email := normalize.Email(normalize.FirstString(doc, prefix+"email"))
	if email == "" {
		return nil
	}
	return []models.Recipient{{
		ID:    normalize.FirstString(doc, prefix+"id"),
		Name:  nameOr(normalize.FirstString(doc, prefix+"name"), email),
		Email: email,
		Role:  models.RoleAdmin,
	}}
}

func nameOr(name, email string) string {
	if n := normalize.Name(name); n != "" {
		return n
	}
	return email
}

func dedupe(in []models.Recipient) []models.Recipient {
	seen := make(map[string]bool, len(in))
	out := make([]models.Recipient, 0, len(in))
	for _, r := range in {
		k := normalize.Email(r.Email)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
