// internal/app/store/applications/applicationstore.go
package applicationstore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrDuplicateApplication is returned when the applicant already has a
	// pending or active application for the target.
	ErrDuplicateApplication = errors.New("an open application already exists for this applicant")
	// ErrNotPending is returned when a review targets an application that
	// has already been decided.
	ErrNotPending = errors.New("application is not pending")
	// ErrUnknownKind is returned for an application kind with no collection.
	ErrUnknownKind = errors.New("unknown application kind")
)

// Store persists applications of every kind. Each kind has its own
// collection; event_group_members also holds plain membership rows, which
// carry no applicant_email_ci and are ignored by the listing queries.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Collection returns the collection backing kind.
func (s *Store) Collection(kind string) (*mongo.Collection, error) {
	name, ok := models.ApplicationCollection(kind)
	if !ok {
		return nil, ErrUnknownKind
	}
	return s.db.Collection(name), nil
}

func emailCI(e string) string { return normalize.Email(e) }

// Create stores a new pending application.
func (s *Store) Create(ctx context.Context, app models.Application) (models.Application, error) {
	c, err := s.Collection(app.Kind)
	if err != nil {
		return models.Application{}, err
	}
	if app.ID.IsZero() {
		app.ID = primitive.NewObjectID()
	}
	if app.AppliedAt.IsZero() {
		app.AppliedAt = time.Now().UTC()
	}
	app.ApplicantEmailCI = emailCI(app.ApplicantEmail)
	app.Status = models.ApplicationPending
	app.Open = true

	if _, err := c.InsertOne(ctx, app); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Application{}, ErrDuplicateApplication
		}
		return models.Application{}, err
	}
	return app, nil
}

func (s *Store) Get(ctx context.Context, kind string, id primitive.ObjectID) (models.Application, error) {
	c, err := s.Collection(kind)
	if err != nil {
		return models.Application{}, err
	}
	var app models.Application
	if err := c.FindOne(ctx, bson.M{"_id": id, "applicant_email_ci": bson.M{"$exists": true}}).Decode(&app); err != nil {
		return models.Application{}, err
	}
	return app, nil
}

// FindOpen returns the applicant's pending or active application for the
// target, or mongo.ErrNoDocuments. Membership rows written before
// applications carried applicant_email_ci are matched through the email
// aliases in normalize.EmailKeys.
func (s *Store) FindOpen(ctx context.Context, kind string, targetID primitive.ObjectID, email string) (models.Application, error) {
	c, err := s.Collection(kind)
	if err != nil {
		return models.Application{}, err
	}
	var app models.Application
	err = c.FindOne(ctx, bson.M{
		"target_id":          targetID,
		"applicant_email_ci": emailCI(email),
		"open":               true,
	}).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return s.findLegacy(ctx, c, kind, targetID, email)
	}
	if err != nil {
		return models.Application{}, err
	}
	return app, nil
}

// LegacyFilter matches historical membership rows for the email on the
// target: no applicant_email_ci, target_id stored as ObjectID or hex, and a
// live status.
func LegacyFilter(targetID primitive.ObjectID, email string) bson.M {
	pattern := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(strings.TrimSpace(email)) + "$", Options: "i"}
	aliases := make(bson.A, 0, len(normalize.EmailKeys))
	for _, k := range normalize.EmailKeys {
		aliases = append(aliases, bson.M{k: pattern})
	}
	return bson.M{
		"target_id":          bson.M{"$in": bson.A{targetID, targetID.Hex()}},
		"applicant_email_ci": bson.M{"$exists": false},
		"status":             bson.M{"$in": bson.A{models.ApplicationPending, models.ApplicationActive}},
		"$or":                aliases,
	}
}

func (s *Store) findLegacy(ctx context.Context, c *mongo.Collection, kind string, targetID primitive.ObjectID, email string) (models.Application, error) {
	if strings.TrimSpace(email) == "" {
		return models.Application{}, mongo.ErrNoDocuments
	}
	var doc bson.M
	opts := options.FindOne().SetSort(bson.D{{Key: "status", Value: 1}})
	if err := c.FindOne(ctx, LegacyFilter(targetID, email), opts).Decode(&doc); err != nil {
		return models.Application{}, err
	}
	m := normalize.Member(doc)
	app := models.Application{
		Kind:             kind,
		TargetID:         targetID,
		ApplicantID:      m.UserID,
		ApplicantEmail:   m.Email,
		ApplicantEmailCI: emailCI(m.Email),
		ApplicantName:    m.Name,
		Role:             m.Role,
		Status:           normalize.Status(normalize.FirstString(doc, "status")),
		Open:             true,
		AppliedAt:        m.JoinedAt,
	}
	if id, ok := doc["_id"].(primitive.ObjectID); ok {
		app.ID = id
	}
	return app, nil
}

// Decide moves a pending application to status (active or rejected). The
// update is conditional on the application still being pending.
func (s *Store) Decide(ctx context.Context, kind string, id primitive.ObjectID, status string, reviewer models.Actor, reason string, at time.Time) (models.Application, error) {
	c, err := s.Collection(kind)
	if err != nil {
		return models.Application{}, err
	}
	set := bson.M{
		"status":            status,
		"open":              status == models.ApplicationActive,
		"reviewed_by_id":    reviewer.ID,
		"reviewed_by_email": reviewer.Email,
		"reviewed_at":       at,
	}
	if reason != "" {
		set["rejection_reason"] = reason
	}

	var app models.Application
	err = c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.ApplicationPending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := c.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return models.Application{}, cerr
		}
		if n == 0 {
			return models.Application{}, mongo.ErrNoDocuments
		}
		return models.Application{}, ErrNotPending
	}
	if err != nil {
		return models.Application{}, err
	}
	return app, nil
}

// TargetFilter is the query ListByTarget runs. It is exported so change
// stream subscribers can match the same documents.
func TargetFilter(targetID primitive.ObjectID) bson.M {
	return bson.M{
		"target_id":          targetID,
		"applicant_email_ci": bson.M{"$exists": true},
	}
}

// ListByTarget returns the target's applications, oldest first. An empty
// status returns every status.
func (s *Store) ListByTarget(ctx context.Context, kind string, targetID primitive.ObjectID, status string) ([]models.Application, error) {
	filter := TargetFilter(targetID)
	if status != "" {
		filter["status"] = status
	}
	return s.find(ctx, kind, filter, options.Find().SetSort(bson.D{{Key: "applied_at", Value: 1}, {Key: "_id", Value: 1}}))
}

// ListByApplicant returns every application the email has made for kind,
// newest first.
func (s *Store) ListByApplicant(ctx context.Context, kind, email string) ([]models.Application, error) {
	return s.find(ctx, kind,
		bson.M{"applicant_email_ci": emailCI(email)},
		options.Find().SetSort(bson.D{{Key: "applied_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
}

func (s *Store) find(ctx context.Context, kind string, filter bson.M, opts *options.FindOptions) ([]models.Application, error) {
	c, err := s.Collection(kind)
	if err != nil {
		return nil, err
	}
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Application{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
