package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) insert(ctx context.Context, coll string, doc any) {
	f.t.Helper()
	if _, err := f.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("failed to insert into %s: %v", coll, err)
	}
}

// CreateListing creates an open project listing in coll owned by owner.
func (f *Fixtures) CreateListing(ctx context.Context, coll, title string, owner models.Actor) models.ProjectRef {
	f.t.Helper()
	id := primitive.NewObjectID()
	f.insert(ctx, coll, bson.M{
		"_id":                      id,
		"title":                    title,
		"owner_id":                 owner.ID,
		"owner_email":              owner.Email,
		"owner_name":               owner.Name,
		"status":                   "active",
		"isActive":                 true,
		"availableForApplications": true,
		"created_at":               time.Now().UTC(),
	})
	return models.ProjectRef{Collection: coll, ID: id}
}

// CreateGroup creates an active group administered by admin.
func (f *Fixtures) CreateGroup(ctx context.Context, title string, admin models.Actor, project *models.ProjectRef) models.Group {
	f.t.Helper()
	now := time.Now().UTC()
	g := models.Group{
		ID:         primitive.NewObjectID(),
		Title:      title,
		AdminID:    admin.ID,
		AdminEmail: admin.Email,
		AdminName:  admin.Name,
		Status:     models.GroupStatusActive,
		Project:    project,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.insert(ctx, "groups", g)
	return g
}

// AddGroupMember inserts a raw member document for groupID. fields uses
// whatever historical key names the test wants to exercise; group_id and
// status default in when absent.
func (f *Fixtures) AddGroupMember(ctx context.Context, groupID primitive.ObjectID, fields bson.M) {
	f.t.Helper()
	doc := bson.M{"_id": primitive.NewObjectID(), "group_id": groupID, "status": "active"}
	for k, v := range fields {
		doc[k] = v
	}
	f.insert(ctx, "group_members", doc)
}

// CreateEventGroup creates an event group recorded as created by creator.
func (f *Fixtures) CreateEventGroup(ctx context.Context, title string, creator models.Actor) primitive.ObjectID {
	f.t.Helper()
	id := primitive.NewObjectID()
	f.insert(ctx, "event_groups", bson.M{
		"_id":              id,
		"title":            title,
		"created_by_id":    creator.ID,
		"created_by_email": creator.Email,
		"created_by_name":  creator.Name,
		"created_at":       time.Now().UTC(),
	})
	return id
}

// AddEventGroupAdmin records a as an active admin of the event group.
func (f *Fixtures) AddEventGroupAdmin(ctx context.Context, groupID primitive.ObjectID, a models.Actor) {
	f.t.Helper()
	f.insert(ctx, "event_group_members", bson.M{
		"_id":       primitive.NewObjectID(),
		"target_id": groupID,
		"userEmail": a.Email,
		"userName":  a.Name,
		"role":      "admin",
		"status":    "active",
	})
}
