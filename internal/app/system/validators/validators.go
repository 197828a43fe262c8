// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/opethaiwoh/favored/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators to the collections this service owns. Collections shared with
// older clients (groups, group_members, listings) hold heterogeneous shapes
// and only get created, never validated. On servers that don't support
// collMod/validators we log and skip.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	// Workflow-owned collections
	ensure("project_completion_requests", completionRequestsSchema())
	ensure("member_badges", badgesSchema())
	ensure("certificates", certificatesSchema())
	ensure("notifications", notificationsSchema())
	ensure("event_group_members", applicationsSchema(models.ApplicationKindEventGroup))
	ensure("project_applications", applicationsSchema(models.ApplicationKindProject))
	ensure("audit_events", nil)

	// Shared with other clients
	ensure("groups", nil)
	ensure("group_members", nil)
	for _, c := range models.ListingCollections {
		ensure(c, nil)
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func enum(vals ...string) bson.A {
	out := make(bson.A, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
	}
	return out
}

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func evaluationSchema() bson.M {
	return bson.M{
		"bsonType": "object",
		"required": bson.A{"member_email", "badge_category", "badge_level", "contribution"},
		"properties": bson.M{
			"member_email":     nonBlank,
			"badge_category":   bson.M{"enum": enum(models.BadgeCategoryKeys()...)},
			"badge_level":      bson.M{"enum": enum(models.BadgeLevels...)},
			"contribution":     bson.M{"enum": enum(models.Contributions...)},
			"skills_displayed": bson.M{"bsonType": bson.A{"array", "null"}, "items": bson.M{"bsonType": "string"}},
		},
	}
}

func completionRequestsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_id", "admin_email", "status"},
			"properties": bson.M{
				"group_id":    bson.M{"bsonType": "objectId"},
				"admin_email": nonBlank,
				"status": bson.M{"enum": enum(
					models.CompletionStatusEvaluation,
					models.CompletionStatusPendingApproval,
					models.CompletionStatusCompleted,
				)},
				"phase": bson.M{"enum": enum("", models.PhaseEvaluation, models.PhaseAdminReview)},
				"evaluation_form": bson.M{
					"bsonType": "object",
					"properties": bson.M{
						"evaluations": bson.M{"bsonType": bson.A{"array", "null"}, "items": evaluationSchema()},
					},
				},
			},
		},
	}
}

func badgesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"completion_request_id", "recipient_email", "recipient_email_ci", "category", "level", "contribution"},
			"properties": bson.M{
				"completion_request_id": bson.M{"bsonType": "objectId"},
				"recipient_email":       nonBlank,
				"recipient_email_ci":    nonBlank,
				"category":              bson.M{"enum": enum(models.BadgeCategoryKeys()...)},
				"level":                 bson.M{"enum": enum(models.BadgeLevels...)},
				"contribution":          bson.M{"enum": enum(models.Contributions...)},
			},
		},
	}
}

func certificatesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"number", "type", "completion_request_id", "recipient_email", "recipient_email_ci"},
			"properties": bson.M{
				"number":                nonBlank,
				"type":                  bson.M{"enum": enum(models.CertificateProjectCompletion, models.CertificateSoloCompletion)},
				"completion_request_id": bson.M{"bsonType": "objectId"},
				"recipient_email":       nonBlank,
				"recipient_email_ci":    nonBlank,
				"team_size":             bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"badge_count":           bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
			},
		},
	}
}

func notificationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"type", "title", "read", "created_at"},
			"properties": bson.M{
				"type": bson.M{"enum": enum(
					models.NotificationCompletionReview,
					models.NotificationCompletionApproved,
					models.NotificationCompletionRejected,
					models.NotificationBadgeAwarded,
					models.NotificationApplicationNew,
					models.NotificationApplicationOK,
					models.NotificationApplicationDenied,
				)},
				"title":      nonBlank,
				"read":       bson.M{"bsonType": "bool"},
				"created_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

// event_group_members also holds plain membership rows written by other
// clients, so only documents carrying applicant_email_ci are checked.
func applicationsSchema(kind string) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"applicant_email_ci": bson.M{"$exists": false}},
			bson.M{"$jsonSchema": bson.M{
				"bsonType": "object",
				"required": bson.A{"kind", "target_id", "applicant_email", "applicant_email_ci", "status", "open"},
				"properties": bson.M{
					"kind":               bson.M{"enum": enum(kind)},
					"target_id":          bson.M{"bsonType": "objectId"},
					"applicant_email":    nonBlank,
					"applicant_email_ci": nonBlank,
					"status":             bson.M{"enum": enum(models.ApplicationPending, models.ApplicationActive, models.ApplicationRejected)},
					"open":               bson.M{"bsonType": "bool"},
				},
			}},
		},
	}
}
