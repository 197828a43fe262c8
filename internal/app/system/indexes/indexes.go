// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
Errors are aggregated so every problem is visible and startup fails fast.

Several unique indexes here carry workflow invariants, not just query
performance: one completion request per group, one badge per member per
request, one certificate per recipient per request, and one open
application per applicant per target.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	steps := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"groups", ensureGroups},
		{"group_members", ensureGroupMembers},
		{"project_completion_requests", ensureCompletionRequests},
		{"member_badges", ensureBadges},
		{"certificates", ensureCertificates},
		{"notifications", ensureNotifications},
		{"event_group_members", ensureApplications("event_group_members")},
		{"project_applications", ensureApplications("project_applications")},
		{"company_members", ensureCompanyMembers},
		{"audit_events", ensureAuditEvents},
	}
	for _, s := range steps {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                      */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolVal(b *bool) bool { return b != nil && *b }

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

// ensureIndexSet creates each desired index. An index with the same key
// pattern but a different name or uniqueness is dropped and recreated.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, want []mongo.IndexModel) error {
	var errs []string
	existing := listExisting(ctx, coll)

	for _, m := range want {
		name := *m.Options.Name
		unique := boolVal(m.Options.Unique)
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()

		if ex, ok := existing[sig]; ok {
			if ex.Name == name && boolVal(ex.Unique) == unique {
				zap.L().Debug("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", name))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop %s failed: %v", coll.Name(), name, ex.Name, err))
				continue
			}
			zap.L().Info("dropped index to realign name or options",
				zap.String("collection", coll.Name()),
				zap.String("from", ex.Name),
				zap.String("to", name))
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && unique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index on {%s}, duplicates present", coll.Name(), name, sig))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			zap.L().Warn("index ensure failed",
				zap.String("collection", coll.Name()),
				zap.String("name", name),
				zap.String("keys", sig),
				zap.Error(err))
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique),
			zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                             */
/* -------------------------------------------------------------------------- */

func ensureGroups(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("groups"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "admin_email", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_groups_adminemail_status"),
		},
	})
}

func ensureGroupMembers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("group_members"), []mongo.IndexModel{
		// The active-member snapshot taken at initiation.
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_gm_group_status"),
		},
	})
}

func ensureCompletionRequests(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("project_completion_requests"), []mongo.IndexModel{
		// One request per group. Concurrent initiations race on this index.
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_pcr_group"),
		},
		// Reviewer queue.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("idx_pcr_status_updated"),
		},
	})
}

func ensureBadges(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("member_badges"), []mongo.IndexModel{
		// A retried finalize finds the badge already issued instead of duplicating it.
		{
			Keys:    bson.D{{Key: "completion_request_id", Value: 1}, {Key: "recipient_email_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_badges_request_recipient"),
		},
		{
			Keys:    bson.D{{Key: "recipient_email_ci", Value: 1}, {Key: "awarded_at", Value: -1}},
			Options: options.Index().SetName("idx_badges_recipient_awarded"),
		},
	})
}

func ensureCertificates(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("certificates"), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "completion_request_id", Value: 1},
				{Key: "recipient_email_ci", Value: 1},
				{Key: "type", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_certs_request_recipient_type"),
		},
		{
			Keys:    bson.D{{Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_certs_number"),
		},
		{
			Keys:    bson.D{{Key: "recipient_email_ci", Value: 1}, {Key: "issued_at", Value: -1}},
			Options: options.Index().SetName("idx_certs_recipient_issued"),
		},
	})
}

func ensureNotifications(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("notifications"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "recipient_email_ci", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notifications_recipient_created"),
		},
		{
			Keys:    bson.D{{Key: "recipient_role", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notifications_role_created"),
		},
	})
}

func ensureApplications(coll string) func(context.Context, *mongo.Database) error {
	prefix := "apps"
	if coll == "event_group_members" {
		prefix = "egm"
	}
	return func(ctx context.Context, db *mongo.Database) error {
		return ensureIndexSet(ctx, db.Collection(coll), []mongo.IndexModel{
			// At most one pending or active application per applicant and
			// target. Rejected rows fall outside the filter so a re-apply is
			// an independent insert.
			{
				Keys: bson.D{{Key: "target_id", Value: 1}, {Key: "applicant_email_ci", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"open": true}).
					SetName("uniq_" + prefix + "_target_applicant_open"),
			},
			{
				Keys:    bson.D{{Key: "target_id", Value: 1}, {Key: "status", Value: 1}, {Key: "applied_at", Value: -1}},
				Options: options.Index().SetName("idx_" + prefix + "_target_status_applied"),
			},
			// Admin lookup for event groups.
			{
				Keys:    bson.D{{Key: "target_id", Value: 1}, {Key: "role", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("idx_" + prefix + "_target_role_status"),
			},
		})
	}
}

func ensureCompanyMembers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("company_members"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "company_id", Value: 1}, {Key: "role", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_cm_company_role_status"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("audit_events"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_created"),
		},
		{
			Keys:    bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_entity_created"),
		},
	})
}

