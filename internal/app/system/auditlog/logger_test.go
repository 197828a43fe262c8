package auditlog_test

import (
	"testing"

	"github.com/opethaiwoh/favored/internal/app/store/audit"
	"github.com/opethaiwoh/favored/internal/app/system/auditlog"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"github.com/opethaiwoh/favored/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleRequest() models.CompletionRequest {
	return models.CompletionRequest{
		ID:       primitive.NewObjectID(),
		GroupID:  primitive.NewObjectID(),
		TeamSize: 3,
	}
}

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Must not panic.
	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.CompletionInitiated(ctx, testutil.AdminActor(), sampleRequest())
}

func TestLogger_LogOnly_WritesToZap(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Workflow: auditlog.DestLog})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	req := sampleRequest()
	logger.CompletionRejected(ctx, testutil.ReviewerActor(), req, "missing demo")

	entries := logs.FilterMessage("audit event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != audit.EventCompletionRejected {
		t.Errorf("event_type = %v", fields["event_type"])
	}
	if fields["detail_reason"] != "missing demo" {
		t.Errorf("detail_reason = %v", fields["detail_reason"])
	}
	if fields["detail_group_id"] != req.GroupID.Hex() {
		t.Errorf("detail_group_id = %v", fields["detail_group_id"])
	}
}

func TestLogger_Off_WritesNothing(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Workflow: auditlog.DestOff})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.CompletionApproved(ctx, testutil.ReviewerActor(), sampleRequest())

	if logs.Len() != 0 {
		t.Errorf("expected no log entries, got %d", logs.Len())
	}
}

func TestLogger_FinalizeWithFailures_IsWarn(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Workflow: auditlog.DestLog})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.CompletionFinalized(ctx, testutil.AdminActor(), sampleRequest(), 1, 1, 0)

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zap.WarnLevel {
		t.Fatalf("expected one warn entry, got %+v", entries)
	}
}

func TestLogger_DB_PersistsEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Workflow: auditlog.DestDB})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	app := models.Application{
		ID:              primitive.NewObjectID(),
		Kind:            models.ApplicationKindEventGroup,
		TargetID:        primitive.NewObjectID(),
		ApplicantEmail:  "a@example.com",
		Status:          models.ApplicationRejected,
		RejectionReason: "capacity full",
	}
	logger.ApplicationReviewed(ctx, audit.EventApplicationRejected, testutil.AdminActor(), app)

	events, err := store.ListByEntity(ctx, audit.EntityApplication, app.ID.Hex(), 10)
	if err != nil {
		t.Fatalf("ListByEntity failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Details["reason"] != "capacity full" {
		t.Errorf("reason = %q", events[0].Details["reason"])
	}
}
