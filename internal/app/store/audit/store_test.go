package audit_test

import (
	"testing"
	"time"

	"github.com/opethaiwoh/favored/internal/app/store/audit"
	"github.com/opethaiwoh/favored/internal/testutil"
)

func TestStore_Log_AutoFills(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	before := time.Now().Add(-time.Second)
	if err := store.Log(ctx, audit.Event{
		Category:   audit.CategoryCompletion,
		EventType:  audit.EventCompletionInitiated,
		EntityType: audit.EntityCompletionRequest,
		EntityID:   "req1",
		Success:    true,
	}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.ListByEntity(ctx, audit.EntityCompletionRequest, "req1", 10)
	if err != nil {
		t.Fatalf("ListByEntity failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if events[0].CreatedAt.Before(before) {
		t.Errorf("CreatedAt not set: %v", events[0].CreatedAt)
	}
}

func TestStore_ListByEntity_NewestFirstAndLimited(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now().UTC().Add(-time.Hour)
	types := []string{audit.EventCompletionInitiated, audit.EventEvaluationSubmitted, audit.EventCompletionApproved}
	for i, et := range types {
		if err := store.Log(ctx, audit.Event{
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Category:   audit.CategoryCompletion,
			EventType:  et,
			EntityType: audit.EntityCompletionRequest,
			EntityID:   "req2",
			Success:    true,
		}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	// Different entity, must not appear.
	_ = store.Log(ctx, audit.Event{EntityType: audit.EntityCompletionRequest, EntityID: "other", EventType: "x"})

	events, err := store.ListByEntity(ctx, audit.EntityCompletionRequest, "req2", 2)
	if err != nil {
		t.Fatalf("ListByEntity failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != audit.EventCompletionApproved {
		t.Errorf("expected newest first, got %q", events[0].EventType)
	}
}
