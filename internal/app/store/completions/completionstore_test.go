package completionstore_test

import (
	"errors"
	"testing"
	"time"

	completionstore "github.com/opethaiwoh/favored/internal/app/store/completions"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"github.com/opethaiwoh/favored/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func newRequest(groupID primitive.ObjectID) models.CompletionRequest {
	return models.CompletionRequest{
		GroupID:    groupID,
		GroupTitle: "Team Rocket",
		AdminEmail: "admin@test.com",
		AdminName:  "Admin",
		Status:     models.CompletionStatusEvaluation,
		Phase:      models.PhaseEvaluation,
		TeamMembers: []models.TeamMember{
			{Name: "Ann", Email: "a@x.com", Role: models.RoleMember},
		},
	}
}

func sampleEvals() []models.MemberEvaluation {
	return []models.MemberEvaluation{{
		MemberEmail:     "a@x.com",
		MemberName:      "Ann",
		BadgeCategory:   "frontend",
		BadgeLevel:      "intermediate",
		Contribution:    "high",
		SkillsDisplayed: []string{"React"},
	}}
}

func TestStore_Create_OnePerGroup(t *testing.T) {
	db := testutil.SetupIndexedDB(t)
	store := completionstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gid := primitive.NewObjectID()
	created, err := store.Create(ctx, newRequest(gid))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID.IsZero() || created.InitiatedAt.IsZero() {
		t.Error("Create should assign id and initiated_at")
	}
	if created.TeamSize != 1 {
		t.Errorf("TeamSize = %d, want 1", created.TeamSize)
	}

	_, err = store.Create(ctx, newRequest(gid))
	if !errors.Is(err, completionstore.ErrDuplicateCompletion) {
		t.Errorf("second Create: expected ErrDuplicateCompletion, got %v", err)
	}

	got, err := store.GetByGroup(ctx, gid)
	if err != nil {
		t.Fatalf("GetByGroup failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("GetByGroup returned %v, want %v", got.ID, created.ID)
	}
}

func TestStore_GetByGroup_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := completionstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.GetByGroup(ctx, primitive.NewObjectID())
	if !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("expected ErrNoDocuments, got %v", err)
	}
}

func TestStore_SubmitRejectResubmitApproveFinalize(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := completionstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	req, err := store.Create(ctx, newRequest(primitive.NewObjectID()))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	now := time.Now().UTC()

	// Approve before submission is refused.
	if _, err := store.Approve(ctx, req.ID, "reviewer@test.com", now); !errors.Is(err, completionstore.ErrConflict) {
		t.Errorf("Approve in evaluation phase: expected ErrConflict, got %v", err)
	}

	got, err := store.SubmitEvaluation(ctx, req.ID, sampleEvals(), now)
	if err != nil {
		t.Fatalf("SubmitEvaluation failed: %v", err)
	}
	if got.Status != models.CompletionStatusPendingApproval || got.Phase != models.PhaseAdminReview {
		t.Errorf("after submit: status=%q phase=%q", got.Status, got.Phase)
	}
	if len(got.EvaluationForm.Evaluations) != 1 || got.EvaluationForm.SubmittedAt == nil {
		t.Error("evaluation form not stored")
	}

	// A second submit while pending is refused.
	if _, err := store.SubmitEvaluation(ctx, req.ID, sampleEvals(), now); !errors.Is(err, completionstore.ErrConflict) {
		t.Errorf("double submit: expected ErrConflict, got %v", err)
	}

	got, err = store.Reject(ctx, req.ID, "reviewer@test.com", "needs detail", now)
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if got.Status != models.CompletionStatusEvaluation || !got.AdminApproval.Rejected {
		t.Errorf("after reject: status=%q rejected=%v", got.Status, got.AdminApproval.Rejected)
	}
	if got.AdminApproval.RejectionReason != "needs detail" {
		t.Errorf("reason = %q", got.AdminApproval.RejectionReason)
	}

	got, err = store.SubmitEvaluation(ctx, req.ID, sampleEvals(), now)
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if got.AdminApproval.Rejected {
		t.Error("resubmission should clear the rejected flag")
	}

	got, err = store.Approve(ctx, req.ID, "reviewer@test.com", now)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if !got.AdminApproval.Approved || got.Status != models.CompletionStatusPendingApproval {
		t.Errorf("after approve: approved=%v status=%q", got.AdminApproval.Approved, got.Status)
	}
	if _, err := store.Reject(ctx, req.ID, "reviewer@test.com", "late", now); !errors.Is(err, completionstore.ErrConflict) {
		t.Errorf("Reject after approve: expected ErrConflict, got %v", err)
	}

	got, err = store.Finalize(ctx, req.ID, models.FinalCompletion{BadgesAwarded: true, CertificatesGenerated: true})
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !got.IsTerminal() || got.Status != models.CompletionStatusCompleted {
		t.Errorf("after finalize: terminal=%v status=%q", got.IsTerminal(), got.Status)
	}

	// Terminal requests refuse every further update.
	if _, err := store.Finalize(ctx, req.ID, models.FinalCompletion{}); !errors.Is(err, completionstore.ErrConflict) {
		t.Errorf("second Finalize: expected ErrConflict, got %v", err)
	}
	if _, err := store.SubmitEvaluation(ctx, req.ID, sampleEvals(), now); !errors.Is(err, completionstore.ErrConflict) {
		t.Errorf("submit after finalize: expected ErrConflict, got %v", err)
	}
}

func TestStore_ListPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := completionstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, _ := store.Create(ctx, newRequest(primitive.NewObjectID()))
	_, _ = store.Create(ctx, newRequest(primitive.NewObjectID()))
	if _, err := store.SubmitEvaluation(ctx, a.ID, sampleEvals(), time.Now().UTC()); err != nil {
		t.Fatalf("SubmitEvaluation failed: %v", err)
	}

	pending, err := store.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Errorf("ListPending = %d items, want only the submitted request", len(pending))
	}
}
