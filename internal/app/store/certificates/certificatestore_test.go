package certificatestore_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	certificatestore "github.com/opethaiwoh/favored/internal/app/store/certificates"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"github.com/opethaiwoh/favored/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func certFor(reqID primitive.ObjectID, email, typ string) models.Certificate {
	return models.Certificate{
		Type:                typ,
		CompletionRequestID: reqID,
		GroupID:             primitive.NewObjectID(),
		ProjectTitle:        "Team Rocket",
		RecipientEmail:      email,
		RecipientName:       "Ann",
		TeamSize:            3,
		BadgeCount:          3,
	}
}

func TestNewNumber_Format(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	n := certificatestore.NewNumber(at)
	if !regexp.MustCompile(`^FVD-2026-[0-9A-F]{8}$`).MatchString(n) {
		t.Errorf("NewNumber = %q", n)
	}
	if certificatestore.NewNumber(at) == n {
		t.Error("NewNumber should not repeat")
	}
}

func TestStore_Issue_Idempotent(t *testing.T) {
	db := testutil.SetupIndexedDB(t)
	store := certificatestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	reqID := primitive.NewObjectID()
	first, created, err := store.Issue(ctx, certFor(reqID, "Ann@x.com", models.CertificateProjectCompletion))
	if err != nil || !created {
		t.Fatalf("first Issue: created=%v err=%v", created, err)
	}
	if first.Number == "" {
		t.Error("Issue should assign a number")
	}

	again, created, err := store.Issue(ctx, certFor(reqID, "ann@x.com", models.CertificateProjectCompletion))
	if err != nil {
		t.Fatalf("second Issue failed: %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("second Issue: created=%v id=%v, want existing %v", created, again.ID, first.ID)
	}

	// A different type for the same recipient is a separate certificate.
	if _, created, err := store.Issue(ctx, certFor(reqID, "ann@x.com", models.CertificateSoloCompletion)); err != nil || !created {
		t.Errorf("solo certificate: created=%v err=%v", created, err)
	}

	got, err := store.GetByNumber(ctx, first.Number)
	if err != nil {
		t.Fatalf("GetByNumber failed: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("GetByNumber returned %v", got.ID)
	}
}

func TestStore_Create_DuplicateNumber(t *testing.T) {
	db := testutil.SetupIndexedDB(t)
	store := certificatestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := certFor(primitive.NewObjectID(), "a@x.com", models.CertificateProjectCompletion)
	a.Number = "FVD-2026-AAAAAAAA"
	if _, err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b := certFor(primitive.NewObjectID(), "b@x.com", models.CertificateProjectCompletion)
	b.Number = "FVD-2026-AAAAAAAA"
	if _, err := store.Create(ctx, b); !errors.Is(err, certificatestore.ErrDuplicateCertificate) {
		t.Errorf("expected ErrDuplicateCertificate, got %v", err)
	}
}

func TestStore_ListByRecipient(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := certificatestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, _ = store.Create(ctx, certFor(primitive.NewObjectID(), "ann@x.com", models.CertificateProjectCompletion))
	_, _ = store.Create(ctx, certFor(primitive.NewObjectID(), "bob@x.com", models.CertificateProjectCompletion))

	got, err := store.ListByRecipient(ctx, "ANN@x.com")
	if err != nil {
		t.Fatalf("ListByRecipient failed: %v", err)
	}
	if len(got) != 1 || got[0].RecipientEmail != "ann@x.com" {
		t.Errorf("ListByRecipient = %+v", got)
	}
}
