package me_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apierrors "github.com/opethaiwoh/favored/internal/app/features/errors"
	"github.com/opethaiwoh/favored/internal/app/features/me"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"github.com/opethaiwoh/favored/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) *me.Handler {
	t.Helper()
	db := testutil.SetupIndexedDB(t)
	logger := zap.NewNop()
	return me.NewHandler(db, apierrors.NewErrorLogger(logger), logger)
}

func TestServeBadges_OnlyMine(t *testing.T) {
	h := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	reqID := primitive.NewObjectID()
	for _, email := range []string{"Kim@Test.com", "lou@test.com"} {
		if _, err := h.Badges.Create(ctx, models.Badge{
			CompletionRequestID: reqID,
			RecipientEmail:      email,
			Category:            "development",
			Level:               "novice",
			Contribution:        "good",
			AwardedAt:           time.Now().UTC(),
		}); err != nil {
			t.Fatalf("create badge: %v", err)
		}
	}

	req := testutil.WithActor(httptest.NewRequest(http.MethodGet, "/me/badges", nil), testutil.MemberActor("kim@test.com"))
	rec := httptest.NewRecorder()
	h.ServeBadges(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Badges []models.Badge `json:"badges"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Badges) != 1 || body.Badges[0].RecipientEmail != "Kim@Test.com" {
		t.Errorf("badges = %+v", body.Badges)
	}
}

func TestServeCertificates(t *testing.T) {
	h := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := h.Certificates.Create(ctx, models.Certificate{
		CompletionRequestID: primitive.NewObjectID(),
		RecipientEmail:      "admin@test.com",
		Type:                models.CertificateProjectCompletion,
		IssuedAt:            time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	req := testutil.WithActor(httptest.NewRequest(http.MethodGet, "/me/certificates", nil), testutil.AdminActor())
	rec := httptest.NewRecorder()
	h.ServeCertificates(rec, req)

	var body struct {
		Certificates []models.Certificate `json:"certificates"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Certificates) != 1 || body.Certificates[0].Number == "" {
		t.Errorf("certificates = %+v", body.Certificates)
	}
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	h := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	reviewer := testutil.ReviewerActor()
	direct, err := h.Notifications.Create(ctx, models.Notification{RecipientEmail: reviewer.Email, Type: models.NotificationBadgeAwarded, Title: "Badge"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.Notifications.Create(ctx, models.Notification{RecipientRole: models.RoleAdmin, Type: models.NotificationCompletionReview, Title: "Review"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.Notifications.Create(ctx, models.Notification{RecipientEmail: "other@test.com", Type: models.NotificationBadgeAwarded}); err != nil {
		t.Fatalf("create: %v", err)
	}

	req := testutil.WithActor(httptest.NewRequest(http.MethodGet, "/me/notifications?unread=1", nil), reviewer)
	rec := httptest.NewRecorder()
	h.ServeNotifications(rec, req)
	var body struct {
		Notifications []models.Notification `json:"notifications"`
		Unread        int64                 `json:"unread"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if len(body.Notifications) != 2 || body.Unread != 2 {
		t.Fatalf("got %d notifications, unread %d; want 2, 2", len(body.Notifications), body.Unread)
	}

	req = testutil.WithChiURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", direct.ID.Hex())
	req = testutil.WithActor(req, reviewer)
	rec = httptest.NewRecorder()
	h.HandleMarkRead(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read: status = %d", rec.Code)
	}

	n, err := h.Notifications.CountUnread(ctx, reviewer.Email, reviewer.Role)
	if err != nil || n != 1 {
		t.Errorf("CountUnread = %d, %v; want 1", n, err)
	}

	// Someone else's notification is not found for this user.
	req = testutil.WithChiURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", direct.ID.Hex())
	req = testutil.WithActor(req, testutil.MemberActor("stranger@test.com"))
	rec = httptest.NewRecorder()
	h.HandleMarkRead(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("stranger: status = %d, want 404", rec.Code)
	}
}

func TestHandleMarkRead_BadID(t *testing.T) {
	h := newTestHandler(t)
	req := testutil.WithChiURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", "zzz")
	req = testutil.WithActor(req, testutil.AdminActor())
	rec := httptest.NewRecorder()
	h.HandleMarkRead(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServeApplications_GroupedByKind(t *testing.T) {
	h := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	apply := func(kind, email string) {
		t.Helper()
		if _, err := h.Applications.Create(ctx, models.Application{
			Kind:           kind,
			TargetID:       primitive.NewObjectID(),
			TargetTitle:    "Hack Night",
			ApplicantEmail: email,
			Role:           models.RoleMember,
		}); err != nil {
			t.Fatalf("create application: %v", err)
		}
	}
	apply(models.ApplicationKindEventGroup, "Kim@Test.com")
	apply(models.ApplicationKindProject, "kim@test.com")
	apply(models.ApplicationKindProject, "kim@test.com")
	apply(models.ApplicationKindProject, "lou@test.com")

	req := testutil.WithActor(httptest.NewRequest(http.MethodGet, "/me/applications", nil), testutil.MemberActor("KIM@test.com"))
	rec := httptest.NewRecorder()
	h.ServeApplications(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Applications map[string][]models.Application `json:"applications"`
	}
	testutil.DecodeJSON(t, rec, &body)
	if n := len(body.Applications[models.ApplicationKindEventGroup]); n != 1 {
		t.Errorf("event group applications = %d, want 1", n)
	}
	if n := len(body.Applications[models.ApplicationKindProject]); n != 2 {
		t.Errorf("project applications = %d, want 2", n)
	}
}

func TestServeApplications_RequiresSignIn(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.ServeApplications(rec, httptest.NewRequest(http.MethodGet, "/me/applications", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
