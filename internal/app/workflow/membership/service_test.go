package membership

import (
	"context"
	"testing"
	"time"

	"github.com/opethaiwoh/favored/internal/app/system/notify"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	t0        = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	lead      = models.Actor{ID: "u-lead", Name: "Lee", Email: "lead@group.io", Role: models.RoleMember}
	coLead    = models.Actor{ID: "u-co", Name: "Cole", Email: "co@group.io", Role: models.RoleMember}
	applicant = models.Actor{ID: "u-sam", Name: "Sam", Email: "Sam@Mail.io", Role: models.RoleMember}
	stranger  = models.Actor{ID: "u-x", Email: "x@mail.io", Role: models.RoleMember}
	platform  = models.Actor{ID: "u-root", Email: "root@favored.io", Role: models.RoleAdmin}
)

type harness struct {
	svc     *Service
	apps    *fakeApplications
	notes   *fakeNotifications
	mail    *fakeNotify
	watch   *fakeWatch
	deps    Deps
	groupID primitive.ObjectID
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		apps:    newFakeApplications(),
		notes:   &fakeNotifications{},
		mail:    &fakeNotify{failTo: map[string]bool{}},
		watch:   &fakeWatch{},
		groupID: primitive.NewObjectID(),
		now:     t0,
	}
	targets := &fakeTargets{targets: map[primitive.ObjectID]models.Target{
		h.groupID: {
			Kind:  models.ApplicationKindEventGroup,
			ID:    h.groupID,
			Title: "Hack Night",
			Admins: []models.Recipient{
				{ID: lead.ID, Name: lead.Name, Email: lead.Email, Role: "admin"},
				{ID: coLead.ID, Name: coLead.Name, Email: coLead.Email, Role: "admin"},
			},
		},
	}}
	h.deps = Deps{
		Applications:  h.apps,
		Targets:       targets,
		Notifications: h.notes,
		Notify:        h.mail,
		Watch:         h.watch.subscribe,
		BaseURL:       "https://favored.test/",
		Now:           func() time.Time { return h.now },
	}
	h.svc = New(h.deps)
	return h
}

func (h *harness) join(t *testing.T, who models.Actor) JoinResult {
	t.Helper()
	res, err := h.svc.RequestToJoin(context.Background(), who, JoinRequest{
		Kind:     models.ApplicationKindEventGroup,
		TargetID: h.groupID,
		Role:     "Designer",
		Message:  "<b>Keen</b> to help",
	})
	require.NoError(t, err)
	return res
}

func TestRequestToJoin_CreatesAndNotifiesAdmins(t *testing.T) {
	h := newHarness(t)

	res := h.join(t, applicant)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, models.ApplicationPending, res.Application.Status)
	assert.Equal(t, "Hack Night", res.Application.TargetTitle)
	assert.Equal(t, "designer", res.Application.Role)
	assert.Equal(t, "Keen to help", res.Application.Message)
	assert.Equal(t, "Sam", res.Application.ApplicantName)
	assert.Len(t, res.Emails, 2)
	assert.Equal(t, 2, h.mail.count(notify.KindApplicationReceived))
	require.Len(t, h.notes.to(lead.Email), 1)
	assert.Equal(t, models.NotificationApplicationNew, h.notes.to(lead.Email)[0].Type)
	assert.Len(t, h.notes.to(coLead.Email), 1)
	assert.Equal(t, "https://favored.test/applications/event_group/"+h.groupID.Hex(), h.mail.sent[0].Context.URL)
}

func TestRequestToJoin_EmailFailureStillNotifiesInApp(t *testing.T) {
	h := newHarness(t)
	h.mail.failTo[lead.Email] = true

	res := h.join(t, applicant)

	require.Len(t, res.Emails, 2)
	okCount := 0
	for _, e := range res.Emails {
		if e.OK {
			okCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Len(t, h.notes.to(lead.Email), 1)
	assert.Equal(t, 1, h.apps.creates)
}

func TestRequestToJoin_WithoutDispatcherReportsEmailsSkipped(t *testing.T) {
	h := newHarness(t)
	d := h.deps
	d.Notify = nil
	h.svc = New(d)

	res := h.join(t, applicant)

	require.Len(t, res.Emails, 2)
	for _, e := range res.Emails {
		assert.False(t, e.OK)
		assert.True(t, e.Skipped)
		assert.Equal(t, notify.Disabled, e.Error)
	}
	assert.Len(t, h.notes.to(lead.Email), 1)
	assert.Len(t, h.notes.to(coLead.Email), 1)

	r, err := h.svc.Approve(context.Background(), models.ApplicationKindEventGroup, res.Application.ID, lead)
	require.NoError(t, err)
	assert.True(t, r.Email.Skipped)
}

func TestRequestToJoin_DuplicatePending(t *testing.T) {
	h := newHarness(t)
	first := h.join(t, applicant)

	res, err := h.svc.RequestToJoin(context.Background(), models.Actor{Email: " sam@mail.IO "}, JoinRequest{
		Kind:     models.ApplicationKindEventGroup,
		TargetID: h.groupID,
	})

	require.ErrorIs(t, err, ErrAlreadyPending)
	assert.Equal(t, OutcomeAlreadyPending, res.Outcome)
	assert.Equal(t, first.Application.ID, res.Application.ID)
	assert.Equal(t, 1, h.apps.creates)
}

func TestRequestToJoin_AlreadyMember(t *testing.T) {
	h := newHarness(t)
	app := h.join(t, applicant).Application
	_, err := h.svc.Approve(context.Background(), app.Kind, app.ID, lead)
	require.NoError(t, err)

	res, err := h.svc.RequestToJoin(context.Background(), applicant, JoinRequest{
		Kind:     models.ApplicationKindEventGroup,
		TargetID: h.groupID,
	})
	require.ErrorIs(t, err, ErrAlreadyMember)
	assert.Equal(t, OutcomeAlreadyMember, res.Outcome)

	_, err = h.svc.RequestToJoin(context.Background(), coLead, JoinRequest{
		Kind:     models.ApplicationKindEventGroup,
		TargetID: h.groupID,
	})
	assert.ErrorIs(t, err, ErrAlreadyMember)
}

func TestRequestToJoin_LostRaceReportsExisting(t *testing.T) {
	h := newHarness(t)
	winner := models.Application{
		ID:               primitive.NewObjectID(),
		Kind:             models.ApplicationKindEventGroup,
		TargetID:         h.groupID,
		ApplicantEmail:   applicant.Email,
		ApplicantEmailCI: "sam@mail.io",
		Status:           models.ApplicationPending,
		Open:             true,
	}
	h.apps.raceWith = &winner

	res, err := h.svc.RequestToJoin(context.Background(), applicant, JoinRequest{
		Kind:     models.ApplicationKindEventGroup,
		TargetID: h.groupID,
	})

	require.ErrorIs(t, err, ErrAlreadyPending)
	assert.Equal(t, winner.ID, res.Application.ID)
	assert.Zero(t, h.mail.count(notify.KindApplicationReceived))
}

func TestRequestToJoin_Invalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RequestToJoin(ctx, applicant, JoinRequest{Kind: "guild", TargetID: h.groupID})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.RequestToJoin(ctx, applicant, JoinRequest{Kind: models.ApplicationKindEventGroup})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.RequestToJoin(ctx, models.Actor{Name: "No Mail"}, JoinRequest{Kind: models.ApplicationKindEventGroup, TargetID: h.groupID})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.RequestToJoin(ctx, applicant, JoinRequest{Kind: models.ApplicationKindProject, TargetID: h.groupID})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestApprove_OnceOnly(t *testing.T) {
	h := newHarness(t)
	app := h.join(t, applicant).Application
	h.now = t0.Add(time.Hour)

	r, err := h.svc.Approve(context.Background(), app.Kind, app.ID, lead)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationActive, r.Application.Status)
	assert.True(t, r.Email.OK)
	assert.Equal(t, lead.Email, r.Application.ReviewedByEmail)
	require.NotNil(t, r.Application.ReviewedAt)
	assert.Equal(t, t0.Add(time.Hour), *r.Application.ReviewedAt)
	assert.Equal(t, 1, h.mail.count(notify.KindApplicationApproved))
	require.Len(t, h.notes.to(applicant.Email), 1)
	assert.Equal(t, models.NotificationApplicationOK, h.notes.to(applicant.Email)[0].Type)

	_, err = h.svc.Approve(context.Background(), app.Kind, app.ID, coLead)
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = h.svc.Reject(context.Background(), app.Kind, app.ID, coLead, "late")
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Equal(t, 1, h.apps.decisions)
	assert.Equal(t, 1, h.mail.count(notify.KindApplicationApproved))
	assert.Zero(t, h.mail.count(notify.KindApplicationRejected))
}

func TestReject_AllowsReapplying(t *testing.T) {
	h := newHarness(t)
	app := h.join(t, applicant).Application

	r, err := h.svc.Reject(context.Background(), app.Kind, app.ID, lead, "<i>Team is full</i>")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, r.Application.Status)
	assert.Equal(t, "Team is full", r.Application.RejectionReason)
	require.Len(t, h.notes.to(applicant.Email), 1)
	assert.Contains(t, h.notes.to(applicant.Email)[0].Message, "Reason: Team is full")

	again := h.join(t, applicant)
	assert.Equal(t, OutcomeCreated, again.Outcome)
	assert.NotEqual(t, app.ID, again.Application.ID)
}

func TestReview_Authorization(t *testing.T) {
	h := newHarness(t)
	app := h.join(t, applicant).Application
	ctx := context.Background()

	_, err := h.svc.Approve(ctx, app.Kind, app.ID, stranger)
	assert.ErrorIs(t, err, ErrNotTargetAdmin)
	_, err = h.svc.Approve(ctx, app.Kind, app.ID, applicant)
	assert.ErrorIs(t, err, ErrNotTargetAdmin)
	assert.Zero(t, h.apps.decisions)

	// Admins are matched by email regardless of case.
	_, err = h.svc.Approve(ctx, app.Kind, app.ID, models.Actor{Email: "LEAD@group.io"})
	assert.NoError(t, err)

	other := h.join(t, models.Actor{Email: "kim@mail.io"}).Application
	_, err = h.svc.Reject(ctx, other.Kind, other.ID, platform, "")
	assert.NoError(t, err)
}

func TestReview_NotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Approve(ctx, models.ApplicationKindEventGroup, primitive.NewObjectID(), lead)
	assert.ErrorIs(t, err, ErrApplicationNotFound)
	_, err = h.svc.Approve(ctx, "guild", primitive.NewObjectID(), lead)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestApprove_EmailFailureIsReported(t *testing.T) {
	h := newHarness(t)
	app := h.join(t, applicant).Application
	h.mail.failTo["sam@mail.io"] = true

	r, err := h.svc.Approve(context.Background(), app.Kind, app.ID, lead)

	require.NoError(t, err)
	assert.False(t, r.Email.OK)
	assert.NotEmpty(t, r.Email.Error)
	assert.Equal(t, models.ApplicationActive, r.Application.Status)
	assert.Len(t, h.notes.to(applicant.Email), 1)
}

func TestBulk_ContinuesPastFailures(t *testing.T) {
	h := newHarness(t)
	a := h.join(t, applicant).Application
	b := h.join(t, models.Actor{Email: "kim@mail.io"}).Application
	_, err := h.svc.Reject(context.Background(), b.Kind, b.ID, lead, "")
	require.NoError(t, err)
	c := h.join(t, models.Actor{Email: "lou@mail.io"}).Application
	missing := primitive.NewObjectID()

	res := h.svc.BulkApprove(context.Background(), models.ApplicationKindEventGroup,
		[]primitive.ObjectID{a.ID, b.ID, missing, c.ID, a.ID}, lead)

	require.Len(t, res.Items, 4)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.True(t, res.Items[0].OK)
	assert.Equal(t, models.ApplicationActive, res.Items[0].Status)
	assert.False(t, res.Items[1].OK)
	assert.Equal(t, ErrNotPending.Error(), res.Items[1].Error)
	assert.False(t, res.Items[2].OK)
	assert.True(t, res.Items[3].OK)
}

func TestBulkReject(t *testing.T) {
	h := newHarness(t)
	a := h.join(t, applicant).Application
	b := h.join(t, models.Actor{Email: "kim@mail.io"}).Application

	res := h.svc.BulkReject(context.Background(), models.ApplicationKindEventGroup,
		[]primitive.ObjectID{a.ID, b.ID}, stranger, "no")

	assert.Zero(t, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, ErrNotTargetAdmin.Error(), res.Items[0].Error)
}

func TestUrgency(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want string
	}{
		{0, UrgencyUrgent},
		{119 * time.Minute, UrgencyUrgent},
		{2 * time.Hour, UrgencyRecent},
		{23 * time.Hour, UrgencyRecent},
		{24 * time.Hour, UrgencyNormal},
		{71 * time.Hour, UrgencyNormal},
		{72 * time.Hour, UrgencyOld},
		{30 * 24 * time.Hour, UrgencyOld},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Urgency(t0.Add(-tc.age), t0), "age %s", tc.age)
	}
}

func TestList_OldestFirstWithUrgency(t *testing.T) {
	h := newHarness(t)
	h.now = t0.Add(-80 * time.Hour)
	h.join(t, applicant)
	h.now = t0.Add(-time.Hour)
	h.join(t, models.Actor{Email: "kim@mail.io"})
	h.now = t0

	views, err := h.svc.List(context.Background(), models.ApplicationKindEventGroup, h.groupID, lead, models.ApplicationPending)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "sam@mail.io", views[0].ApplicantEmailCI)
	assert.Equal(t, UrgencyOld, views[0].Urgency)
	assert.Equal(t, UrgencyUrgent, views[1].Urgency)

	_, err = h.svc.List(context.Background(), models.ApplicationKindEventGroup, h.groupID, applicant, "")
	assert.ErrorIs(t, err, ErrNotTargetAdmin)
}

func TestSubscribe_DeliversPendingOnChange(t *testing.T) {
	h := newHarness(t)
	var got [][]View
	stop, err := h.svc.Subscribe(context.Background(), models.ApplicationKindEventGroup, h.groupID, lead, func(v []View) {
		got = append(got, v)
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationKindEventGroup, h.watch.kind)
	assert.Equal(t, h.groupID, h.watch.filter["target_id"])

	h.join(t, applicant)
	h.watch.fire()
	require.Len(t, got, 1)
	assert.Len(t, got[0], 1)

	stop()
	assert.True(t, h.watch.stopped)

	_, err = h.svc.Subscribe(context.Background(), models.ApplicationKindEventGroup, h.groupID, stranger, func([]View) {})
	assert.ErrorIs(t, err, ErrNotTargetAdmin)
}

func TestSubscribe_Disabled(t *testing.T) {
	svc := New(Deps{Applications: newFakeApplications(), Targets: &fakeTargets{}})
	_, err := svc.Subscribe(context.Background(), models.ApplicationKindProject, primitive.NewObjectID(), lead, func([]View) {})
	assert.ErrorIs(t, err, ErrSubscriptionDisabled)
}
