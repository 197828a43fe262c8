package completion_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	completionstore "github.com/opethaiwoh/favored/internal/app/store/completions"
	"github.com/opethaiwoh/favored/internal/app/system/notify"
	"github.com/opethaiwoh/favored/internal/app/system/txn"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type fakeGroups struct {
	mu     sync.Mutex
	groups map[primitive.ObjectID]models.Group
}

func (f *fakeGroups) GetByID(_ context.Context, id primitive.ObjectID) (models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	return g, nil
}

func (f *fakeGroups) MarkCompleting(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.groups[id]
	if g.Status != models.GroupStatusCompleted {
		g.Status = models.GroupStatusCompleting
	}
	f.groups[id] = g
	return nil
}

func (f *fakeGroups) MarkCompleted(_ context.Context, id primitive.ObjectID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.groups[id]
	if g.Status != models.GroupStatusCompleted {
		g.Status = models.GroupStatusCompleted
		g.CompletedAt = &at
	}
	f.groups[id] = g
	return nil
}

type fakeMembers map[primitive.ObjectID][]models.TeamMember

func (f fakeMembers) ActiveMembers(_ context.Context, id primitive.ObjectID) ([]models.TeamMember, error) {
	return f[id], nil
}

// fakeRequests mirrors the conditional updates of completionstore.
type fakeRequests struct {
	mu      sync.Mutex
	byGroup map[primitive.ObjectID]*models.CompletionRequest
	writes  int
}

func (f *fakeRequests) Create(_ context.Context, req models.CompletionRequest) (models.CompletionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byGroup[req.GroupID]; ok {
		return models.CompletionRequest{}, completionstore.ErrDuplicateCompletion
	}
	req.ID = primitive.NewObjectID()
	req.TeamSize = len(req.TeamMembers)
	cp := req
	f.byGroup[req.GroupID] = &cp
	f.writes++
	return req, nil
}

func (f *fakeRequests) GetByGroup(_ context.Context, groupID primitive.ObjectID) (models.CompletionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byGroup[groupID]
	if !ok {
		return models.CompletionRequest{}, mongo.ErrNoDocuments
	}
	return *r, nil
}

func (f *fakeRequests) find(id primitive.ObjectID) *models.CompletionRequest {
	for _, r := range f.byGroup {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (f *fakeRequests) update(id primitive.ObjectID, ok func(*models.CompletionRequest) bool, apply func(*models.CompletionRequest)) (models.CompletionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.find(id)
	if r == nil || r.FinalCompletion.Completed || !ok(r) {
		return models.CompletionRequest{}, completionstore.ErrConflict
	}
	apply(r)
	f.writes++
	return *r, nil
}

func (f *fakeRequests) SubmitEvaluation(_ context.Context, id primitive.ObjectID, evals []models.MemberEvaluation, at time.Time) (models.CompletionRequest, error) {
	return f.update(id,
		func(r *models.CompletionRequest) bool { return r.Status == models.CompletionStatusEvaluation },
		func(r *models.CompletionRequest) {
			r.EvaluationForm = models.EvaluationForm{SubmittedAt: &at, Evaluations: evals}
			r.Status = models.CompletionStatusPendingApproval
			r.Phase = models.PhaseAdminReview
			r.AdminApproval.Rejected = false
			r.AdminApproval.RejectionReason = ""
		})
}

func (f *fakeRequests) Approve(_ context.Context, id primitive.ObjectID, by string, at time.Time) (models.CompletionRequest, error) {
	return f.update(id,
		func(r *models.CompletionRequest) bool {
			return r.Status == models.CompletionStatusPendingApproval && !r.AdminApproval.Approved
		},
		func(r *models.CompletionRequest) {
			r.AdminApproval.Approved = true
			r.AdminApproval.ApprovedBy = by
			r.AdminApproval.ApprovedAt = &at
		})
}

func (f *fakeRequests) Reject(_ context.Context, id primitive.ObjectID, by, reason string, at time.Time) (models.CompletionRequest, error) {
	return f.update(id,
		func(r *models.CompletionRequest) bool {
			return r.Status == models.CompletionStatusPendingApproval && !r.AdminApproval.Approved
		},
		func(r *models.CompletionRequest) {
			r.AdminApproval.Rejected = true
			r.AdminApproval.RejectedBy = by
			r.AdminApproval.RejectedAt = &at
			r.AdminApproval.RejectionReason = reason
			r.Status = models.CompletionStatusEvaluation
			r.Phase = models.PhaseEvaluation
		})
}

func (f *fakeRequests) Finalize(_ context.Context, id primitive.ObjectID, fc models.FinalCompletion) (models.CompletionRequest, error) {
	return f.update(id,
		func(*models.CompletionRequest) bool { return true },
		func(r *models.CompletionRequest) {
			fc.Completed = true
			r.FinalCompletion = fc
			r.Status = models.CompletionStatusCompleted
			r.Phase = ""
		})
}

type fakeBadges struct {
	mu     sync.Mutex
	issued map[string]models.Badge
	failOn map[string]error
}

func (f *fakeBadges) Issue(_ context.Context, b models.Badge) (models.Badge, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := strings.ToLower(b.RecipientEmail)
	if err := f.failOn[email]; err != nil {
		return models.Badge{}, false, err
	}
	key := b.CompletionRequestID.Hex() + "/" + email
	if have, ok := f.issued[key]; ok {
		return have, false, nil
	}
	b.ID = primitive.NewObjectID()
	f.issued[key] = b
	return b, true, nil
}

type fakeCertificates struct {
	mu     sync.Mutex
	issued []models.Certificate
	err    error
}

func (f *fakeCertificates) Issue(_ context.Context, c models.Certificate) (models.Certificate, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Certificate{}, false, f.err
	}
	for _, have := range f.issued {
		if have.CompletionRequestID == c.CompletionRequestID && have.Type == c.Type &&
			strings.EqualFold(have.RecipientEmail, c.RecipientEmail) {
			return have, false, nil
		}
	}
	c.ID = primitive.NewObjectID()
	c.Number = "FVD-TEST-" + c.ID.Hex()[16:]
	f.issued = append(f.issued, c)
	return c, true, nil
}

type fakeNotifications struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n models.Notification) (models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return n, nil
}

func (f *fakeNotifications) to(email string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.sent {
		if strings.EqualFold(n.RecipientEmail, email) {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeNotifications) toRole(role string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.sent {
		if n.RecipientRole == role {
			out = append(out, n)
		}
	}
	return out
}

type fakeListings struct {
	mu     sync.Mutex
	closed map[primitive.ObjectID]bool
}

func (f *fakeListings) Close(_ context.Context, ref models.ProjectRef, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[ref.ID] = true
	return nil
}

type fakeNotify struct {
	mu     sync.Mutex
	msgs   []notify.Message
	failTo map[string]bool
}

func (f *fakeNotify) Send(_ context.Context, msg notify.Message) notify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	if f.failTo[strings.ToLower(msg.Recipient.Email)] {
		return notify.Result{Kind: msg.Kind, Recipient: msg.Recipient.Email, Error: "dispatcher returned 502"}
	}
	return notify.Result{Kind: msg.Kind, Recipient: msg.Recipient.Email, OK: true}
}

func (f *fakeNotify) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// fakeTx either runs fn directly or reports no transaction support.
type fakeTx struct {
	supported bool
	calls     int
}

func (f *fakeTx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if !f.supported {
		return txn.ErrNotSupported
	}
	return fn(ctx)
}

var errBoom = errors.New("boom")
