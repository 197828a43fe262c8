package membership

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	applicationstore "github.com/opethaiwoh/favored/internal/app/store/applications"
	"github.com/opethaiwoh/favored/internal/app/system/notify"
	"github.com/opethaiwoh/favored/internal/app/system/watch"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var errBoom = errors.New("boom")

type fakeApplications struct {
	mu   sync.Mutex
	apps map[primitive.ObjectID]models.Application
	// raceWith is inserted in place of the next Create, simulating a
	// concurrent request that won the unique index.
	raceWith  *models.Application
	creates   int
	decisions int
}

func newFakeApplications() *fakeApplications {
	return &fakeApplications{apps: map[primitive.ObjectID]models.Application{}}
}

func (f *fakeApplications) openFor(kind string, target primitive.ObjectID, email string) (models.Application, bool) {
	for _, a := range f.apps {
		if a.Kind == kind && a.TargetID == target && a.Open && a.ApplicantEmailCI == strings.ToLower(email) {
			return a, true
		}
	}
	return models.Application{}, false
}

func (f *fakeApplications) Create(_ context.Context, app models.Application) (models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raceWith != nil {
		f.apps[f.raceWith.ID] = *f.raceWith
		f.raceWith = nil
	}
	app.ApplicantEmailCI = strings.ToLower(strings.TrimSpace(app.ApplicantEmail))
	if _, dup := f.openFor(app.Kind, app.TargetID, app.ApplicantEmailCI); dup {
		return models.Application{}, applicationstore.ErrDuplicateApplication
	}
	app.ID = primitive.NewObjectID()
	app.Status = models.ApplicationPending
	app.Open = true
	f.apps[app.ID] = app
	f.creates++
	return app, nil
}

func (f *fakeApplications) Get(_ context.Context, kind string, id primitive.ObjectID) (models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[id]
	if !ok || a.Kind != kind {
		return models.Application{}, mongo.ErrNoDocuments
	}
	return a, nil
}

func (f *fakeApplications) FindOpen(_ context.Context, kind string, target primitive.ObjectID, email string) (models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.openFor(kind, target, email); ok {
		return a, nil
	}
	return models.Application{}, mongo.ErrNoDocuments
}

func (f *fakeApplications) Decide(_ context.Context, kind string, id primitive.ObjectID, status string, reviewer models.Actor, reason string, at time.Time) (models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[id]
	if !ok || a.Kind != kind {
		return models.Application{}, mongo.ErrNoDocuments
	}
	if a.Status != models.ApplicationPending {
		return models.Application{}, applicationstore.ErrNotPending
	}
	a.Status = status
	a.Open = status == models.ApplicationActive
	a.ReviewedByID = reviewer.ID
	a.ReviewedByEmail = reviewer.Email
	a.ReviewedAt = &at
	a.RejectionReason = reason
	f.apps[id] = a
	f.decisions++
	return a, nil
}

func (f *fakeApplications) ListByTarget(_ context.Context, kind string, target primitive.ObjectID, status string) ([]models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Application
	for _, a := range f.apps {
		if a.Kind == kind && a.TargetID == target && (status == "" || a.Status == status) {
			out = append(out, a)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].AppliedAt.Before(out[j-1].AppliedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

type fakeTargets struct {
	targets map[primitive.ObjectID]models.Target
	err     error
}

func (f *fakeTargets) Resolve(_ context.Context, kind string, id primitive.ObjectID) (models.Target, error) {
	if f.err != nil {
		return models.Target{}, f.err
	}
	t, ok := f.targets[id]
	if !ok || t.Kind != kind {
		return models.Target{}, mongo.ErrNoDocuments
	}
	return t, nil
}

type fakeNotifications struct {
	mu    sync.Mutex
	items []models.Notification
	err   error
}

func (f *fakeNotifications) Create(_ context.Context, n models.Notification) (models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Notification{}, f.err
	}
	f.items = append(f.items, n)
	return n, nil
}

func (f *fakeNotifications) to(email string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.items {
		if models.SameEmail(n.RecipientEmail, email) {
			out = append(out, n)
		}
	}
	return out
}

type fakeNotify struct {
	mu     sync.Mutex
	sent   []notify.Message
	failTo map[string]bool
}

func (f *fakeNotify) Send(_ context.Context, msg notify.Message) notify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.failTo[strings.ToLower(msg.Recipient.Email)] {
		return notify.Result{Kind: msg.Kind, Recipient: msg.Recipient.Email, Error: "dispatcher returned 502"}
	}
	return notify.Result{Kind: msg.Kind, Recipient: msg.Recipient.Email, OK: true}
}

func (f *fakeNotify) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// fakeWatch records subscriptions and lets tests fire refreshes by hand.
type fakeWatch struct {
	mu      sync.Mutex
	kind    string
	filter  bson.M
	refresh watch.Refresh
	stopped bool
}

func (f *fakeWatch) subscribe(kind string, filter bson.M, refresh watch.Refresh) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kind, f.filter, f.refresh = kind, filter, refresh
	return func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeWatch) fire() {
	f.mu.Lock()
	r := f.refresh
	f.mu.Unlock()
	r(context.Background())
}
