// Package watch turns a filtered MongoDB collection into a push
// subscription.
//
// A subscription prefers a change stream. Deployments without change streams
// (standalone servers) and streams that die mid-flight degrade to polling at
// a fixed interval. Either way the subscriber is only told "something may
// have changed" and re-reads its own snapshot, so delivery is eventually
// consistent with the store and carries no ordering guarantee.
package watch

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = 5 * time.Second

// Refresh re-reads the subscriber's snapshot and delivers it.
type Refresh func(ctx context.Context)

type stream interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

type openFunc func(ctx context.Context, pipeline mongo.Pipeline) (stream, error)

// Watcher creates subscriptions on one collection.
type Watcher struct {
	open     openFunc
	interval time.Duration
	log      *zap.Logger
}

// New builds a Watcher over coll.
func New(coll *mongo.Collection, interval time.Duration, log *zap.Logger) *Watcher {
	open := func(ctx context.Context, p mongo.Pipeline) (stream, error) {
		opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
		return coll.Watch(ctx, p, opts)
	}
	return newWatcher(open, interval, log.With(zap.String("collection", coll.Name())))
}

func newWatcher(open openFunc, interval time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{open: open, interval: interval, log: log}
}

// Subscription is a live subscription. Stop ends it.
type Subscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Stop ends the subscription and waits for its goroutine to exit. Safe to
// call more than once.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// Subscribe delivers an initial snapshot, then one refresh per matching
// change (or per polling tick) until Stop. filter keys are matched against
// the changed document.
func (w *Watcher) Subscribe(filter bson.M, refresh Refresh) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{cancel: cancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		refresh(ctx)
		if !w.streamLoop(ctx, filter, refresh) {
			w.pollLoop(ctx, refresh)
		}
	}()
	return s
}

// streamLoop returns true when it ended because ctx was cancelled, false
// when the caller should fall back to polling.
func (w *Watcher) streamLoop(ctx context.Context, filter bson.M, refresh Refresh) bool {
	cs, err := w.open(ctx, pipelineFor(filter))
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		w.log.Info("change streams unavailable; polling",
			zap.Duration("interval", w.interval),
			zap.Error(err))
		return false
	}
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		refresh(ctx)
	}
	if ctx.Err() != nil {
		return true
	}
	w.log.Warn("change stream ended; polling", zap.Error(cs.Err()))
	return false
}

func (w *Watcher) pollLoop(ctx context.Context, refresh Refresh) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh(ctx)
		}
	}
}

func pipelineFor(filter bson.M) mongo.Pipeline {
	match := bson.D{}
	for k, v := range filter {
		match = append(match, bson.E{Key: "fullDocument." + k, Value: v})
	}
	if len(match) == 0 {
		return mongo.Pipeline{}
	}
	return mongo.Pipeline{{{Key: "$match", Value: match}}}
}
