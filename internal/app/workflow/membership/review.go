package membership

import (
	"context"
	"errors"
	"time"

	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Urgency buckets for pending applications, by time waiting.
const (
	UrgencyUrgent = "urgent"
	UrgencyRecent = "recent"
	UrgencyNormal = "normal"
	UrgencyOld    = "old"
)

// Urgency buckets an application by how long ago it was made: under two
// hours is urgent, under a day recent, under three days normal.
func Urgency(appliedAt, now time.Time) string {
	age := now.Sub(appliedAt)
	switch {
	case age < 2*time.Hour:
		return UrgencyUrgent
	case age < 24*time.Hour:
		return UrgencyRecent
	case age < 72*time.Hour:
		return UrgencyNormal
	default:
		return UrgencyOld
	}
}

// View is an application as shown to a reviewer.
type View struct {
	models.Application
	Urgency string `json:"urgency"`
}

// List returns a target's applications, oldest first, for one of its admins.
// An empty status lists every status.
func (s *Service) List(ctx context.Context, kind string, targetID primitive.ObjectID, actor models.Actor, status string) ([]View, error) {
	if err := s.authorize(ctx, kind, targetID, actor); err != nil {
		return nil, err
	}
	apps, err := s.apps.ListByTarget(ctx, kind, targetID, status)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]View, 0, len(apps))
	for _, a := range apps {
		out = append(out, View{Application: a, Urgency: Urgency(a.AppliedAt, now)})
	}
	return out, nil
}

// ItemResult is the outcome for one application in a bulk review.
type ItemResult struct {
	ID     primitive.ObjectID `json:"id"`
	OK     bool               `json:"ok"`
	Status string             `json:"status,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// BulkResult summarises a bulk review.
type BulkResult struct {
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// BulkApprove approves each application in turn. A failure on one does not
// stop the rest.
func (s *Service) BulkApprove(ctx context.Context, kind string, ids []primitive.ObjectID, reviewer models.Actor) BulkResult {
	return s.bulk(ctx, ids, "approve", func(id primitive.ObjectID) (Review, error) {
		return s.Approve(ctx, kind, id, reviewer)
	})
}

// BulkReject rejects each application with the same reason.
func (s *Service) BulkReject(ctx context.Context, kind string, ids []primitive.ObjectID, reviewer models.Actor, reason string) BulkResult {
	return s.bulk(ctx, ids, "reject", func(id primitive.ObjectID) (Review, error) {
		return s.Reject(ctx, kind, id, reviewer, reason)
	})
}

func (s *Service) bulk(ctx context.Context, ids []primitive.ObjectID, op string, one func(primitive.ObjectID) (Review, error)) BulkResult {
	res := BulkResult{Items: make([]ItemResult, 0, len(ids))}
	seen := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if ctx.Err() != nil {
			res.Items = append(res.Items, ItemResult{ID: id, Error: ctx.Err().Error()})
			res.Failed++
			continue
		}
		r, err := one(id)
		if err != nil {
			if !errors.Is(err, ErrNotPending) {
				s.log.Warn("bulk review item failed",
					zap.String("op", op), zap.String("id", id.Hex()), zap.Error(err))
			}
			res.Items = append(res.Items, ItemResult{ID: id, Error: err.Error()})
			res.Failed++
			continue
		}
		res.Items = append(res.Items, ItemResult{ID: id, OK: true, Status: r.Application.Status})
		res.Succeeded++
	}
	return res
}
