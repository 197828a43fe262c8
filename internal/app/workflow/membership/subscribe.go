package membership

import (
	"context"

	applicationstore "github.com/opethaiwoh/favored/internal/app/store/applications"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Subscribe delivers the target's pending applications to cb now and after
// every change, until the returned function is called. Only target admins
// may subscribe. cb runs on the subscription's goroutine.
func (s *Service) Subscribe(ctx context.Context, kind string, targetID primitive.ObjectID, actor models.Actor, cb func([]View)) (func(), error) {
	if s.watch == nil {
		return nil, ErrSubscriptionDisabled
	}
	if err := s.authorize(ctx, kind, targetID, actor); err != nil {
		return nil, err
	}
	refresh := func(ctx context.Context) {
		views, err := s.List(ctx, kind, targetID, actor, models.ApplicationPending)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("refresh application subscription",
					zap.String("kind", kind),
					zap.String("target_id", targetID.Hex()),
					zap.Error(err))
			}
			return
		}
		cb(views)
	}
	return s.watch(kind, applicationstore.TargetFilter(targetID), refresh)
}
