// internal/app/store/completions/completionstore.go
package completionstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateCompletion is returned when the group already has a
// completion request.
var ErrDuplicateCompletion = errors.New("a completion request already exists for this group")

// ErrConflict is returned when a conditional update matched nothing: the
// request moved on since it was read, or it is already terminal.
var ErrConflict = errors.New("completion request is no longer in the expected state")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("project_completion_requests")}
}

// notTerminal is merged into every workflow update so a finalized request
// can never be rewritten.
func notTerminal(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id, "final_completion.completed": bson.M{"$ne": true}}
}

func (s *Store) Create(ctx context.Context, req models.CompletionRequest) (models.CompletionRequest, error) {
	now := time.Now().UTC()
	if req.ID.IsZero() {
		req.ID = primitive.NewObjectID()
	}
	if req.InitiatedAt.IsZero() {
		req.InitiatedAt = now
	}
	req.UpdatedAt = now
	if req.TeamMembers == nil {
		req.TeamMembers = []models.TeamMember{}
	}
	if req.EvaluationForm.Evaluations == nil {
		req.EvaluationForm.Evaluations = []models.MemberEvaluation{}
	}
	req.TeamSize = len(req.TeamMembers)

	if _, err := s.c.InsertOne(ctx, req); err != nil {
		if wafflemongo.IsDup(err) {
			return models.CompletionRequest{}, ErrDuplicateCompletion
		}
		return models.CompletionRequest{}, err
	}
	return req, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.CompletionRequest, error) {
	var r models.CompletionRequest
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return models.CompletionRequest{}, err
	}
	return r, nil
}

// GetByGroup returns mongo.ErrNoDocuments when the group has no request.
func (s *Store) GetByGroup(ctx context.Context, groupID primitive.ObjectID) (models.CompletionRequest, error) {
	var r models.CompletionRequest
	if err := s.c.FindOne(ctx, bson.M{"group_id": groupID}).Decode(&r); err != nil {
		return models.CompletionRequest{}, err
	}
	return r, nil
}

// ListPending returns requests awaiting a reviewer decision, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int64) ([]models.CompletionRequest, error) {
	filter := bson.M{
		"status":                     models.CompletionStatusPendingApproval,
		"admin_approval.approved":    bson.M{"$ne": true},
		"final_completion.completed": bson.M{"$ne": true},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.CompletionRequest
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitEvaluation stores the admin's evaluations and moves the request to
// admin review. Only a request in the evaluation phase accepts it, which
// also covers resubmission after a rejection.
func (s *Store) SubmitEvaluation(ctx context.Context, id primitive.ObjectID, evals []models.MemberEvaluation, at time.Time) (models.CompletionRequest, error) {
	filter := notTerminal(id)
	filter["status"] = models.CompletionStatusEvaluation
	return s.update(ctx, filter, bson.M{"$set": bson.M{
		"evaluation_form.submitted_at":    at,
		"evaluation_form.evaluations":     evals,
		"status":                          models.CompletionStatusPendingApproval,
		"phase":                           models.PhaseAdminReview,
		"admin_approval.rejected":         false,
		"admin_approval.rejection_reason": "",
		"updated_at":                      at,
	}})
}

// Approve records the reviewer's approval. Status stays pending until the
// group admin finalizes.
func (s *Store) Approve(ctx context.Context, id primitive.ObjectID, by string, at time.Time) (models.CompletionRequest, error) {
	filter := notTerminal(id)
	filter["status"] = models.CompletionStatusPendingApproval
	filter["admin_approval.approved"] = bson.M{"$ne": true}
	return s.update(ctx, filter, bson.M{"$set": bson.M{
		"admin_approval.approved":    true,
		"admin_approval.approved_by": by,
		"admin_approval.approved_at": at,
		"admin_approval.rejected":    false,
		"updated_at":                 at,
	}})
}

// Reject sends the request back to the evaluation phase with a reason.
func (s *Store) Reject(ctx context.Context, id primitive.ObjectID, by, reason string, at time.Time) (models.CompletionRequest, error) {
	filter := notTerminal(id)
	filter["status"] = models.CompletionStatusPendingApproval
	filter["admin_approval.approved"] = bson.M{"$ne": true}
	return s.update(ctx, filter, bson.M{"$set": bson.M{
		"admin_approval.rejected":         true,
		"admin_approval.rejected_by":      by,
		"admin_approval.rejected_at":      at,
		"admin_approval.rejection_reason": reason,
		"status":                          models.CompletionStatusEvaluation,
		"phase":                           models.PhaseEvaluation,
		"updated_at":                      at,
	}})
}

// Finalize writes the terminal block. It succeeds at most once per request.
func (s *Store) Finalize(ctx context.Context, id primitive.ObjectID, fc models.FinalCompletion) (models.CompletionRequest, error) {
	fc.Completed = true
	at := time.Now().UTC()
	if fc.CompletedAt == nil {
		fc.CompletedAt = &at
	}
	return s.update(ctx, notTerminal(id), bson.M{"$set": bson.M{
		"final_completion": fc,
		"status":           models.CompletionStatusCompleted,
		"phase":            "",
		"updated_at":       *fc.CompletedAt,
	}})
}

func (s *Store) update(ctx context.Context, filter, update bson.M) (models.CompletionRequest, error) {
	var r models.CompletionRequest
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.CompletionRequest{}, ErrConflict
	}
	if err != nil {
		return models.CompletionRequest{}, err
	}
	return r, nil
}
