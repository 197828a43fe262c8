// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group status values touched by the completion workflow.
const (
	GroupStatusActive     = "active"
	GroupStatusApproved   = "approved"
	GroupStatusCompleting = "completing"
	GroupStatusCompleted  = "completed"
)

// Group is a team workspace bound to one project instance.
//
// NOTE:
//   - Members are not embedded; they live in the group_members collection.
//   - Project points at the originating listing (client_projects,
//     paid_projects or projects) when the group was formed from one.
type Group struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	AdminID     string             `bson:"admin_id" json:"admin_id"`
	AdminEmail  string             `bson:"admin_email" json:"admin_email"`
	AdminName   string             `bson:"admin_name,omitempty" json:"admin_name,omitempty"`
	Status      string             `bson:"status" json:"status"`

	Project          *ProjectRef         `bson:"project,omitempty" json:"project,omitempty"`
	CompletionStatus CompletionReadiness `bson:"completion_status" json:"completion_status"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// CompletionReadiness is set by processes outside the workflow to signal the
// group may proceed to badge assignment.
type CompletionReadiness struct {
	IsReadyForCompletion bool `bson:"is_ready_for_completion" json:"is_ready_for_completion"`
}

// IsAdmin reports whether a is the group's admin, by id or by email.
func (g Group) IsAdmin(a Actor) bool {
	if g.AdminID != "" && a.ID != "" && g.AdminID == a.ID {
		return true
	}
	return SameEmail(g.AdminEmail, a.Email)
}

// ReadyForBadges reports the external readiness signal used when no
// completion request exists yet.
func (g Group) ReadyForBadges() bool {
	return g.CompletionStatus.IsReadyForCompletion || g.Status == GroupStatusApproved
}
