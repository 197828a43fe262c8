// internal/domain/models/application.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Application kinds. Each kind lives in its own collection.
const (
	ApplicationKindEventGroup = "event_group"
	ApplicationKindProject    = "project"
)

// Application status values. pending moves once, to active or rejected.
const (
	ApplicationPending  = "pending"
	ApplicationActive   = "active"
	ApplicationRejected = "rejected"
)

// ApplicationCollection maps a kind to the collection storing it.
func ApplicationCollection(kind string) (string, bool) {
	switch kind {
	case ApplicationKindEventGroup:
		return "event_group_members", true
	case ApplicationKindProject:
		return "project_applications", true
	}
	return "", false
}

// Application is a request to join an event group or a project team.
//
// Open mirrors Status in {pending, active}; a partial unique index on
// (target_id, applicant_email_ci) where open is true keeps one live
// application per applicant and target. Rejected applications stay queryable.
type Application struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Kind        string             `bson:"kind" json:"kind"`
	TargetID    primitive.ObjectID `bson:"target_id" json:"target_id"`
	TargetTitle string             `bson:"target_title,omitempty" json:"target_title,omitempty"`

	ApplicantID      string `bson:"applicant_id,omitempty" json:"applicant_id,omitempty"`
	ApplicantEmail   string `bson:"applicant_email" json:"applicant_email"`
	ApplicantEmailCI string `bson:"applicant_email_ci" json:"-"`
	ApplicantName    string `bson:"applicant_name" json:"applicant_name"`

	Role    string `bson:"role" json:"role"`
	Message string `bson:"message,omitempty" json:"message,omitempty"`

	Status    string    `bson:"status" json:"status"`
	Open      bool      `bson:"open" json:"-"`
	AppliedAt time.Time `bson:"applied_at" json:"applied_at"`

	ReviewedByID    string     `bson:"reviewed_by_id,omitempty" json:"reviewed_by_id,omitempty"`
	ReviewedByEmail string     `bson:"reviewed_by_email,omitempty" json:"reviewed_by_email,omitempty"`
	ReviewedAt      *time.Time `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	RejectionReason string     `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
}

// Target is the event group or project listing an application is for,
// with the people who review applications to it.
type Target struct {
	Kind   string             `json:"kind"`
	ID     primitive.ObjectID `json:"id"`
	Title  string             `json:"title"`
	Admins []Recipient        `json:"admins"`
}

// Recipient is a person a notification can be addressed to.
type Recipient struct {
	ID    string `bson:"id,omitempty" json:"id,omitempty"`
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
	Role  string `bson:"role,omitempty" json:"role,omitempty"`
}

// IsAdmin reports whether a reviews applications for the target.
func (t Target) IsAdmin(a Actor) bool {
	for _, r := range t.Admins {
		if r.ID != "" && a.ID != "" && r.ID == a.ID {
			return true
		}
		if SameEmail(r.Email, a.Email) {
			return true
		}
	}
	return false
}
