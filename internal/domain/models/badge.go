// internal/domain/models/badge.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Badge is an immutable award for one member's contribution. One per
// (completion_request_id, recipient_email_ci).
type Badge struct {
	ID                  primitive.ObjectID `bson:"_id" json:"id"`
	CompletionRequestID primitive.ObjectID `bson:"completion_request_id" json:"completion_request_id"`
	GroupID             primitive.ObjectID `bson:"group_id" json:"group_id"`
	ProjectTitle        string             `bson:"project_title" json:"project_title"`
	Project             *ProjectRef        `bson:"project,omitempty" json:"project,omitempty"`

	RecipientEmail   string `bson:"recipient_email" json:"recipient_email"`
	RecipientEmailCI string `bson:"recipient_email_ci" json:"-"`
	RecipientName    string `bson:"recipient_name" json:"recipient_name"`
	RecipientRole    string `bson:"recipient_role,omitempty" json:"recipient_role,omitempty"`

	Category     string   `bson:"category" json:"category"`
	Level        string   `bson:"level" json:"level"`
	Contribution string   `bson:"contribution" json:"contribution"`
	Skills       []string `bson:"skills" json:"skills"`
	AdminNotes   string   `bson:"admin_notes,omitempty" json:"admin_notes,omitempty"`

	AwardedByID    string    `bson:"awarded_by_id" json:"awarded_by_id"`
	AwardedByEmail string    `bson:"awarded_by_email" json:"awarded_by_email"`
	AwardedByName  string    `bson:"awarded_by_name" json:"awarded_by_name"`
	AwardedAt      time.Time `bson:"awarded_at" json:"awarded_at"`
}
