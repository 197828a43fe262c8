// internal/domain/models/certificate.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Certificate type tags.
const (
	CertificateProjectCompletion = "project_completion"
	CertificateSoloCompletion    = "solo_project_completion"
)

// Certificate is an immutable completion record. One per
// (completion_request_id, recipient_email_ci, type).
type Certificate struct {
	ID                  primitive.ObjectID `bson:"_id" json:"id"`
	Number              string             `bson:"number" json:"number"`
	Type                string             `bson:"type" json:"type"`
	CompletionRequestID primitive.ObjectID `bson:"completion_request_id" json:"completion_request_id"`
	GroupID             primitive.ObjectID `bson:"group_id" json:"group_id"`
	ProjectTitle        string             `bson:"project_title" json:"project_title"`
	Project             *ProjectRef        `bson:"project,omitempty" json:"project,omitempty"`

	RecipientID      string `bson:"recipient_id,omitempty" json:"recipient_id,omitempty"`
	RecipientEmail   string `bson:"recipient_email" json:"recipient_email"`
	RecipientEmailCI string `bson:"recipient_email_ci" json:"-"`
	RecipientName    string `bson:"recipient_name" json:"recipient_name"`

	TeamSize      int  `bson:"team_size" json:"team_size"`
	BadgeCount    int  `bson:"badge_count" json:"badge_count"`
	IsSoloProject bool `bson:"is_solo_project" json:"is_solo_project"`

	IssuedAt time.Time `bson:"issued_at" json:"issued_at"`
}
