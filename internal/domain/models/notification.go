// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-app notification types.
const (
	NotificationCompletionReview   = "completion_review_request"
	NotificationCompletionApproved = "completion_approved"
	NotificationCompletionRejected = "completion_rejected"
	NotificationBadgeAwarded       = "badge_awarded"
	NotificationApplicationNew     = "application_received"
	NotificationApplicationOK      = "application_approved"
	NotificationApplicationDenied  = "application_rejected"
)

// Notification is an in-app message. It is addressed either to one user by
// email or to every user holding RecipientRole.
type Notification struct {
	ID               primitive.ObjectID `bson:"_id" json:"id"`
	RecipientEmail   string             `bson:"recipient_email,omitempty" json:"recipient_email,omitempty"`
	RecipientEmailCI string             `bson:"recipient_email_ci,omitempty" json:"-"`
	RecipientRole    string             `bson:"recipient_role,omitempty" json:"recipient_role,omitempty"`

	Type    string `bson:"type" json:"type"`
	Title   string `bson:"title" json:"title"`
	Message string `bson:"message" json:"message"`
	RefType string `bson:"ref_type,omitempty" json:"ref_type,omitempty"`
	RefID   string `bson:"ref_id,omitempty" json:"ref_id,omitempty"`

	Read      bool       `bson:"read" json:"read"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	ReadAt    *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
}
