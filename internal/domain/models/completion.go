// internal/domain/models/completion.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CompletionRequest status values.
const (
	CompletionStatusEvaluation      = "evaluation_phase"
	CompletionStatusPendingApproval = "pending_admin_approval"
	CompletionStatusCompleted       = "completed"
)

// CompletionRequest phase values. An empty phase means none.
const (
	PhaseEvaluation  = "evaluation"
	PhaseAdminReview = "admin_review"
)

// Derived workflow steps shown to the group admin.
const (
	StepAwaitingApproval = 1
	StepBadgeAssignment  = 2
	StepCompleted        = 3
)

// CompletionRequest is the aggregate tracking one group's completion
// workflow. Exactly one per group, enforced by a unique index on group_id.
//
// Once FinalCompletion.Completed is true the document is terminal and the
// store refuses further workflow updates.
type CompletionRequest struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	GroupID    primitive.ObjectID `bson:"group_id" json:"group_id"`
	GroupTitle string             `bson:"group_title" json:"group_title"`
	Project    *ProjectRef        `bson:"project,omitempty" json:"project,omitempty"`

	AdminID    string `bson:"admin_id" json:"admin_id"`
	AdminEmail string `bson:"admin_email" json:"admin_email"`
	AdminName  string `bson:"admin_name" json:"admin_name"`

	Status string `bson:"status" json:"status"`
	Phase  string `bson:"phase,omitempty" json:"phase,omitempty"`

	// TeamMembers is frozen when the request is created.
	TeamSize    int          `bson:"team_size" json:"team_size"`
	TeamMembers []TeamMember `bson:"team_members" json:"team_members"`

	EvaluationForm  EvaluationForm  `bson:"evaluation_form" json:"evaluation_form"`
	AdminApproval   AdminApproval   `bson:"admin_approval" json:"admin_approval"`
	FinalCompletion FinalCompletion `bson:"final_completion" json:"final_completion"`

	InitiatedAt time.Time `bson:"initiated_at" json:"initiated_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// TeamMember is a snapshot of one active group member.
type TeamMember struct {
	UserID   string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Name     string    `bson:"name" json:"name"`
	Email    string    `bson:"email" json:"email"`
	Role     string    `bson:"role" json:"role"`
	JoinedAt time.Time `bson:"joined_at" json:"joined_at"`
}

// EvaluationForm is the admin's assessment of the team.
type EvaluationForm struct {
	SubmittedAt *time.Time         `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	Evaluations []MemberEvaluation `bson:"evaluations" json:"evaluations"`
}

// MemberEvaluation is one member's badge assessment.
type MemberEvaluation struct {
	MemberEmail     string   `bson:"member_email" json:"member_email" validate:"required,email"`
	MemberName      string   `bson:"member_name" json:"member_name"`
	Role            string   `bson:"role" json:"role"`
	BadgeCategory   string   `bson:"badge_category" json:"badge_category" validate:"required,badge_category"`
	BadgeLevel      string   `bson:"badge_level" json:"badge_level" validate:"required,badge_level"`
	Contribution    string   `bson:"contribution" json:"contribution" validate:"required,contribution"`
	SkillsDisplayed []string `bson:"skills_displayed" json:"skills_displayed"`
	AdminNotes      string   `bson:"admin_notes" json:"admin_notes" validate:"max=2000"`
}

// AdminApproval records the reviewer's decision.
type AdminApproval struct {
	Approved        bool       `bson:"approved" json:"approved"`
	ApprovedBy      string     `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	Rejected        bool       `bson:"rejected" json:"rejected"`
	RejectedBy      string     `bson:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RejectionReason string     `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
}

// FinalCompletion is written once, when the workflow ends.
type FinalCompletion struct {
	Completed             bool       `bson:"completed" json:"completed"`
	CompletedAt           *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CertificatesGenerated bool       `bson:"certificates_generated" json:"certificates_generated"`
	BadgesAwarded         bool       `bson:"badges_awarded" json:"badges_awarded"`
	IsSoloProject         bool       `bson:"is_solo_project" json:"is_solo_project"`
}

// IsTerminal reports whether the workflow has ended for this request.
func (r CompletionRequest) IsTerminal() bool {
	return r.FinalCompletion.Completed
}

// CurrentStep derives the admin-facing step from persisted fields. A nil
// request falls back to the group's external readiness signal.
func CurrentStep(req *CompletionRequest, g Group) int {
	if req == nil {
		if g.ReadyForBadges() {
			return StepBadgeAssignment
		}
		return StepAwaitingApproval
	}
	switch {
	case req.FinalCompletion.Completed:
		return StepCompleted
	case req.AdminApproval.Approved:
		return StepBadgeAssignment
	default:
		return StepAwaitingApproval
	}
}
