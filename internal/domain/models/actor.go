// internal/domain/models/actor.go
package models

import "strings"

// Roles recognised on the acting user.
const (
	RoleAdmin    = "admin"    // platform reviewer of completion requests
	RoleMember   = "member"
	RoleReviewer = "reviewer" // alias some deployments use for RoleAdmin
)

// Actor is the authenticated user performing an operation. Workflow
// operations take it as an explicit argument; nothing reads it from
// ambient state.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// DisplayName prefers the name, falling back to the email.
func (a Actor) DisplayName() string {
	if n := strings.TrimSpace(a.Name); n != "" {
		return n
	}
	return a.Email
}

// SameEmail compares emails case-insensitively, ignoring surrounding space.
// Empty emails never match.
func SameEmail(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
