// Package normalize maps user-supplied strings and the heterogeneous
// historical shapes of stored documents onto canonical values.
//
// Member and applicant documents were written by several generations of
// clients, each naming the same field differently (userEmail, email,
// memberEmail, ...). Everything that reads those documents goes through this
// package so business logic only ever sees models.TeamMember.
package normalize

import (
	"strings"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/opethaiwoh/favored/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Field aliases, in lookup priority order.
var (
	EmailKeys  = []string{"userEmail", "email", "memberEmail", "user_email", "member_email"}
	NameKeys   = []string{"userName", "name", "displayName", "memberName", "user_name", "display_name", "member_name"}
	UserIDKeys = []string{"userId", "user_id", "uid"}
	RoleKeys   = []string{"role", "memberRole", "member_role"}
	JoinedKeys = []string{"joinedAt", "joined_at", "createdAt", "created_at"}
)

// Email folds an email address for case-insensitive matching. Every
// *_email_ci field is written with this.
func Email(s string) string {
	return text.Fold(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and preserves case.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Status lowercases and trims a status value.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Role lowercases and trims a role value.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Skill collapses internal whitespace and trims. Case is preserved.
func Skill(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FirstString returns the first non-blank string value found under keys.
func FirstString(doc bson.M, keys ...string) string {
	for _, k := range keys {
		if v, ok := doc[k].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// MemberEmail resolves the member's email across all known aliases.
func MemberEmail(doc bson.M) string {
	return FirstString(doc, EmailKeys...)
}

// Member maps a stored group member document to a TeamMember. The display
// name falls back to the resolved email.
func Member(doc bson.M) models.TeamMember {
	email := MemberEmail(doc)
	name := FirstString(doc, NameKeys...)
	if name == "" {
		name = email
	}
	role := Role(FirstString(doc, RoleKeys...))
	if role == "" {
		role = models.RoleMember
	}
	return models.TeamMember{
		UserID:   userID(doc),
		Name:     name,
		Email:    email,
		Role:     role,
		JoinedAt: firstTime(doc, JoinedKeys...),
	}
}

// Members maps every document and drops those with no resolvable email.
func Members(docs []bson.M) []models.TeamMember {
	out := make([]models.TeamMember, 0, len(docs))
	for _, d := range docs {
		m := Member(d)
		if m.Email == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func userID(doc bson.M) string {
	for _, k := range UserIDKeys {
		switch v := doc[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case primitive.ObjectID:
			if !v.IsZero() {
				return v.Hex()
			}
		}
	}
	return ""
}

func firstTime(doc bson.M, keys ...string) time.Time {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case time.Time:
			return v.UTC()
		case primitive.DateTime:
			return v.Time().UTC()
		case primitive.Timestamp:
			return time.Unix(int64(v.T), 0).UTC()
		case string:
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
