// Package evaluation builds, edits and validates the per-member evaluation
// form a group admin fills in before badges are issued.
package evaluation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opethaiwoh/favored/internal/app/system/htmlsanitize"
	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/domain/models"
)

// Editable field names, matching the json tags of models.MemberEvaluation.
const (
	FieldBadgeCategory = "badge_category"
	FieldBadgeLevel    = "badge_level"
	FieldContribution  = "contribution"
	FieldAdminNotes    = "admin_notes"
	FieldRole          = "role"
)

var (
	ErrIndexOutOfRange = errors.New("evaluation index out of range")
	ErrUnknownField    = errors.New("unknown evaluation field")
	ErrInvalidValue    = errors.New("invalid value for evaluation field")
	ErrEmptySkill      = errors.New("skill is empty")
)

// Form is the editable evaluation list. The zero value is an empty form.
type Form struct {
	Evaluations []models.MemberEvaluation `json:"evaluations"`
}

// Build creates one defaulted evaluation per member, skipping any member
// whose email matches the admin's. An empty result means the group is a
// solo project.
func Build(members []models.TeamMember, admin models.Actor) Form {
	f := Form{Evaluations: []models.MemberEvaluation{}}
	seen := map[string]bool{}
	for _, m := range members {
		email := normalize.Email(m.Email)
		if email == "" || models.SameEmail(email, admin.Email) || seen[email] {
			continue
		}
		seen[email] = true
		name := normalize.Name(m.Name)
		if name == "" {
			name = m.Email
		}
		role := normalize.Role(m.Role)
		if role == "" {
			role = models.RoleMember
		}
		f.Evaluations = append(f.Evaluations, models.MemberEvaluation{
			MemberEmail:     strings.TrimSpace(m.Email),
			MemberName:      name,
			Role:            role,
			BadgeCategory:   models.DefaultBadgeCategory,
			BadgeLevel:      models.DefaultBadgeLevel,
			Contribution:    models.DefaultContribution,
			SkillsDisplayed: []string{},
		})
	}
	return f
}

// IsSolo reports whether the form has nobody to evaluate.
func (f Form) IsSolo() bool { return len(f.Evaluations) == 0 }

func (f *Form) at(i int) (*models.MemberEvaluation, error) {
	if i < 0 || i >= len(f.Evaluations) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return &f.Evaluations[i], nil
}

// UpdateField sets one field of the evaluation at index i. Enumerated
// fields must hold a known value; notes are reduced to plain text.
func (f *Form) UpdateField(i int, field, value string) error {
	ev, err := f.at(i)
	if err != nil {
		return err
	}
	switch field {
	case FieldBadgeCategory:
		v := strings.ToLower(strings.TrimSpace(value))
		if !models.IsBadgeCategory(v) {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, field, value)
		}
		ev.BadgeCategory = v
	case FieldBadgeLevel:
		v := strings.ToLower(strings.TrimSpace(value))
		if models.BadgeLevelRank(v) < 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, field, value)
		}
		ev.BadgeLevel = v
	case FieldContribution:
		v := strings.ToLower(strings.TrimSpace(value))
		if models.ContributionRank(v) < 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, field, value)
		}
		ev.Contribution = v
	case FieldAdminNotes:
		ev.AdminNotes = htmlsanitize.PlainText(value)
	case FieldRole:
		ev.Role = normalize.Role(htmlsanitize.PlainText(value))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// AddSkill appends skill unless an identical one is already present.
func (f *Form) AddSkill(i int, skill string) error {
	ev, err := f.at(i)
	if err != nil {
		return err
	}
	s := cleanSkill(skill)
	if s == "" {
		return ErrEmptySkill
	}
	for _, have := range ev.SkillsDisplayed {
		if have == s {
			return nil
		}
	}
	ev.SkillsDisplayed = append(ev.SkillsDisplayed, s)
	return nil
}

// RemoveSkill drops the exact skill string. Missing skills are ignored.
func (f *Form) RemoveSkill(i int, skill string) error {
	ev, err := f.at(i)
	if err != nil {
		return err
	}
	out := ev.SkillsDisplayed[:0]
	for _, have := range ev.SkillsDisplayed {
		if have != skill {
			out = append(out, have)
		}
	}
	ev.SkillsDisplayed = out
	return nil
}

func cleanSkill(s string) string {
	return normalize.Skill(htmlsanitize.PlainText(s))
}

// Normalize cleans a submitted form in place: enum values are lowercased,
// free text is reduced to plain text and skills are de-duplicated.
func Normalize(evals []models.MemberEvaluation) []models.MemberEvaluation {
	out := make([]models.MemberEvaluation, 0, len(evals))
	for _, ev := range evals {
		ev.MemberEmail = strings.TrimSpace(ev.MemberEmail)
		ev.MemberName = normalize.Name(htmlsanitize.PlainText(ev.MemberName))
		if ev.MemberName == "" {
			ev.MemberName = ev.MemberEmail
		}
		ev.Role = normalize.Role(ev.Role)
		ev.BadgeCategory = strings.ToLower(strings.TrimSpace(ev.BadgeCategory))
		ev.BadgeLevel = strings.ToLower(strings.TrimSpace(ev.BadgeLevel))
		ev.Contribution = strings.ToLower(strings.TrimSpace(ev.Contribution))
		ev.AdminNotes = htmlsanitize.PlainText(ev.AdminNotes)

		skills := make([]string, 0, len(ev.SkillsDisplayed))
		seen := map[string]bool{}
		for _, s := range ev.SkillsDisplayed {
			s = cleanSkill(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			skills = append(skills, s)
		}
		ev.SkillsDisplayed = skills
		out = append(out, ev)
	}
	return out
}
