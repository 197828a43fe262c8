package evaluation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/opethaiwoh/favored/internal/app/system/normalize"
	"github.com/opethaiwoh/favored/internal/domain/models"
)

// custom validation tags
const (
	badgeCategoryTag = "badge_category"
	badgeLevelTag    = "badge_level"
	contributionTag  = "contribution"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()

		// Report json names rather than Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = validate.RegisterValidation(badgeCategoryTag, func(fl validator.FieldLevel) bool {
			return models.IsBadgeCategory(fl.Field().String())
		})
		_ = validate.RegisterValidation(badgeLevelTag, func(fl validator.FieldLevel) bool {
			return models.BadgeLevelRank(fl.Field().String()) >= 0
		})
		_ = validate.RegisterValidation(contributionTag, func(fl validator.FieldLevel) bool {
			return models.ContributionRank(fl.Field().String()) >= 0
		})
	})
	return validate
}

// Problem is one violated condition on one evaluation.
type Problem struct {
	Index       int    `json:"index"`
	MemberEmail string `json:"member_email,omitempty"`
	Field       string `json:"field"`
	Reason      string `json:"reason"`
}

// ValidationError lists every problem found in a form.
type ValidationError struct {
	Problems []Problem `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		who := p.MemberEmail
		if who == "" {
			who = "form"
		}
		parts = append(parts, who+": "+p.Field+" "+p.Reason)
	}
	return "evaluation form is incomplete: " + strings.Join(parts, "; ")
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "max":
		return "is too long"
	case badgeCategoryTag:
		return "is not a known badge category"
	case badgeLevelTag:
		return "is not a known badge level"
	case contributionTag:
		return "is not a known contribution rating"
	}
	return "is invalid"
}

// Validate checks every evaluation and returns a *ValidationError listing
// all problems, or nil. When roster is non-nil each evaluation must name a
// distinct roster member.
func Validate(evals []models.MemberEvaluation, roster []models.MemberEvaluation) error {
	v := validatorInstance()
	var problems []Problem

	if len(evals) == 0 {
		problems = append(problems, Problem{Index: -1, Field: "evaluations", Reason: "must include at least one member"})
	}

	allowed := map[string]bool{}
	for _, r := range roster {
		allowed[normalize.Email(r.MemberEmail)] = true
	}
	seen := map[string]bool{}

	for i, ev := range evals {
		if err := v.Struct(ev); err != nil {
			var fes validator.ValidationErrors
			if !errors.As(err, &fes) {
				return err
			}
			for _, fe := range fes {
				problems = append(problems, Problem{
					Index:       i,
					MemberEmail: ev.MemberEmail,
					Field:       fe.Field(),
					Reason:      reason(fe),
				})
			}
		}

		email := normalize.Email(ev.MemberEmail)
		if email == "" {
			continue
		}
		if seen[email] {
			problems = append(problems, Problem{Index: i, MemberEmail: ev.MemberEmail, Field: "member_email", Reason: "appears more than once"})
		}
		seen[email] = true
		if roster != nil && !allowed[email] {
			problems = append(problems, Problem{Index: i, MemberEmail: ev.MemberEmail, Field: "member_email", Reason: "is not an evaluable team member"})
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
