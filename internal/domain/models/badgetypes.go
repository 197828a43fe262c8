// internal/domain/models/badgetypes.go
package models

// Canonical badge category identifiers.
//
// These values are stored on every MemberEvaluation and Badge document and are
// validated on write. Display names and icons are presentation metadata only.
const (
	BadgeCategoryMentorship       = "mentorship"
	BadgeCategoryQualityAssurance = "quality-assurance"
	BadgeCategoryDevelopment      = "development"
	BadgeCategoryLeadership       = "leadership"
	BadgeCategoryDesign           = "design"
	BadgeCategorySecurity         = "security"
)

// BadgeCategoryInfo carries the presentation metadata for one category.
type BadgeCategoryInfo struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon"`
}

// BadgeCategories is the single source of truth for category validation and
// schema enums, in display order.
var BadgeCategories = []BadgeCategoryInfo{
	{Key: BadgeCategoryMentorship, DisplayName: "Mentorship", Icon: "/badges/mentorship.png"},
	{Key: BadgeCategoryQualityAssurance, DisplayName: "Quality Assurance", Icon: "/badges/quality-assurance.png"},
	{Key: BadgeCategoryDevelopment, DisplayName: "Development", Icon: "/badges/development.png"},
	{Key: BadgeCategoryLeadership, DisplayName: "Leadership", Icon: "/badges/leadership.png"},
	{Key: BadgeCategoryDesign, DisplayName: "Design", Icon: "/badges/design.png"},
	{Key: BadgeCategorySecurity, DisplayName: "Security", Icon: "/badges/security.png"},
}

// Badge levels, lowest first.
const (
	BadgeLevelNovice       = "novice"
	BadgeLevelBeginners    = "beginners"
	BadgeLevelIntermediate = "intermediate"
	BadgeLevelExpert       = "expert"
)

// BadgeLevels is ordered; the index is the rank.
var BadgeLevels = []string{
	BadgeLevelNovice,
	BadgeLevelBeginners,
	BadgeLevelIntermediate,
	BadgeLevelExpert,
}

// Contribution quality labels, lowest first.
const (
	ContributionPoor      = "poor"
	ContributionFair      = "fair"
	ContributionGood      = "good"
	ContributionExcellent = "excellent"
)

// Contributions is ordered; the index is the rank.
var Contributions = []string{
	ContributionPoor,
	ContributionFair,
	ContributionGood,
	ContributionExcellent,
}

// Defaults applied when an evaluation form is built.
const (
	DefaultBadgeCategory = BadgeCategoryDevelopment
	DefaultBadgeLevel    = BadgeLevelNovice
	DefaultContribution  = ContributionGood
)

// BadgeCategoryKeys returns the category keys in display order.
func BadgeCategoryKeys() []string {
	keys := make([]string, 0, len(BadgeCategories))
	for _, c := range BadgeCategories {
		keys = append(keys, c.Key)
	}
	return keys
}

// LookupBadgeCategory returns the metadata for key.
func LookupBadgeCategory(key string) (BadgeCategoryInfo, bool) {
	for _, c := range BadgeCategories {
		if c.Key == key {
			return c, true
		}
	}
	return BadgeCategoryInfo{}, false
}

// IsBadgeCategory reports whether key is a known category.
func IsBadgeCategory(key string) bool {
	_, ok := LookupBadgeCategory(key)
	return ok
}

// BadgeLevelRank returns the position of level in BadgeLevels, or -1.
func BadgeLevelRank(level string) int {
	return indexOf(BadgeLevels, level)
}

// ContributionRank returns the position of c in Contributions, or -1.
func ContributionRank(c string) int {
	return indexOf(Contributions, c)
}

func indexOf(set []string, v string) int {
	for i, s := range set {
		if s == v {
			return i
		}
	}
	return -1
}
