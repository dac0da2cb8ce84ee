// Package user defines the slice of the user profile the matching core
// reads: plan, verification, skills, occupation and location.
package user

import "time"

// Plan type tiers.
const (
	PlanBasic        = "basic"
	PlanProfessional = "professional"
	PlanBusiness     = "business"
)

// ValidPlan reports whether planType is a known tier.
func ValidPlan(planType string) bool {
	return planType == PlanBasic || planType == PlanProfessional || planType == PlanBusiness
}

// User holds the profile fields eligibility decisions depend on.
type User struct {
	ID   string
	Name string

	PlanType      string
	PlanExpiresAt *time.Time // nil for non-expiring plans

	ProfileVerified bool

	SkillTagIDs  []string // minor tags
	OccupationID string   // empty when unset

	CountryID  string
	LocationID string
	LGAID      string

	// HasPendingReview is set while the user, as plugger, owes a review to a
	// selected achiever. Enforcement on the apply path is a policy toggle.
	HasPendingReview bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSkill reports whether the user carries the given skill tag.
func (u User) HasSkill(tagID string) bool {
	for _, id := range u.SkillTagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}
