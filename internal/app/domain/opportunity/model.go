// Package opportunity defines the opportunity aggregate: the post itself,
// applications against it, and the reviews that close it out.
package opportunity

import "time"

// Status is the lifecycle state of an opportunity. The lifecycle is
// monotonic: Available -> Pending -> Done.
type Status string

const (
	// StatusAvailable accepts applications.
	StatusAvailable Status = "available"
	// StatusPending has a frozen applicant set; an achiever is being or has
	// been selected.
	StatusPending Status = "pending"
	// StatusDone is terminal; the plugger has reviewed the achiever.
	StatusDone Status = "done"
)

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusAvailable:
		return next == StatusPending
	case StatusPending:
		return next == StatusDone
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusPending || s == StatusDone
}

// Opportunity is a post by a plugger looking for an achiever.
//
// Exactly one of CountryID, LocationID, LGAID is set at creation; the most
// specific one wins (an LGA implies its location and country).
type Opportunity struct {
	ID               string
	Title            string
	Responsibilities string
	Budget           int64
	Deadline         time.Time

	Status     Status
	PluggerID  string
	AchieverID string // empty until the plugger selects an achiever

	AllowedPlans []string // plan types eligible to apply, never empty
	VerifiedOnly bool

	CountryID  string
	LocationID string
	LGAID      string

	TagIDs       []string // minor tags only
	OccupationID string   // optional required-occupation filter

	CreatedAt time.Time
	UpdatedAt time.Time

	// Populated on request via store include options.
	Applications []Application
	Reviews      []Review
}

// HasTag reports whether the opportunity carries the given tag.
func (o Opportunity) HasTag(tagID string) bool {
	for _, id := range o.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

// AllowsPlan reports whether the plan type may apply.
func (o Opportunity) AllowsPlan(planType string) bool {
	for _, p := range o.AllowedPlans {
		if p == planType {
			return true
		}
	}
	return false
}

// Application records one user's interest in an opportunity. At most one
// exists per (opportunity, user) pair.
type Application struct {
	OpportunityID string
	UserID        string
	AppliedAt     time.Time
}

// Review is a rating of the counterparty after an opportunity concludes.
// At most two exist per opportunity: one by the plugger, one by the achiever.
type Review struct {
	ID            string
	OpportunityID string
	AuthorID      string
	SubjectID     string
	Rating        int // 1..5
	Comment       string
	CreatedAt     time.Time
}
