package eligibility

import (
	"context"

	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/app/storage"
	"github.com/plugng/plug-backend/pkg/logger"
)

// Matcher computes the audience for a new opportunity. Unlike the admission
// controller it is best-effort: a user filtered out here can still apply if
// they pass the hard gate, and vice versa the fan-out never admits anyone.
type Matcher struct {
	users storage.UserStore
	tags  storage.TagStore
	log   *logger.Logger
}

// NewMatcher constructs a matcher.
func NewMatcher(users storage.UserStore, tags storage.TagStore, log *logger.Logger) *Matcher {
	if log == nil {
		log = logger.NewDefault("matcher")
	}
	return &Matcher{users: users, tags: tags, log: log}
}

// predicate is one audience filter clause. All predicates must pass.
type predicate func(ctx context.Context, opp opportunity.Opportunity, u user.User) (bool, error)

// EligibleRecipients returns the IDs of users who should be notified of the
// opportunity. The plan filter is pushed into the store fetch; the remaining
// clauses run in-process to keep their precedence explicit.
func (m *Matcher) EligibleRecipients(ctx context.Context, opp opportunity.Opportunity) ([]string, error) {
	candidates, err := m.users.ListCandidates(ctx, storage.CandidateFilter{PlanTypes: opp.AllowedPlans})
	if err != nil {
		return nil, err
	}

	predicates := []predicate{
		m.notPlugger,
		m.verified,
		m.location,
		m.skills,
		m.portfolio,
	}

	var recipients []string
	for _, candidate := range candidates {
		eligible := true
		for _, p := range predicates {
			ok, err := p(ctx, opp, candidate)
			if err != nil {
				return nil, err
			}
			if !ok {
				eligible = false
				break
			}
		}
		if eligible {
			recipients = append(recipients, candidate.ID)
		}
	}

	m.log.WithField("opportunity_id", opp.ID).
		WithField("candidates", len(candidates)).
		WithField("recipients", len(recipients)).
		Debug("computed fan-out audience")
	return recipients, nil
}

func (m *Matcher) notPlugger(_ context.Context, opp opportunity.Opportunity, u user.User) (bool, error) {
	return u.ID != opp.PluggerID, nil
}

func (m *Matcher) verified(_ context.Context, opp opportunity.Opportunity, u user.User) (bool, error) {
	return !opp.VerifiedOnly || u.ProfileVerified, nil
}

func (m *Matcher) location(ctx context.Context, opp opportunity.Opportunity, u user.User) (bool, error) {
	return matchesLocation(ctx, m.tags, opp, u)
}

func (m *Matcher) skills(_ context.Context, opp opportunity.Opportunity, u user.User) (bool, error) {
	return matchesSkills(opp, u), nil
}

// portfolio is a hard join requirement, mirroring the admission check: the
// audience only includes users whose content matches the opportunity's tags.
func (m *Matcher) portfolio(ctx context.Context, opp opportunity.Opportunity, u user.User) (bool, error) {
	return m.users.UserOwnsContentWithTags(ctx, u.ID, opp.TagIDs)
}
