// Package eligibility decides who may apply to an opportunity and who should
// hear about a new one. The admission controller is the hard, single-subject
// gate on the apply endpoint; the matcher is the broader best-effort audience
// filter used for notification fan-out. Both evaluate an explicit, ordered
// predicate list so the failure reported for an ineligible user is
// deterministic.
package eligibility

import (
	"context"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/app/storage"
	"github.com/plugng/plug-backend/internal/errors"
	"github.com/plugng/plug-backend/pkg/logger"
)

// Policy carries the tunable admission rules.
type Policy struct {
	// ProfessionalMonthlyApplications caps applications per calendar month
	// for the professional tier. Basic and business tiers are uncapped; that
	// asymmetry is the product rule, not an oversight.
	ProfessionalMonthlyApplications int

	// RequireReviewBeforeApply blocks applying while the user owes an
	// achiever review. The rule has flip-flopped historically, so it is a
	// toggle rather than a constant.
	RequireReviewBeforeApply bool
}

// DefaultPolicy returns the production admission policy.
func DefaultPolicy() Policy {
	return Policy{ProfessionalMonthlyApplications: 10}
}

// Admission validates a single user's eligibility to apply to a specific
// opportunity.
type Admission struct {
	users  storage.UserStore
	apps   storage.ApplicationStore
	opps   storage.OpportunityStore
	tags   storage.TagStore
	policy Policy
	log    *logger.Logger

	now func() time.Time
}

// NewAdmission constructs the admission controller.
func NewAdmission(users storage.UserStore, apps storage.ApplicationStore, opps storage.OpportunityStore, tags storage.TagStore, policy Policy, log *logger.Logger) *Admission {
	if log == nil {
		log = logger.NewDefault("admission")
	}
	if policy.ProfessionalMonthlyApplications <= 0 {
		policy.ProfessionalMonthlyApplications = DefaultPolicy().ProfessionalMonthlyApplications
	}
	return &Admission{users: users, apps: apps, opps: opps, tags: tags, policy: policy, log: log, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (a *Admission) WithClock(now func() time.Time) *Admission {
	a.now = now
	return a
}

// check is one admission predicate. Checks run in order and the first
// failure wins.
type check struct {
	name string
	run  func(ctx context.Context, opp opportunity.Opportunity, u user.User) error
}

// CanApply runs the ordered admission checks. A nil return means the user may
// apply; otherwise the error carries the first violated rule.
func (a *Admission) CanApply(ctx context.Context, opp opportunity.Opportunity, u user.User) error {
	checks := []check{
		{"self_application", a.checkNotPlugger},
		{"status", a.checkAvailable},
		{"deadline", a.checkDeadline},
		{"verification", a.checkVerification},
		{"plan", a.checkPlan},
		{"skills", a.checkSkills},
		{"portfolio", a.checkPortfolio},
		{"location", a.checkLocation},
		{"monthly_limit", a.checkMonthlyLimit},
		{"outstanding_review", a.checkOutstandingReview},
	}

	for _, c := range checks {
		if err := c.run(ctx, opp, u); err != nil {
			a.log.WithField("opportunity_id", opp.ID).
				WithField("user_id", u.ID).
				WithField("check", c.name).
				Debugf("admission rejected: %v", err)
			return err
		}
	}
	return nil
}

func (a *Admission) checkNotPlugger(_ context.Context, opp opportunity.Opportunity, u user.User) error {
	if u.ID == opp.PluggerID {
		return errors.SelfApplicationForbidden()
	}
	return nil
}

func (a *Admission) checkAvailable(_ context.Context, opp opportunity.Opportunity, _ user.User) error {
	if opp.Status != opportunity.StatusAvailable {
		return errors.NotAvailable()
	}
	return nil
}

func (a *Admission) checkDeadline(_ context.Context, opp opportunity.Opportunity, _ user.User) error {
	if a.now().After(opp.Deadline) {
		return errors.Expired()
	}
	return nil
}

func (a *Admission) checkVerification(_ context.Context, opp opportunity.Opportunity, u user.User) error {
	if opp.VerifiedOnly && !u.ProfileVerified {
		return errors.VerificationRequired()
	}
	return nil
}

func (a *Admission) checkPlan(_ context.Context, opp opportunity.Opportunity, u user.User) error {
	if !opp.AllowsPlan(u.PlanType) {
		return errors.PlanMismatch()
	}
	return nil
}

func (a *Admission) checkSkills(_ context.Context, opp opportunity.Opportunity, u user.User) error {
	if matchesSkills(opp, u) {
		return nil
	}
	return errors.SkillMismatch()
}

func (a *Admission) checkPortfolio(ctx context.Context, opp opportunity.Opportunity, u user.User) error {
	owns, err := a.users.UserOwnsContentWithTags(ctx, u.ID, opp.TagIDs)
	if err != nil {
		return errors.Internal("portfolio lookup failed", err)
	}
	if !owns {
		return errors.NoMatchingPortfolio()
	}
	return nil
}

func (a *Admission) checkLocation(ctx context.Context, opp opportunity.Opportunity, u user.User) error {
	ok, err := matchesLocation(ctx, a.tags, opp, u)
	if err != nil {
		return errors.Internal("location lookup failed", err)
	}
	if !ok {
		return errors.LocationMismatch()
	}
	return nil
}

func (a *Admission) checkMonthlyLimit(ctx context.Context, _ opportunity.Opportunity, u user.User) error {
	if u.PlanType != user.PlanProfessional {
		return nil
	}
	now := a.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	count, err := a.apps.CountUserApplicationsSince(ctx, u.ID, monthStart)
	if err != nil {
		return errors.Internal("application count failed", err)
	}
	if count >= a.policy.ProfessionalMonthlyApplications {
		return errors.MonthlyLimitExceeded(a.policy.ProfessionalMonthlyApplications)
	}
	return nil
}

func (a *Admission) checkOutstandingReview(ctx context.Context, _ opportunity.Opportunity, u user.User) error {
	if !a.policy.RequireReviewBeforeApply {
		return nil
	}
	owed, err := a.opps.FindPendingWithoutReviewByPlugger(ctx, u.ID)
	if err != nil {
		return errors.Internal("outstanding review lookup failed", err)
	}
	if len(owed) > 0 {
		return errors.OutstandingReviewRequired()
	}
	return nil
}
