package eligibility

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/errors"
	"github.com/plugng/plug-backend/pkg/testutil"
)

func newAdmission(f *testutil.Fixture, policy Policy) *Admission {
	return NewAdmission(f.Store, f.Store, f.Store, f.Store, policy, nil)
}

func wantCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if !errors.IsCode(err, code) {
		t.Fatalf("expected code %s, got %v", code, err)
	}
}

func TestCanApplyOrderedChecks(t *testing.T) {
	f := testutil.NewFixture()
	adm := newAdmission(f, DefaultPolicy())
	ctx := context.Background()

	base := f.Opportunity()
	ok := f.Achiever

	if err := adm.CanApply(ctx, base, ok); err != nil {
		t.Fatalf("eligible user rejected: %v", err)
	}

	wantCode(t, adm.CanApply(ctx, base, f.Plugger), errors.CodeSelfApplicationForbidden)

	pending := base
	pending.Status = opportunity.StatusPending
	wantCode(t, adm.CanApply(ctx, pending, ok), errors.CodeNotAvailable)

	expired := base
	expired.Deadline = time.Now().Add(-time.Hour)
	wantCode(t, adm.CanApply(ctx, expired, ok), errors.CodeExpired)

	verifiedOnly := base
	verifiedOnly.VerifiedOnly = true
	unverified := ok
	unverified.ProfileVerified = false
	wantCode(t, adm.CanApply(ctx, verifiedOnly, unverified), errors.CodeVerificationRequired)

	proOnly := base
	proOnly.AllowedPlans = []string{user.PlanProfessional}
	wantCode(t, adm.CanApply(ctx, proOnly, ok), errors.CodePlanMismatch)

	unskilled := ok
	unskilled.SkillTagIDs = []string{"writing"}
	wantCode(t, adm.CanApply(ctx, base, unskilled), errors.CodeSkillMismatch)

	// Content ownership is keyed by user ID, so a copy under a fresh ID has
	// the skills but none of the portfolio.
	bare := f.EligibleUser("has-content")
	bare.ID = "no-content"
	f.Store.PutUser(bare)
	wantCode(t, adm.CanApply(ctx, base, bare), errors.CodeNoMatchingPortfolio)

	elsewhere := ok
	elsewhere.LGAID = "surulere"
	wantCode(t, adm.CanApply(ctx, base, elsewhere), errors.CodeLocationMismatch)
}

func TestSkillMatchByOccupation(t *testing.T) {
	f := testutil.NewFixture()
	adm := newAdmission(f, DefaultPolicy())

	opp := f.Opportunity()
	opp.OccupationID = "designer"

	u := f.Achiever
	u.SkillTagIDs = nil
	u.OccupationID = "designer"

	if err := adm.CanApply(context.Background(), opp, u); err != nil {
		t.Fatalf("occupation match rejected: %v", err)
	}
}

func TestCountryLevelLocation(t *testing.T) {
	f := testutil.NewFixture()
	adm := newAdmission(f, DefaultPolicy())
	ctx := context.Background()

	opp := f.Opportunity()
	opp.LGAID = ""
	opp.CountryID = "ng"

	// Direct country match.
	u := f.Achiever
	u.LocationID = ""
	u.LGAID = ""
	if err := adm.CanApply(ctx, opp, u); err != nil {
		t.Fatalf("country match rejected: %v", err)
	}

	// Location rolls up to its country.
	u = f.Achiever
	u.CountryID = ""
	u.LGAID = ""
	if err := adm.CanApply(ctx, opp, u); err != nil {
		t.Fatalf("location-in-country rejected: %v", err)
	}

	// Neither country nor a location inside it.
	u.LocationID = ""
	wantCode(t, adm.CanApply(ctx, opp, u), errors.CodeLocationMismatch)
}

func TestProfessionalMonthlyLimit(t *testing.T) {
	f := testutil.NewFixture()
	ctx := context.Background()

	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	adm := newAdmission(f, Policy{ProfessionalMonthlyApplications: 3}).
		WithClock(func() time.Time { return now })

	pro := f.EligibleUser("pro")
	pro.PlanType = user.PlanProfessional
	pro = f.Store.PutUser(pro)

	opp := f.Opportunity()
	opp.AllowedPlans = []string{user.PlanProfessional, user.PlanBusiness}

	// Applications from February never count against March.
	lastMonth := time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		old, err := f.Store.CreateOpportunity(ctx, f.Opportunity())
		if err != nil {
			t.Fatalf("seed opportunity: %v", err)
		}
		if _, err := f.Store.AddApplication(ctx, old.ID, pro.ID, lastMonth); err != nil {
			t.Fatalf("seed application: %v", err)
		}
	}
	if err := adm.CanApply(ctx, opp, pro); err != nil {
		t.Fatalf("prior-month applications counted: %v", err)
	}

	for i := 0; i < 3; i++ {
		cur, err := f.Store.CreateOpportunity(ctx, f.Opportunity())
		if err != nil {
			t.Fatalf("seed opportunity: %v", err)
		}
		if _, err := f.Store.AddApplication(ctx, cur.ID, pro.ID, now.Add(-time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("seed application: %v", err)
		}
	}
	wantCode(t, adm.CanApply(ctx, opp, pro), errors.CodeMonthlyLimitExceeded)

	// The cap is the professional tier's alone.
	biz := f.EligibleUser("biz")
	biz.PlanType = user.PlanBusiness
	biz = f.Store.PutUser(biz)
	for i := 0; i < 6; i++ {
		cur, err := f.Store.CreateOpportunity(ctx, f.Opportunity())
		if err != nil {
			t.Fatalf("seed opportunity: %v", err)
		}
		if _, err := f.Store.AddApplication(ctx, cur.ID, biz.ID, now); err != nil {
			t.Fatalf("seed application: %v", err)
		}
	}
	if err := adm.CanApply(ctx, opp, biz); err != nil {
		t.Fatalf("business plan should be uncapped: %v", err)
	}
}

func TestOutstandingReviewToggle(t *testing.T) {
	f := testutil.NewFixture()
	ctx := context.Background()

	// The applicant is themselves a plugger who owes a review elsewhere.
	debtor := f.EligibleUser("debtor")
	if _, err := f.Store.CreateOpportunity(ctx, opportunity.Opportunity{
		Title:        "unreviewed work",
		Deadline:     time.Now().Add(24 * time.Hour),
		Status:       opportunity.StatusPending,
		PluggerID:    debtor.ID,
		AchieverID:   "achiever",
		AllowedPlans: []string{user.PlanBasic},
		TagIDs:       []string{"design"},
		LGAID:        "ikeja",
	}); err != nil {
		t.Fatalf("seed owed opportunity: %v", err)
	}

	opp := f.Opportunity()

	off := newAdmission(f, Policy{})
	if err := off.CanApply(ctx, opp, debtor); err != nil {
		t.Fatalf("toggle off must not block: %v", err)
	}

	on := newAdmission(f, Policy{RequireReviewBeforeApply: true})
	wantCode(t, on.CanApply(ctx, opp, debtor), errors.CodeOutstandingReview)
}

func TestEligibleRecipients(t *testing.T) {
	f := testutil.NewFixture()
	matcher := NewMatcher(f.Store, f.Store, nil)
	ctx := context.Background()

	// One more eligible user besides the seeded achiever.
	f.EligibleUser("second")

	unverifiedMatters := f.EligibleUser("unverified")
	unverifiedMatters.ProfileVerified = false
	f.Store.PutUser(unverifiedMatters)

	wrongSkill := f.EligibleUser("wrong-skill")
	wrongSkill.SkillTagIDs = []string{"writing"}
	f.Store.PutUser(wrongSkill)

	elsewhere := f.EligibleUser("elsewhere")
	elsewhere.LGAID = "surulere"
	f.Store.PutUser(elsewhere)

	noPortfolio := f.Store.PutUser(user.User{
		ID: "no-portfolio", PlanType: user.PlanBasic, ProfileVerified: true,
		SkillTagIDs: []string{"design"}, CountryID: "ng", LocationID: "lagos", LGAID: "ikeja",
	})
	_ = noPortfolio

	wrongPlan := f.EligibleUser("wrong-plan")
	wrongPlan.PlanType = user.PlanBusiness
	f.Store.PutUser(wrongPlan)

	opp := f.Opportunity()
	opp.AllowedPlans = []string{user.PlanBasic, user.PlanProfessional}
	opp.VerifiedOnly = true
	opp.PluggerID = "plugger"

	got, err := matcher.EligibleRecipients(ctx, opp)
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	want := map[string]bool{"achiever": true, "second": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d recipients, got %v", len(want), got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected recipient %s in %v", id, got)
		}
	}
}

func TestMatcherScalesPastOneRecipient(t *testing.T) {
	f := testutil.NewFixture()
	matcher := NewMatcher(f.Store, f.Store, nil)

	for i := 0; i < 20; i++ {
		f.EligibleUser(fmt.Sprintf("bulk-%d", i))
	}

	got, err := matcher.EligibleRecipients(context.Background(), f.Opportunity())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(got) != 21 { // 20 bulk users plus the seeded achiever
		t.Fatalf("expected 21 recipients, got %d", len(got))
	}
}
