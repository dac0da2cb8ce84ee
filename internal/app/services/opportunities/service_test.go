package opportunities

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/app/services/eligibility"
	"github.com/plugng/plug-backend/internal/app/storage"
	"github.com/plugng/plug-backend/internal/errors"
	"github.com/plugng/plug-backend/pkg/testutil"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (d *recordingDispatcher) Notify(_ context.Context, msg notification.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
}

func (d *recordingDispatcher) byEvent(event notification.EventKind) []notification.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []notification.Message
	for _, msg := range d.msgs {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

func newTestService(t *testing.T, f *testutil.Fixture, cfg Config) (*Service, *recordingDispatcher) {
	t.Helper()
	disp := &recordingDispatcher{}
	svc := New(Deps{
		Opportunities: f.Store,
		Applications:  f.Store,
		Reviews:       f.Store,
		Users:         f.Store,
		Tags:          f.Store,
		Admission:     eligibility.NewAdmission(f.Store, f.Store, f.Store, f.Store, eligibility.DefaultPolicy(), nil),
		Matcher:       eligibility.NewMatcher(f.Store, f.Store, nil),
		Dispatcher:    disp,
	}, cfg, nil)
	return svc, disp
}

func createInput() CreateInput {
	return CreateInput{
		PluggerID:    "plugger",
		Title:        "Logo design",
		Budget:       50000,
		Deadline:     time.Now().Add(72 * time.Hour),
		AllowedPlans: []string{user.PlanBasic, user.PlanProfessional, user.PlanBusiness},
		LGAID:        "ikeja",
		TagIDs:       []string{"design"},
	}
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

func TestCreateValidation(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty title", func(in *CreateInput) { in.Title = "   " }},
		{"past deadline", func(in *CreateInput) { in.Deadline = time.Now().Add(-time.Hour) }},
		{"no plans", func(in *CreateInput) { in.AllowedPlans = nil }},
		{"bad plan", func(in *CreateInput) { in.AllowedPlans = []string{"platinum"} }},
		{"no tags", func(in *CreateInput) { in.TagIDs = nil }},
		{"major tag", func(in *CreateInput) { in.TagIDs = []string{"creative"} }},
		{"no location", func(in *CreateInput) { in.LGAID = "" }},
	}
	for _, tc := range cases {
		in := createInput()
		tc.mutate(&in)
		if _, err := svc.Create(ctx, in); err == nil || !errors.IsCode(err, errors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	if _, err := svc.Create(ctx, createInput()); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestCreateUnknownPlugger(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{})

	in := createInput()
	in.PluggerID = "ghost"
	_, err := svc.Create(context.Background(), in)
	wantCode(t, err, errors.CodeNotFound)
}

func TestCreateKeepsMostSpecificLocation(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{})

	in := createInput()
	in.CountryID = "ng"
	in.LocationID = "lagos"
	in.LGAID = "ikeja"

	created, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.LGAID != "ikeja" || created.LocationID != "" || created.CountryID != "" {
		t.Fatalf("expected LGA only, got lga=%q location=%q country=%q",
			created.LGAID, created.LocationID, created.CountryID)
	}
}

func TestCreateDuplicateTitleWindow(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, createInput()); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Same title inside the window, case-insensitive.
	in := createInput()
	in.Title = "logo DESIGN"
	svc.WithClock(func() time.Time { return time.Now().Add(5 * time.Minute) })
	_, err := svc.Create(ctx, in)
	wantCode(t, err, errors.CodeDuplicateSubmission)

	// Outside the window the same title is allowed again.
	svc.WithClock(func() time.Time { return time.Now().Add(11 * time.Minute) })
	if _, err := svc.Create(ctx, createInput()); err != nil {
		t.Fatalf("create outside window: %v", err)
	}

	// A different title inside the window is never blocked.
	svc.WithClock(time.Now)
	other := createInput()
	other.Title = "Website copy"
	if _, err := svc.Create(ctx, other); err != nil {
		t.Fatalf("different title: %v", err)
	}
}

// selectAchiever drives a fresh opportunity to the state where the plugger
// owes a review: one application, achiever chosen.
func selectAchiever(t *testing.T, svc *Service, f *testutil.Fixture) opportunity.Opportunity {
	t.Helper()
	ctx := context.Background()
	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Apply(ctx, created.ID, "achiever"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := svc.SetAchiever(ctx, created.ID, "plugger", "achiever"); err != nil {
		t.Fatalf("set achiever: %v", err)
	}
	return created
}

func TestCreateBlockedByOutstandingReview(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{})
	ctx := context.Background()

	created := selectAchiever(t, svc, f)

	in := createInput()
	in.Title = "Second brief"
	_, err := svc.Create(ctx, in)
	wantCode(t, err, errors.CodeOutstandingReview)

	// Submitting the owed review releases the block.
	if _, err := svc.SubmitReview(ctx, ReviewInput{
		OpportunityID: created.ID, AuthorID: "plugger", Rating: 5,
	}); err != nil {
		t.Fatalf("submit review: %v", err)
	}
	if _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("create after review: %v", err)
	}
}

func TestCreateNotifiesMatchedAudience(t *testing.T) {
	f := testutil.NewFixture()
	svc, disp := newTestService(t, f, Config{})

	created, err := svc.Create(context.Background(), createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	msgs := disp.byEvent(notification.EventNewOpportunity)
	if len(msgs) != 1 {
		t.Fatalf("expected one fan-out message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.OpportunityID != created.ID || !msg.IncludeEmail {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(msg.RecipientIDs) != 1 || msg.RecipientIDs[0] != "achiever" {
		t.Fatalf("expected only the eligible achiever, got %v", msg.RecipientIDs)
	}
}

func TestApplyRejectsAndDuplicates(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{})
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = svc.Apply(ctx, "missing", "achiever")
	wantCode(t, err, errors.CodeNotFound)

	err = svc.Apply(ctx, created.ID, "plugger")
	wantCode(t, err, errors.CodeSelfApplicationForbidden)

	if err := svc.Apply(ctx, created.ID, "achiever"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	err = svc.Apply(ctx, created.ID, "achiever")
	wantCode(t, err, errors.CodeDuplicateSubmission)
}

func TestApplyFreezesAtThreshold(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{AutoPendingApplicants: 3})
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		u := f.EligibleUser(fmt.Sprintf("user-%d", i))
		if err := svc.Apply(ctx, created.ID, u.ID); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	got, err := svc.Get(ctx, created.ID, storage.Include{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != opportunity.StatusPending {
		t.Fatalf("expected pending after threshold, got %s", got.Status)
	}

	// A frozen opportunity rejects further applicants.
	late := f.EligibleUser("late")
	err = svc.Apply(ctx, created.ID, late.ID)
	wantCode(t, err, errors.CodeNotAvailable)
}

func TestApplyConcurrentOverThreshold(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{AutoPendingApplicants: 5})
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 5
	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.EligibleUser(fmt.Sprintf("racer-%d", i)).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			// Losers of the freeze race may see NOT_AVAILABLE; that is the
			// contract, not a failure.
			_ = svc.Apply(ctx, created.ID, userID)
		}(id)
	}
	wg.Wait()

	got, err := svc.Get(ctx, created.ID, storage.Include{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != opportunity.StatusPending {
		t.Fatalf("expected pending after concurrent applies, got %s", got.Status)
	}
}

func TestApplyNotificationCadence(t *testing.T) {
	f := testutil.NewFixture()
	svc, disp := newTestService(t, f, Config{AutoPendingApplicants: 100})
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 9; i++ {
		u := f.EligibleUser(fmt.Sprintf("cadence-%d", i))
		if err := svc.Apply(ctx, created.ID, u.ID); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	// Counts 1, 2, 3 then every 4th: 4 and 8.
	msgs := disp.byEvent(notification.EventApplication)
	if len(msgs) != 5 {
		t.Fatalf("expected 5 plugger notifications for 9 applications, got %d", len(msgs))
	}
	for _, msg := range msgs {
		if len(msg.RecipientIDs) != 1 || msg.RecipientIDs[0] != "plugger" {
			t.Fatalf("cadence message should target the plugger, got %v", msg.RecipientIDs)
		}
	}
}

func TestSetAchieverRules(t *testing.T) {
	f := testutil.NewFixture()
	svc, disp := newTestService(t, f, Config{})
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other := f.EligibleUser("other")
	if err := svc.Apply(ctx, created.ID, "achiever"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := svc.Apply(ctx, created.ID, other.ID); err != nil {
		t.Fatalf("apply other: %v", err)
	}

	err = svc.SetAchiever(ctx, created.ID, "achiever", "achiever")
	wantCode(t, err, errors.CodeUnauthorized)

	err = svc.SetAchiever(ctx, created.ID, "plugger", "plugger")
	wantCode(t, err, errors.CodeValidation)

	err = svc.SetAchiever(ctx, created.ID, "plugger", "bystander")
	wantCode(t, err, errors.CodeNotApplicant)

	if err := svc.SetAchiever(ctx, created.ID, "plugger", "achiever"); err != nil {
		t.Fatalf("set achiever: %v", err)
	}

	err = svc.SetAchiever(ctx, created.ID, "plugger", other.ID)
	wantCode(t, err, errors.CodeAlreadyHasAchiever)

	got, err := svc.Get(ctx, created.ID, storage.Include{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AchieverID != "achiever" || got.Status != opportunity.StatusPending {
		t.Fatalf("unexpected state: achiever=%q status=%s", got.AchieverID, got.Status)
	}

	plugger, err := f.Store.GetUser(ctx, "plugger")
	if err != nil {
		t.Fatalf("get plugger: %v", err)
	}
	if !plugger.HasPendingReview {
		t.Fatal("plugger should owe a review after selecting an achiever")
	}

	if msgs := disp.byEvent(notification.EventAchieverSet); len(msgs) != 1 ||
		len(msgs[0].RecipientIDs) != 1 || msgs[0].RecipientIDs[0] != "achiever" {
		t.Fatalf("achiever notification wrong: %+v", msgs)
	}
	if msgs := disp.byEvent(notification.EventAchieverSetOthers); len(msgs) != 1 ||
		len(msgs[0].RecipientIDs) != 1 || msgs[0].RecipientIDs[0] != other.ID {
		t.Fatalf("others notification wrong: %+v", msgs)
	}
}

func TestSetAchieverConcurrent(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{})
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	a := f.EligibleUser("cand-a")
	b := f.EligibleUser("cand-b")
	for _, id := range []string{a.ID, b.ID} {
		if err := svc.Apply(ctx, created.ID, id); err != nil {
			t.Fatalf("apply %s: %v", id, err)
		}
	}

	errs := make(chan error, 2)
	for _, id := range []string{a.ID, b.ID} {
		go func(candidate string) {
			errs <- svc.SetAchiever(ctx, created.ID, "plugger", candidate)
		}(id)
	}

	var ok, conflict int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.IsCode(err, errors.CodeAlreadyHasAchiever):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d conflict=%d", ok, conflict)
	}
}

func TestReviewFlow(t *testing.T) {
	f := testutil.NewFixture()
	svc, disp := newTestService(t, f, Config{})
	ctx := context.Background()

	created := selectAchiever(t, svc, f)

	_, err := svc.SubmitReview(ctx, ReviewInput{OpportunityID: created.ID, AuthorID: "plugger", Rating: 0})
	wantCode(t, err, errors.CodeValidation)

	_, err = svc.SubmitReview(ctx, ReviewInput{OpportunityID: created.ID, AuthorID: "stranger", Rating: 4})
	wantCode(t, err, errors.CodeUnauthorized)

	// Achiever first: the opportunity stays pending.
	if _, err := svc.SubmitReview(ctx, ReviewInput{
		OpportunityID: created.ID, AuthorID: "achiever", Rating: 4, Comment: "great brief",
	}); err != nil {
		t.Fatalf("achiever review: %v", err)
	}
	got, _ := svc.Get(ctx, created.ID, storage.Include{})
	if got.Status != opportunity.StatusPending {
		t.Fatalf("achiever review must not complete, got %s", got.Status)
	}

	_, err = svc.SubmitReview(ctx, ReviewInput{OpportunityID: created.ID, AuthorID: "achiever", Rating: 5})
	wantCode(t, err, errors.CodeDuplicateReview)

	// Plugger's review completes the opportunity and clears the block.
	rev, err := svc.SubmitReview(ctx, ReviewInput{
		OpportunityID: created.ID, AuthorID: "plugger", Rating: 5,
	})
	if err != nil {
		t.Fatalf("plugger review: %v", err)
	}
	if rev.SubjectID != "achiever" {
		t.Fatalf("plugger review should target the achiever, got %q", rev.SubjectID)
	}

	got, _ = svc.Get(ctx, created.ID, storage.Include{})
	if got.Status != opportunity.StatusDone {
		t.Fatalf("expected done, got %s", got.Status)
	}
	plugger, _ := f.Store.GetUser(ctx, "plugger")
	if plugger.HasPendingReview {
		t.Fatal("pending review flag should clear after the plugger reviews")
	}
	if msgs := disp.byEvent(notification.EventReview); len(msgs) != 1 ||
		msgs[0].RecipientIDs[0] != "achiever" {
		t.Fatalf("review notification wrong: %+v", msgs)
	}

	_, err = svc.SubmitReview(ctx, ReviewInput{OpportunityID: created.ID, AuthorID: "plugger", Rating: 3})
	wantCode(t, err, errors.CodeDuplicateReview)
}

func TestReviewRequiresAchiever(t *testing.T) {
	f := testutil.NewFixture()
	svc, _ := newTestService(t, f, Config{})
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.SubmitReview(ctx, ReviewInput{OpportunityID: created.ID, AuthorID: "plugger", Rating: 5})
	wantCode(t, err, errors.CodeValidation)
}

func TestDelete(t *testing.T) {
	f := testutil.NewFixture()
	svc, disp := newTestService(t, f, Config{})
	ctx := context.Background()

	created, err := svc.Create(ctx, createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = svc.Delete(ctx, created.ID, "achiever", false)
	wantCode(t, err, errors.CodeUnauthorized)

	if err := svc.Delete(ctx, created.ID, "admin-1", true); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	_, err = svc.Get(ctx, created.ID, storage.Include{})
	wantCode(t, err, errors.CodeNotFound)

	// Admin deletes notify the owner; self-deletes do not.
	if msgs := disp.byEvent(notification.EventOpportunityDelete); len(msgs) != 1 ||
		msgs[0].RecipientIDs[0] != "plugger" {
		t.Fatalf("delete notification wrong: %+v", msgs)
	}
}
