// Package opportunities implements the opportunity lifecycle: creation
// guards, the application flow, achiever selection and the review gate that
// closes an opportunity out.
//
// The lifecycle is a monotonic state machine, available -> pending -> done.
// Transitions are written with their precondition (compare-and-set on the
// current status, achiever set only while NULL) so racing requests cannot
// both succeed. Side effects of a transition go through the dispatcher and
// the search index and never roll the transition back.
package opportunities

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/app/metrics"
	"github.com/plugng/plug-backend/internal/app/searchindex"
	"github.com/plugng/plug-backend/internal/app/services/eligibility"
	"github.com/plugng/plug-backend/internal/app/services/notifications"
	"github.com/plugng/plug-backend/internal/app/storage"
	"github.com/plugng/plug-backend/internal/errors"
	"github.com/plugng/plug-backend/pkg/logger"
)

// Config carries the tunable lifecycle rules.
type Config struct {
	// AutoPendingApplicants is the applicant count that freezes the
	// opportunity automatically.
	AutoPendingApplicants int

	// DuplicateTitleWindow rejects a same-plugger, same-title create inside
	// this window. Double-click protection, not content hashing.
	DuplicateTitleWindow time.Duration
}

// DefaultConfig returns the production lifecycle rules.
func DefaultConfig() Config {
	return Config{
		AutoPendingApplicants: 40,
		DuplicateTitleWindow:  10 * time.Minute,
	}
}

// Service orchestrates the opportunity lifecycle.
type Service struct {
	opps    storage.OpportunityStore
	apps    storage.ApplicationStore
	reviews storage.ReviewStore
	users   storage.UserStore
	tags    storage.TagStore

	admission  *eligibility.Admission
	matcher    *eligibility.Matcher
	dispatcher notifications.Dispatcher
	index      searchindex.Index

	cfg Config
	log *logger.Logger
	now func() time.Time
}

// Deps bundles the service's collaborators.
type Deps struct {
	Opportunities storage.OpportunityStore
	Applications  storage.ApplicationStore
	Reviews       storage.ReviewStore
	Users         storage.UserStore
	Tags          storage.TagStore

	Admission  *eligibility.Admission
	Matcher    *eligibility.Matcher
	Dispatcher notifications.Dispatcher
	Index      searchindex.Index
}

// New constructs the lifecycle service.
func New(deps Deps, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("opportunities")
	}
	if cfg.AutoPendingApplicants <= 0 {
		cfg.AutoPendingApplicants = DefaultConfig().AutoPendingApplicants
	}
	if cfg.DuplicateTitleWindow <= 0 {
		cfg.DuplicateTitleWindow = DefaultConfig().DuplicateTitleWindow
	}
	index := deps.Index
	if index == nil {
		index = searchindex.Noop{}
	}
	return &Service{
		opps:       deps.Opportunities,
		apps:       deps.Applications,
		reviews:    deps.Reviews,
		users:      deps.Users,
		tags:       deps.Tags,
		admission:  deps.Admission,
		matcher:    deps.Matcher,
		dispatcher: deps.Dispatcher,
		index:      searchindex.NewLogging(index, log),
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput is the plugger's submission.
type CreateInput struct {
	PluggerID        string
	Title            string
	Responsibilities string
	Budget           int64
	Deadline         time.Time

	AllowedPlans []string
	VerifiedOnly bool

	CountryID  string
	LocationID string
	LGAID      string

	TagIDs       []string
	OccupationID string
}

// Create validates and persists a new opportunity, then fans out the
// NEW_OPPORTUNITY notification to the matched audience.
func (s *Service) Create(ctx context.Context, in CreateInput) (opportunity.Opportunity, error) {
	if _, err := s.users.GetUser(ctx, in.PluggerID); err != nil {
		return opportunity.Opportunity{}, asNotFound(err, "plugger")
	}

	if err := s.validateCreate(ctx, &in); err != nil {
		return opportunity.Opportunity{}, err
	}

	now := s.now().UTC()

	// Double-click / replay protection on (plugger, title).
	recent, err := s.opps.FindRecentByPluggerTitle(ctx, in.PluggerID, in.Title, now.Add(-s.cfg.DuplicateTitleWindow))
	if err != nil {
		return opportunity.Opportunity{}, errors.Internal("duplicate check failed", err)
	}
	if len(recent) > 0 {
		return opportunity.Opportunity{}, errors.DuplicateSubmission()
	}

	// A plugger who owes a review to a selected achiever cannot post again
	// until it is submitted.
	owed, err := s.opps.FindPendingWithoutReviewByPlugger(ctx, in.PluggerID)
	if err != nil {
		return opportunity.Opportunity{}, errors.Internal("outstanding review lookup failed", err)
	}
	if len(owed) > 0 {
		return opportunity.Opportunity{}, errors.OutstandingReviewRequired()
	}

	created, err := s.opps.CreateOpportunity(ctx, opportunity.Opportunity{
		Title:            strings.TrimSpace(in.Title),
		Responsibilities: in.Responsibilities,
		Budget:           in.Budget,
		Deadline:         in.Deadline.UTC(),
		Status:           opportunity.StatusAvailable,
		PluggerID:        in.PluggerID,
		AllowedPlans:     in.AllowedPlans,
		VerifiedOnly:     in.VerifiedOnly,
		CountryID:        in.CountryID,
		LocationID:       in.LocationID,
		LGAID:            in.LGAID,
		TagIDs:           in.TagIDs,
		OccupationID:     in.OccupationID,
	})
	if err != nil {
		return opportunity.Opportunity{}, errors.Internal("create opportunity failed", err)
	}

	_ = s.index.Upsert(ctx, created.ID)

	if s.matcher != nil && s.dispatcher != nil {
		recipients, err := s.matcher.EligibleRecipients(ctx, created)
		if err != nil {
			// Fan-out is best effort; the opportunity exists either way.
			s.log.WithError(err).WithField("opportunity_id", created.ID).Warn("audience match failed")
		} else {
			s.dispatcher.Notify(ctx, notification.Message{
				Event:         notification.EventNewOpportunity,
				RecipientIDs:  recipients,
				OpportunityID: created.ID,
				ActorID:       created.PluggerID,
				IncludeEmail:  true,
			})
		}
	}

	s.log.WithField("opportunity_id", created.ID).
		WithField("plugger_id", created.PluggerID).
		Info("opportunity created")
	return created, nil
}

func (s *Service) validateCreate(ctx context.Context, in *CreateInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return errors.Validation("title is required")
	}
	if !in.Deadline.After(s.now()) {
		return errors.Validation("deadline must be in the future")
	}
	if len(in.AllowedPlans) == 0 {
		return errors.Validation("at least one allowed plan is required")
	}
	for _, plan := range in.AllowedPlans {
		if !user.ValidPlan(plan) {
			return errors.Validation("unknown plan type: " + plan)
		}
	}
	if len(in.TagIDs) == 0 {
		return errors.Validation("at least one tag is required")
	}
	minor, err := s.tags.AllMinor(ctx, in.TagIDs)
	if err != nil {
		return errors.Internal("tag lookup failed", err)
	}
	if !minor {
		return errors.Validation("only minor tags can be assigned to an opportunity")
	}

	// Most specific location wins: an LGA clears location and country, a
	// location clears country. At least one level is required.
	switch {
	case in.LGAID != "":
		in.LocationID = ""
		in.CountryID = ""
	case in.LocationID != "":
		in.CountryID = ""
	case in.CountryID != "":
	default:
		return errors.Validation("a country, location or LGA is required")
	}
	return nil
}

// Get returns an opportunity with the requested relations.
func (s *Service) Get(ctx context.Context, id string, include storage.Include) (opportunity.Opportunity, error) {
	opp, err := s.opps.GetOpportunity(ctx, id, include)
	if err != nil {
		return opportunity.Opportunity{}, asNotFound(err, "opportunity")
	}
	return opp, nil
}

// List returns opportunities matching the filter.
func (s *Service) List(ctx context.Context, filter storage.OpportunityFilter) ([]opportunity.Opportunity, error) {
	return s.opps.ListOpportunities(ctx, filter)
}

// Apply records userID's application after the admission checks pass, and
// freezes the opportunity when the applicant threshold is reached.
func (s *Service) Apply(ctx context.Context, opportunityID, userID string) error {
	opp, err := s.opps.GetOpportunity(ctx, opportunityID, storage.Include{})
	if err != nil {
		metrics.ApplicationOutcome("not_found")
		return asNotFound(err, "opportunity")
	}
	applicant, err := s.users.GetUser(ctx, userID)
	if err != nil {
		metrics.ApplicationOutcome("not_found")
		return asNotFound(err, "user")
	}

	if err := s.admission.CanApply(ctx, opp, applicant); err != nil {
		metrics.ApplicationOutcome(string(errors.GetServiceError(err).Code))
		return err
	}

	// The store-level uniqueness constraint closes the check-then-act gap
	// between CanApply and the insert.
	inserted, err := s.apps.AddApplication(ctx, opp.ID, applicant.ID, s.now())
	if err != nil {
		metrics.ApplicationOutcome("error")
		return errors.Internal("record application failed", err)
	}
	if !inserted {
		metrics.ApplicationOutcome("duplicate")
		return errors.AlreadyApplied()
	}
	metrics.ApplicationOutcome("accepted")

	count, err := s.apps.CountApplications(ctx, opp.ID)
	if err != nil {
		s.log.WithError(err).WithField("opportunity_id", opp.ID).Warn("application count failed")
		count = 0
	}

	// The Nth applicant freezes the applicant set. The CAS makes the
	// transition idempotent when two applicants race over the threshold.
	if count >= s.cfg.AutoPendingApplicants {
		s.transition(ctx, opp.ID, opportunity.StatusAvailable, opportunity.StatusPending)
	}

	// Cadence: the plugger hears about the 1st, 2nd and 3rd application and
	// every 4th after that. Best effort under races.
	if s.dispatcher != nil && count > 0 && (count < 4 || count%4 == 0) {
		s.dispatcher.Notify(ctx, notification.Message{
			Event:         notification.EventApplication,
			RecipientIDs:  []string{opp.PluggerID},
			OpportunityID: opp.ID,
			ActorID:       applicant.ID,
			IncludeEmail:  false,
		})
	}

	s.log.WithField("opportunity_id", opp.ID).
		WithField("user_id", applicant.ID).
		WithField("applications", count).
		Info("application recorded")
	return nil
}

// SetAchiever selects an applicant as the opportunity's achiever. Only the
// plugger may call it, exactly once.
func (s *Service) SetAchiever(ctx context.Context, opportunityID, actorID, achieverID string) error {
	opp, err := s.opps.GetOpportunity(ctx, opportunityID, storage.Include{Applications: true})
	if err != nil {
		return asNotFound(err, "opportunity")
	}
	if actorID != opp.PluggerID {
		return errors.Unauthorized("only the plugger can select an achiever")
	}
	if achieverID == opp.PluggerID {
		return errors.Validation("plugger cannot be the achiever")
	}
	if opp.AchieverID != "" {
		return errors.AlreadyHasAchiever()
	}

	applied := false
	for _, application := range opp.Applications {
		if application.UserID == achieverID {
			applied = true
			break
		}
	}
	if !applied {
		return errors.NotApplicant()
	}

	// Guarded by achiever_id IS NULL in the store: racing selections cannot
	// both succeed.
	set, err := s.opps.SetAchiever(ctx, opp.ID, achieverID)
	if err != nil {
		return errors.Internal("set achiever failed", err)
	}
	if !set {
		return errors.AlreadyHasAchiever()
	}

	s.transition(ctx, opp.ID, opportunity.StatusAvailable, opportunity.StatusPending)

	// The plugger now owes the achiever a review.
	if err := s.users.SetHasPendingReview(ctx, opp.PluggerID, true); err != nil {
		s.log.WithError(err).WithField("user_id", opp.PluggerID).Warn("set pending review flag failed")
	}

	if s.dispatcher != nil {
		s.dispatcher.Notify(ctx, notification.Message{
			Event:         notification.EventAchieverSet,
			RecipientIDs:  []string{achieverID},
			OpportunityID: opp.ID,
			ActorID:       opp.PluggerID,
			IncludeEmail:  true,
		})
		var others []string
		for _, application := range opp.Applications {
			if application.UserID != achieverID {
				others = append(others, application.UserID)
			}
		}
		s.dispatcher.Notify(ctx, notification.Message{
			Event:         notification.EventAchieverSetOthers,
			RecipientIDs:  others,
			OpportunityID: opp.ID,
			ActorID:       opp.PluggerID,
			IncludeEmail:  false,
		})
	}

	s.log.WithField("opportunity_id", opp.ID).
		WithField("achiever_id", achieverID).
		Info("achiever selected")
	return nil
}

// ReviewInput is one party's review of the other.
type ReviewInput struct {
	OpportunityID string
	AuthorID      string
	Rating        int
	Comment       string
}

// SubmitReview records a review. The plugger's review of the achiever
// completes the opportunity.
func (s *Service) SubmitReview(ctx context.Context, in ReviewInput) (opportunity.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return opportunity.Review{}, errors.Validation("rating must be between 1 and 5")
	}

	opp, err := s.opps.GetOpportunity(ctx, in.OpportunityID, storage.Include{Reviews: true})
	if err != nil {
		return opportunity.Review{}, asNotFound(err, "opportunity")
	}
	if opp.AchieverID == "" {
		return opportunity.Review{}, errors.Validation("no achiever has been selected yet")
	}

	var subjectID string
	switch in.AuthorID {
	case opp.PluggerID:
		subjectID = opp.AchieverID
	case opp.AchieverID:
		subjectID = opp.PluggerID
	default:
		return opportunity.Review{}, errors.Unauthorized("only the plugger or the achiever can review")
	}

	if len(opp.Reviews) >= 2 {
		return opportunity.Review{}, errors.DuplicateReview()
	}

	rev, inserted, err := s.reviews.AddReview(ctx, opportunity.Review{
		OpportunityID: opp.ID,
		AuthorID:      in.AuthorID,
		SubjectID:     subjectID,
		Rating:        in.Rating,
		Comment:       in.Comment,
	})
	if err != nil {
		return opportunity.Review{}, errors.Internal("record review failed", err)
	}
	if !inserted {
		return opportunity.Review{}, errors.DuplicateReview()
	}

	// The plugger's review is the pending -> done trigger and releases the
	// plugger's outstanding-review block.
	if in.AuthorID == opp.PluggerID {
		if !s.transition(ctx, opp.ID, opportunity.StatusPending, opportunity.StatusDone) {
			s.log.WithField("opportunity_id", opp.ID).Warn("review recorded but completion transition did not apply")
		}
		if err := s.users.SetHasPendingReview(ctx, opp.PluggerID, false); err != nil {
			s.log.WithError(err).WithField("user_id", opp.PluggerID).Warn("clear pending review flag failed")
		}
		if s.dispatcher != nil {
			s.dispatcher.Notify(ctx, notification.Message{
				Event:         notification.EventReview,
				RecipientIDs:  []string{opp.AchieverID},
				OpportunityID: opp.ID,
				ActorID:       opp.PluggerID,
				IncludeEmail:  true,
			})
		}
	}

	_ = s.index.Upsert(ctx, opp.ID)

	s.log.WithField("opportunity_id", opp.ID).
		WithField("author_id", in.AuthorID).
		Info("review recorded")
	return rev, nil
}

// Delete removes an opportunity and everything under it. Permitted to the
// plugger and to admins in any state.
func (s *Service) Delete(ctx context.Context, opportunityID, actorID string, isAdmin bool) error {
	opp, err := s.opps.GetOpportunity(ctx, opportunityID, storage.Include{})
	if err != nil {
		return asNotFound(err, "opportunity")
	}
	if !isAdmin && actorID != opp.PluggerID {
		return errors.Unauthorized("only the plugger or an admin can delete an opportunity")
	}

	if err := s.opps.DeleteOpportunity(ctx, opp.ID); err != nil {
		return errors.Internal("delete opportunity failed", err)
	}

	_ = s.index.Delete(ctx, opp.ID)

	if isAdmin && actorID != opp.PluggerID && s.dispatcher != nil {
		s.dispatcher.Notify(ctx, notification.Message{
			Event:         notification.EventOpportunityDelete,
			RecipientIDs:  []string{opp.PluggerID},
			OpportunityID: opp.ID,
			ActorID:       actorID,
			IncludeEmail:  true,
		})
	}

	s.log.WithField("opportunity_id", opp.ID).
		WithField("actor_id", actorID).
		Info("opportunity deleted")
	return nil
}

// transition applies one state-machine edge with compare-and-set semantics
// and reports whether this call performed it.
func (s *Service) transition(ctx context.Context, opportunityID string, from, to opportunity.Status) bool {
	if !from.CanTransitionTo(to) {
		return false
	}
	applied, err := s.opps.UpdateOpportunityStatus(ctx, opportunityID, from, to)
	if err != nil {
		s.log.WithError(err).WithField("opportunity_id", opportunityID).Error("status transition failed")
		return false
	}
	if applied {
		metrics.StatusTransition(string(from), string(to))
		s.log.WithField("opportunity_id", opportunityID).
			WithField("from", string(from)).
			WithField("to", string(to)).
			Info("status transition")
	}
	return applied
}

func asNotFound(err error, entity string) error {
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound(entity)
	}
	var se *errors.ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return errors.Internal("store lookup failed", err)
}
