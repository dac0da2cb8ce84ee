package storage

import (
	"context"
	"errors"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/tag"
	"github.com/plugng/plug-backend/internal/app/domain/user"
)

// ErrNotFound is returned by every store when the requested row does not
// exist, regardless of backend.
var ErrNotFound = errors.New("not found")

// Include selects optional relations to hydrate on opportunity reads.
type Include struct {
	Applications bool
	Reviews      bool
}

// OpportunityFilter narrows opportunity listings.
type OpportunityFilter struct {
	PluggerID string
	Status    opportunity.Status
	Limit     int
}

// OpportunityStore persists opportunities and their lifecycle state.
//
// UpdateStatus and SetAchiever carry their preconditions into the write so
// concurrent callers cannot both succeed: UpdateStatus is a compare-and-set
// on the current status, SetAchiever only succeeds while no achiever is set.
type OpportunityStore interface {
	CreateOpportunity(ctx context.Context, opp opportunity.Opportunity) (opportunity.Opportunity, error)
	GetOpportunity(ctx context.Context, id string, include Include) (opportunity.Opportunity, error)
	ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]opportunity.Opportunity, error)
	DeleteOpportunity(ctx context.Context, id string) error

	UpdateOpportunityStatus(ctx context.Context, id string, expected, next opportunity.Status) (bool, error)
	SetAchiever(ctx context.Context, opportunityID, userID string) (bool, error)

	FindRecentByPluggerTitle(ctx context.Context, pluggerID, title string, since time.Time) ([]opportunity.Opportunity, error)
	FindPendingWithoutReviewByPlugger(ctx context.Context, pluggerID string) ([]opportunity.Opportunity, error)
	FindExpiringBetween(ctx context.Context, from, to time.Time) ([]opportunity.Opportunity, error)
}

// ApplicationStore persists applications. Add reports false, not an error,
// when the (opportunity, user) pair already exists.
type ApplicationStore interface {
	AddApplication(ctx context.Context, opportunityID, userID string, at time.Time) (bool, error)
	CountApplications(ctx context.Context, opportunityID string) (int, error)
	ListApplications(ctx context.Context, opportunityID string) ([]opportunity.Application, error)
	HasApplied(ctx context.Context, opportunityID, userID string) (bool, error)
	CountUserApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// ReviewStore persists reviews. AddReview reports false when the author has
// already reviewed the opportunity.
type ReviewStore interface {
	AddReview(ctx context.Context, rev opportunity.Review) (opportunity.Review, bool, error)
	ListReviews(ctx context.Context, opportunityID string) ([]opportunity.Review, error)
	CountReviews(ctx context.Context, opportunityID string) (int, error)
}

// CandidateFilter is the broad pre-filter for matching fan-out. The matcher
// applies the precise predicate pipeline in-process afterwards.
type CandidateFilter struct {
	PlanTypes []string
	Limit     int
}

// UserStore persists the profile slice eligibility reads.
type UserStore interface {
	GetUser(ctx context.Context, id string) (user.User, error)
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]user.User, error)
	UserOwnsContentWithTags(ctx context.Context, userID string, tagIDs []string) (bool, error)
	SetHasPendingReview(ctx context.Context, userID string, pending bool) error
	FindPlansExpiringBetween(ctx context.Context, from, to time.Time) ([]user.User, error)
}

// TagStore resolves tags and the geographic hierarchy.
type TagStore interface {
	GetTags(ctx context.Context, ids []string) ([]tag.Tag, error)
	AllMinor(ctx context.Context, ids []string) (bool, error)
	LocationInCountry(ctx context.Context, locationID, countryID string) (bool, error)
	LGAInLocation(ctx context.Context, lgaID, locationID string) (bool, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	AddNotifications(ctx context.Context, msgs []notification.Notification) error
	ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]notification.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID string, ids []string) error
}
