package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
	"github.com/plugng/plug-backend/internal/app/domain/tag"
	"github.com/plugng/plug-backend/internal/app/domain/user"
	"github.com/plugng/plug-backend/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	opportunities map[string]opportunity.Opportunity
	applications  map[string][]opportunity.Application
	applicationBy map[string]struct{} // opportunityID|userID
	reviews       map[string][]opportunity.Review

	users       map[string]user.User
	contentTags map[string][][]string // userID -> tag sets of owned content items

	tags      map[string]tag.Tag
	locations map[string]tag.Location
	lgas      map[string]tag.LGA

	notifications map[string][]notification.Notification
}

var _ storage.OpportunityStore = (*Store)(nil)
var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.TagStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		opportunities: make(map[string]opportunity.Opportunity),
		applications:  make(map[string][]opportunity.Application),
		applicationBy: make(map[string]struct{}),
		reviews:       make(map[string][]opportunity.Review),
		users:         make(map[string]user.User),
		contentTags:   make(map[string][][]string),
		tags:          make(map[string]tag.Tag),
		locations:     make(map[string]tag.Location),
		lgas:          make(map[string]tag.LGA),
		notifications: make(map[string][]notification.Notification),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func applicationKey(opportunityID, userID string) string {
	return opportunityID + "|" + userID
}

// OpportunityStore implementation --------------------------------------------

func (s *Store) CreateOpportunity(_ context.Context, opp opportunity.Opportunity) (opportunity.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opp.ID == "" {
		opp.ID = s.nextIDLocked()
	} else if _, exists := s.opportunities[opp.ID]; exists {
		return opportunity.Opportunity{}, fmt.Errorf("opportunity %s already exists", opp.ID)
	}

	now := time.Now().UTC()
	opp.CreatedAt = now
	opp.UpdatedAt = now
	if opp.Status == "" {
		opp.Status = opportunity.StatusAvailable
	}
	opp.AllowedPlans = cloneStrings(opp.AllowedPlans)
	opp.TagIDs = cloneStrings(opp.TagIDs)
	opp.Applications = nil
	opp.Reviews = nil

	s.opportunities[opp.ID] = opp
	return opp, nil
}

func (s *Store) GetOpportunity(_ context.Context, id string, include storage.Include) (opportunity.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opp, ok := s.opportunities[id]
	if !ok {
		return opportunity.Opportunity{}, storage.ErrNotFound
	}
	opp.AllowedPlans = cloneStrings(opp.AllowedPlans)
	opp.TagIDs = cloneStrings(opp.TagIDs)
	if include.Applications {
		opp.Applications = append([]opportunity.Application(nil), s.applications[id]...)
	}
	if include.Reviews {
		opp.Reviews = append([]opportunity.Review(nil), s.reviews[id]...)
	}
	return opp, nil
}

func (s *Store) ListOpportunities(_ context.Context, filter storage.OpportunityFilter) ([]opportunity.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []opportunity.Opportunity
	for _, opp := range s.opportunities {
		if filter.PluggerID != "" && opp.PluggerID != filter.PluggerID {
			continue
		}
		if filter.Status != "" && opp.Status != filter.Status {
			continue
		}
		result = append(result, opp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) DeleteOpportunity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.opportunities[id]; !ok {
		return storage.ErrNotFound
	}
	for _, application := range s.applications[id] {
		delete(s.applicationBy, applicationKey(id, application.UserID))
	}
	delete(s.applications, id)
	delete(s.reviews, id)
	delete(s.opportunities, id)
	return nil
}

func (s *Store) UpdateOpportunityStatus(_ context.Context, id string, expected, next opportunity.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opp, ok := s.opportunities[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if opp.Status != expected {
		return false, nil
	}
	opp.Status = next
	opp.UpdatedAt = time.Now().UTC()
	s.opportunities[id] = opp
	return true, nil
}

func (s *Store) SetAchiever(_ context.Context, opportunityID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opp, ok := s.opportunities[opportunityID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if opp.AchieverID != "" {
		return false, nil
	}
	opp.AchieverID = userID
	opp.UpdatedAt = time.Now().UTC()
	s.opportunities[opportunityID] = opp
	return true, nil
}

func (s *Store) FindRecentByPluggerTitle(_ context.Context, pluggerID, title string, since time.Time) ([]opportunity.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []opportunity.Opportunity
	for _, opp := range s.opportunities {
		if opp.PluggerID != pluggerID {
			continue
		}
		if !strings.EqualFold(opp.Title, title) {
			continue
		}
		if opp.CreatedAt.Before(since) {
			continue
		}
		result = append(result, opp)
	}
	return result, nil
}

func (s *Store) FindPendingWithoutReviewByPlugger(_ context.Context, pluggerID string) ([]opportunity.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []opportunity.Opportunity
	for id, opp := range s.opportunities {
		if opp.PluggerID != pluggerID || opp.Status != opportunity.StatusPending || opp.AchieverID == "" {
			continue
		}
		reviewed := false
		for _, rev := range s.reviews[id] {
			if rev.AuthorID == pluggerID {
				reviewed = true
				break
			}
		}
		if !reviewed {
			result = append(result, opp)
		}
	}
	return result, nil
}

func (s *Store) FindExpiringBetween(_ context.Context, from, to time.Time) ([]opportunity.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []opportunity.Opportunity
	for _, opp := range s.opportunities {
		if opp.Status != opportunity.StatusAvailable {
			continue
		}
		if opp.Deadline.Before(from) || opp.Deadline.After(to) {
			continue
		}
		result = append(result, opp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Deadline.Before(result[j].Deadline)
	})
	return result, nil
}

// ApplicationStore implementation --------------------------------------------

func (s *Store) AddApplication(_ context.Context, opportunityID, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.opportunities[opportunityID]; !ok {
		return false, storage.ErrNotFound
	}
	key := applicationKey(opportunityID, userID)
	if _, dup := s.applicationBy[key]; dup {
		return false, nil
	}
	s.applicationBy[key] = struct{}{}
	s.applications[opportunityID] = append(s.applications[opportunityID], opportunity.Application{
		OpportunityID: opportunityID,
		UserID:        userID,
		AppliedAt:     at.UTC(),
	})
	return true, nil
}

func (s *Store) CountApplications(_ context.Context, opportunityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.applications[opportunityID]), nil
}

func (s *Store) ListApplications(_ context.Context, opportunityID string) ([]opportunity.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]opportunity.Application(nil), s.applications[opportunityID]...), nil
}

func (s *Store) HasApplied(_ context.Context, opportunityID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applicationBy[applicationKey(opportunityID, userID)]
	return ok, nil
}

func (s *Store) CountUserApplicationsSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, applications := range s.applications {
		for _, application := range applications {
			if application.UserID == userID && !application.AppliedAt.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

// ReviewStore implementation -------------------------------------------------

func (s *Store) AddReview(_ context.Context, rev opportunity.Review) (opportunity.Review, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.opportunities[rev.OpportunityID]; !ok {
		return opportunity.Review{}, false, storage.ErrNotFound
	}
	for _, existing := range s.reviews[rev.OpportunityID] {
		if existing.AuthorID == rev.AuthorID {
			return opportunity.Review{}, false, nil
		}
	}
	if rev.ID == "" {
		rev.ID = s.nextIDLocked()
	}
	rev.CreatedAt = time.Now().UTC()
	s.reviews[rev.OpportunityID] = append(s.reviews[rev.OpportunityID], rev)
	return rev, true, nil
}

func (s *Store) ListReviews(_ context.Context, opportunityID string) ([]opportunity.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]opportunity.Review(nil), s.reviews[opportunityID]...), nil
}

func (s *Store) CountReviews(_ context.Context, opportunityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reviews[opportunityID]), nil
}

// UserStore implementation ---------------------------------------------------

// PutUser inserts or replaces a user profile. It exists for seeding and
// tests; profile CRUD itself lives outside this core.
func (s *Store) PutUser(u user.User) user.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.SkillTagIDs = cloneStrings(u.SkillTagIDs)
	s.users[u.ID] = u
	return u
}

// AddContent records a content item owned by the user, tagged with tagIDs.
func (s *Store) AddContent(userID string, tagIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contentTags[userID] = append(s.contentTags[userID], cloneStrings(tagIDs))
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.SkillTagIDs = cloneStrings(u.SkillTagIDs)
	return u, nil
}

func (s *Store) ListCandidates(_ context.Context, filter storage.CandidateFilter) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	planAllowed := func(planType string) bool {
		if len(filter.PlanTypes) == 0 {
			return true
		}
		for _, p := range filter.PlanTypes {
			if p == planType {
				return true
			}
		}
		return false
	}

	var result []user.User
	for _, u := range s.users {
		if !planAllowed(u.PlanType) {
			continue
		}
		u.SkillTagIDs = cloneStrings(u.SkillTagIDs)
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UserOwnsContentWithTags(_ context.Context, userID string, tagIDs []string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		wanted[id] = struct{}{}
	}
	for _, contentTagIDs := range s.contentTags[userID] {
		for _, id := range contentTagIDs {
			if _, ok := wanted[id]; ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) SetHasPendingReview(_ context.Context, userID string, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.HasPendingReview = pending
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) FindPlansExpiringBetween(_ context.Context, from, to time.Time) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []user.User
	for _, u := range s.users {
		if u.PlanExpiresAt == nil {
			continue
		}
		if u.PlanExpiresAt.Before(from) || u.PlanExpiresAt.After(to) {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// TagStore implementation ----------------------------------------------------

// PutTag inserts or replaces a tag, for seeding and tests.
func (s *Store) PutTag(t tag.Tag) tag.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = s.nextIDLocked()
	}
	s.tags[t.ID] = t
	return t
}

// PutLocation inserts or replaces a location, for seeding and tests.
func (s *Store) PutLocation(l tag.Location) tag.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = s.nextIDLocked()
	}
	s.locations[l.ID] = l
	return l
}

// PutLGA inserts or replaces an LGA, for seeding and tests.
func (s *Store) PutLGA(l tag.LGA) tag.LGA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = s.nextIDLocked()
	}
	s.lgas[l.ID] = l
	return l
}

func (s *Store) GetTags(_ context.Context, ids []string) ([]tag.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]tag.Tag, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.tags[id]; ok {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *Store) AllMinor(_ context.Context, ids []string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range ids {
		t, ok := s.tags[id]
		if !ok {
			return false, storage.ErrNotFound
		}
		if !t.IsMinor() {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) LocationInCountry(_ context.Context, locationID, countryID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.locations[locationID]
	if !ok {
		return false, nil
	}
	return l.CountryID == countryID, nil
}

func (s *Store) LGAInLocation(_ context.Context, lgaID, locationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lgas[lgaID]
	if !ok {
		return false, nil
	}
	return l.LocationID == locationID, nil
}

// NotificationStore implementation -------------------------------------------

func (s *Store) AddNotifications(_ context.Context, msgs []notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range msgs {
		if msg.ID == "" {
			msg.ID = s.nextIDLocked()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		s.notifications[msg.UserID] = append(s.notifications[msg.UserID], msg)
	}
	return nil
}

func (s *Store) ListNotificationsForUser(_ context.Context, userID string, limit int) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := append([]notification.Notification(nil), s.notifications[userID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *Store) MarkNotificationsRead(_ context.Context, userID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	msgs := s.notifications[userID]
	for i := range msgs {
		if _, ok := wanted[msgs[i].ID]; ok {
			msgs[i].Read = true
		}
	}
	return nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
