package opportunities

import (
	"context"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/opportunity"
)

// Scheduler-facing scans. These are pure reads with an injected reference
// time so the cron runner and the tests call the same code path.

// FindExpiredNoAchiever returns opportunities still available whose deadline
// passed before asOf. They never auto-advance: an opportunity with no
// applications stays available past its deadline until acted on.
func (s *Service) FindExpiredNoAchiever(ctx context.Context, asOf time.Time) ([]opportunity.Opportunity, error) {
	return s.opps.FindExpiringBetween(ctx, time.Time{}, asOf.UTC())
}

// FindExpiringSoon returns available opportunities whose deadline falls
// within the window after asOf, for the expiry-warning notification.
func (s *Service) FindExpiringSoon(ctx context.Context, asOf time.Time, window time.Duration) ([]opportunity.Opportunity, error) {
	from := asOf.UTC()
	return s.opps.FindExpiringBetween(ctx, from, from.Add(window))
}
