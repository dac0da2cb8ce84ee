// Package jobs runs the recurring maintenance scans: expiry warnings for
// opportunities approaching their deadline and plan-expiry warnings for
// users. The scans themselves are pure, time-injected reads on the services;
// this package only supplies the schedule.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
	"github.com/plugng/plug-backend/internal/app/metrics"
	"github.com/plugng/plug-backend/internal/app/services/notifications"
	"github.com/plugng/plug-backend/internal/app/services/opportunities"
	"github.com/plugng/plug-backend/internal/app/storage"
	"github.com/plugng/plug-backend/pkg/logger"
)

// Config holds the cron schedules and scan windows.
type Config struct {
	// Spec is the cron expression both scans run on.
	Spec string

	// ExpiryWindow is how far ahead the opportunity-deadline scan looks.
	ExpiryWindow time.Duration

	// PlanExpiryWindow is how far ahead the plan-expiry scan looks.
	PlanExpiryWindow time.Duration
}

// DefaultConfig runs the scans daily at midnight UTC.
func DefaultConfig() Config {
	return Config{
		Spec:             "0 0 * * *",
		ExpiryWindow:     48 * time.Hour,
		PlanExpiryWindow: 72 * time.Hour,
	}
}

// Runner owns the cron schedule.
type Runner struct {
	opps       *opportunities.Service
	users      storage.UserStore
	dispatcher notifications.Dispatcher
	cfg        Config
	log        *logger.Logger
	cron       *cron.Cron
	now        func() time.Time
}

// New constructs a runner. Start must be called to begin scheduling.
func New(opps *opportunities.Service, users storage.UserStore, dispatcher notifications.Dispatcher, cfg Config, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultConfig().Spec
	}
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = DefaultConfig().ExpiryWindow
	}
	if cfg.PlanExpiryWindow <= 0 {
		cfg.PlanExpiryWindow = DefaultConfig().PlanExpiryWindow
	}
	return &Runner{
		opps:       opps,
		users:      users,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		cron:       cron.New(cron.WithLocation(time.UTC)),
		now:        time.Now,
	}
}

// WithClock overrides the scan reference time, for tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Start registers the scans and starts the scheduler.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.cfg.Spec, func() {
		ctx := context.Background()
		r.RunExpiryScan(ctx, r.now())
		r.RunPlanExpiryScan(ctx, r.now())
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.log.WithField("spec", r.cfg.Spec).Info("job scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running scan to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// RunExpiryScan notifies pluggers of opportunities near or past deadline
// with no achiever selected.
func (r *Runner) RunExpiryScan(ctx context.Context, asOf time.Time) {
	expiring, err := r.opps.FindExpiringSoon(ctx, asOf, r.cfg.ExpiryWindow)
	if err != nil {
		metrics.ScheduledScan("opportunity_expiry", "error")
		r.log.WithError(err).Error("expiry scan failed")
		return
	}
	expired, err := r.opps.FindExpiredNoAchiever(ctx, asOf)
	if err != nil {
		metrics.ScheduledScan("opportunity_expiry", "error")
		r.log.WithError(err).Error("expired scan failed")
		return
	}

	for _, opp := range append(expired, expiring...) {
		r.dispatcher.Notify(ctx, notification.Message{
			Event:         notification.EventOpportunityExpiring,
			RecipientIDs:  []string{opp.PluggerID},
			OpportunityID: opp.ID,
			IncludeEmail:  true,
		})
	}
	metrics.ScheduledScan("opportunity_expiry", "ok")
	r.log.WithField("expiring", len(expiring)).
		WithField("expired", len(expired)).
		Info("expiry scan complete")
}

// RunPlanExpiryScan warns users whose paid plan lapses inside the window.
func (r *Runner) RunPlanExpiryScan(ctx context.Context, asOf time.Time) {
	users, err := r.users.FindPlansExpiringBetween(ctx, asOf.UTC(), asOf.UTC().Add(r.cfg.PlanExpiryWindow))
	if err != nil {
		metrics.ScheduledScan("plan_expiry", "error")
		r.log.WithError(err).Error("plan expiry scan failed")
		return
	}
	for _, u := range users {
		r.dispatcher.Notify(ctx, notification.Message{
			Event:        notification.EventPlanExpiring,
			RecipientIDs: []string{u.ID},
			IncludeEmail: true,
		})
	}
	metrics.ScheduledScan("plan_expiry", "ok")
	r.log.WithField("users", len(users)).Info("plan expiry scan complete")
}
