package app

import (
	"github.com/plugng/plug-backend/internal/app/searchindex"
	"github.com/plugng/plug-backend/internal/app/services/eligibility"
	"github.com/plugng/plug-backend/internal/app/services/jobs"
	"github.com/plugng/plug-backend/internal/app/services/notifications"
	"github.com/plugng/plug-backend/internal/app/services/opportunities"
	"github.com/plugng/plug-backend/internal/app/storage"
	"github.com/plugng/plug-backend/internal/app/storage/memory"
	"github.com/plugng/plug-backend/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Opportunities storage.OpportunityStore
	Applications  storage.ApplicationStore
	Reviews       storage.ReviewStore
	Users         storage.UserStore
	Tags          storage.TagStore
	Notifications storage.NotificationStore
}

// Options tunes the application's business policies and collaborators.
type Options struct {
	Lifecycle   opportunities.Config
	Admission   eligibility.Policy
	Jobs        jobs.Config
	SearchIndex searchindex.Index
	Email       notifications.EmailSender
	Suppression notifications.SuppressionStore
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Opportunities *opportunities.Service
	Admission     *eligibility.Admission
	Matcher       *eligibility.Matcher
	Notifications *notifications.Service
	Jobs          *jobs.Runner
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Opportunities == nil {
		stores.Opportunities = mem
	}
	if stores.Applications == nil {
		stores.Applications = mem
	}
	if stores.Reviews == nil {
		stores.Reviews = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Tags == nil {
		stores.Tags = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}

	var dispatcherOpts []notifications.Option
	if opts.Email != nil {
		dispatcherOpts = append(dispatcherOpts, notifications.WithEmailSender(opts.Email))
	}
	if opts.Suppression != nil {
		dispatcherOpts = append(dispatcherOpts, notifications.WithSuppressionStore(opts.Suppression))
	}
	dispatcher := notifications.New(stores.Notifications, log.WithField("component", "notifications"), dispatcherOpts...)

	admission := eligibility.NewAdmission(stores.Users, stores.Applications, stores.Opportunities, stores.Tags,
		opts.Admission, log.WithField("component", "admission"))
	matcher := eligibility.NewMatcher(stores.Users, stores.Tags, log.WithField("component", "matcher"))

	oppSvc := opportunities.New(opportunities.Deps{
		Opportunities: stores.Opportunities,
		Applications:  stores.Applications,
		Reviews:       stores.Reviews,
		Users:         stores.Users,
		Tags:          stores.Tags,
		Admission:     admission,
		Matcher:       matcher,
		Dispatcher:    dispatcher,
		Index:         opts.SearchIndex,
	}, opts.Lifecycle, log.WithField("component", "opportunities"))

	runner := jobs.New(oppSvc, stores.Users, dispatcher, opts.Jobs, log.WithField("component", "jobs"))

	return &Application{
		log:           log,
		Opportunities: oppSvc,
		Admission:     admission,
		Matcher:       matcher,
		Notifications: dispatcher,
		Jobs:          runner,
	}
}
