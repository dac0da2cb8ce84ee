// Package notifications fans out in-app and email notifications. Dispatch is
// fire-and-forget relative to the triggering request: failures are logged,
// never returned, and never roll back the state change that caused them.
package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
	"github.com/plugng/plug-backend/internal/app/metrics"
	"github.com/plugng/plug-backend/internal/app/storage"
	"github.com/plugng/plug-backend/pkg/logger"
)

// Dispatcher is the boundary the lifecycle services emit events through.
type Dispatcher interface {
	Notify(ctx context.Context, msg notification.Message)
}

// EmailSender delivers a notification by email. Implementations live outside
// this core; a nil sender disables email.
type EmailSender interface {
	Send(ctx context.Context, recipientIDs []string, msg notification.Message) error
}

// Service is the concrete dispatcher: per-event suppression, in-app
// persistence, then optional email, all off the request goroutine.
type Service struct {
	store       storage.NotificationStore
	email       EmailSender
	suppression SuppressionStore
	policies    map[notification.EventKind]SuppressionPolicy
	log         *logger.Logger

	wg sync.WaitGroup
}

// Option configures the dispatcher.
type Option func(*Service)

// WithEmailSender wires an email delivery backend.
func WithEmailSender(sender EmailSender) Option {
	return func(s *Service) { s.email = sender }
}

// WithSuppressionStore overrides the window store (redis in production,
// memory by default).
func WithSuppressionStore(store SuppressionStore) Option {
	return func(s *Service) { s.suppression = store }
}

// WithPolicy registers a suppression policy for one event kind, replacing
// any default. New event kinds register themselves here rather than growing
// a switch inside the dispatcher.
func WithPolicy(event notification.EventKind, policy SuppressionPolicy) Option {
	return func(s *Service) { s.policies[event] = policy }
}

// New constructs a dispatcher with the default suppression policies.
func New(store storage.NotificationStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	s := &Service{
		store:       store,
		suppression: NewMemorySuppression(),
		policies:    defaultPolicies(),
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify schedules the fan-out and returns immediately.
func (s *Service) Notify(ctx context.Context, msg notification.Message) {
	if len(msg.RecipientIDs) == 0 {
		return
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	// Detach from the request context: the response must not wait on
	// delivery, and a cancelled request must not abort it.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("event", string(msg.Event)).Errorf("dispatch panic: %v", r)
			}
		}()
		s.dispatch(context.Background(), msg)
	}()
}

// Wait blocks until all in-flight dispatches finish. Tests use it; the
// server never does.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) dispatch(ctx context.Context, msg notification.Message) {
	recipients := s.filterSuppressed(ctx, msg)
	if len(recipients) == 0 {
		return
	}

	rows := make([]notification.Notification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, notification.Notification{
			UserID:        userID,
			Event:         msg.Event,
			OpportunityID: msg.OpportunityID,
			ActorID:       msg.ActorID,
			CreatedAt:     msg.CreatedAt,
		})
	}
	if s.store != nil {
		if err := s.store.AddNotifications(ctx, rows); err != nil {
			s.log.WithError(err).WithField("event", string(msg.Event)).Error("persist notifications failed")
		}
	}

	if msg.IncludeEmail && s.email != nil {
		if err := s.email.Send(ctx, recipients, msg); err != nil {
			s.log.WithError(err).WithField("event", string(msg.Event)).Error("email delivery failed")
		}
	}

	metrics.NotificationsDispatched(string(msg.Event), len(recipients))
	s.log.WithField("event", string(msg.Event)).
		WithField("recipients", len(recipients)).
		Info("notifications dispatched")
}

// filterSuppressed drops recipients who already received this event for the
// same opportunity inside the event's suppression window.
func (s *Service) filterSuppressed(ctx context.Context, msg notification.Message) []string {
	policy, ok := s.policies[msg.Event]
	if !ok || policy.Window <= 0 {
		return dedupe(msg.RecipientIDs)
	}

	var kept []string
	for _, userID := range dedupe(msg.RecipientIDs) {
		key := policy.Key(msg, userID)
		seen, err := s.suppression.Seen(ctx, key, policy.Window)
		if err != nil {
			// Suppression is an optimisation; on store failure deliver anyway.
			s.log.WithError(err).Warn("suppression store unavailable")
			kept = append(kept, userID)
			continue
		}
		if seen {
			metrics.NotificationsSuppressed(string(msg.Event))
			continue
		}
		kept = append(kept, userID)
	}
	return kept
}

func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
