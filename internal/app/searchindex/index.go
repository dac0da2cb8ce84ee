// Package searchindex is the boundary to the external search index. Sync
// failures are logged by callers and never surfaced; the index converges on
// the next write.
package searchindex

import (
	"context"

	"github.com/plugng/plug-backend/pkg/logger"
)

// Index receives opportunity sync events.
type Index interface {
	Upsert(ctx context.Context, opportunityID string) error
	Delete(ctx context.Context, opportunityID string) error
}

// Noop discards all sync events. It is the default when no index is
// configured.
type Noop struct{}

func (Noop) Upsert(context.Context, string) error { return nil }
func (Noop) Delete(context.Context, string) error { return nil }

// Logging wraps an index and logs failures, swallowing them. The lifecycle
// services use it so a sync failure cannot fail a request.
type Logging struct {
	Next Index
	Log  *logger.Logger
}

// NewLogging wraps next; a nil next behaves like Noop.
func NewLogging(next Index, log *logger.Logger) Logging {
	if next == nil {
		next = Noop{}
	}
	if log == nil {
		log = logger.NewDefault("searchindex")
	}
	return Logging{Next: next, Log: log}
}

func (l Logging) Upsert(ctx context.Context, opportunityID string) error {
	if err := l.Next.Upsert(ctx, opportunityID); err != nil {
		l.Log.WithError(err).WithField("opportunity_id", opportunityID).Warn("search index upsert failed")
	}
	return nil
}

func (l Logging) Delete(ctx context.Context, opportunityID string) error {
	if err := l.Next.Delete(ctx, opportunityID); err != nil {
		l.Log.WithError(err).WithField("opportunity_id", opportunityID).Warn("search index delete failed")
	}
	return nil
}
