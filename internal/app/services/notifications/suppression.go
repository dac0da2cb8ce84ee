package notifications

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
)

// SuppressionPolicy describes how near-duplicate notifications of one event
// kind are collapsed: deliveries of the same key inside Window are dropped.
type SuppressionPolicy struct {
	Window time.Duration

	// KeyFunc derives the dedup key; nil keys on (event, recipient,
	// opportunity).
	KeyFunc func(msg notification.Message, recipientID string) string
}

// Key returns the dedup key for one recipient.
func (p SuppressionPolicy) Key(msg notification.Message, recipientID string) string {
	if p.KeyFunc != nil {
		return p.KeyFunc(msg, recipientID)
	}
	return strings.Join([]string{string(msg.Event), recipientID, msg.OpportunityID}, ":")
}

func defaultPolicies() map[notification.EventKind]SuppressionPolicy {
	return map[notification.EventKind]SuppressionPolicy{
		notification.EventNewOpportunity: {Window: time.Hour},
		notification.EventApplication:    {Window: 10 * time.Minute},
		notification.EventPlanExpiring:   {Window: 24 * time.Hour},
		notification.EventOpportunityExpiring: {
			Window: 24 * time.Hour,
		},
	}
}

// SuppressionStore records first-seen keys with a TTL. Seen reports whether
// the key fired inside the window and marks it either way.
type SuppressionStore interface {
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
}

// MemorySuppression is the in-process default, suitable for a single
// replica and for tests.
type MemorySuppression struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemorySuppression creates an empty in-memory window store.
func NewMemorySuppression() *MemorySuppression {
	return &MemorySuppression{seen: make(map[string]time.Time), now: time.Now}
}

// WithClock overrides the time source, for tests.
func (m *MemorySuppression) WithClock(now func() time.Time) *MemorySuppression {
	m.now = now
	return m
}

func (m *MemorySuppression) Seen(_ context.Context, key string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if at, ok := m.seen[key]; ok && now.Sub(at) < window {
		return true, nil
	}
	m.seen[key] = now

	// Opportunistic cleanup so long-lived processes do not accumulate keys.
	if len(m.seen) > 4096 {
		for k, at := range m.seen {
			if now.Sub(at) >= window {
				delete(m.seen, k)
			}
		}
	}
	return false, nil
}
