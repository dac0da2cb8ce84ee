package notifications

import (
	"context"

	"github.com/plugng/plug-backend/internal/app/domain/notification"
	"github.com/plugng/plug-backend/internal/errors"
)

// Read side of the in-app inbox.

// ListForUser returns the user's most recent notifications.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	if s.store == nil {
		return nil, nil
	}
	msgs, err := s.store.ListNotificationsForUser(ctx, userID, limit)
	if err != nil {
		return nil, errors.Internal("list notifications failed", err)
	}
	return msgs, nil
}

// MarkRead marks the given notification IDs read for the user. Unknown IDs
// are ignored.
func (s *Service) MarkRead(ctx context.Context, userID string, ids []string) error {
	if s.store == nil || len(ids) == 0 {
		return nil
	}
	if err := s.store.MarkNotificationsRead(ctx, userID, ids); err != nil {
		return errors.Internal("mark notifications read failed", err)
	}
	return nil
}
