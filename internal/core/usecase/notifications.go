package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
)

const defaultNotificationLimit = 100

// NotificationDispatcher persists user notifications and fans them out.
// The stored row is authoritative; a failed publish is only logged.
type NotificationDispatcher struct {
	repo      ports.NotificationRepository
	publisher ports.NotificationPublisher
	now       func() time.Time
}

func NewNotificationDispatcher(repo ports.NotificationRepository, publisher ports.NotificationPublisher) *NotificationDispatcher {
	return &NotificationDispatcher{
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (d *NotificationDispatcher) Notify(
	ctx context.Context,
	userID string,
	kind domain.NotificationKind,
	title, message, referenceID string,
) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        kind,
		Title:       title,
		Message:     message,
		ReferenceID: referenceID,
		CreatedAt:   d.now(),
	}
	if err := d.repo.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	if d.publisher != nil {
		if err := d.publisher.PublishNotification(ctx, *n); err != nil {
			slog.WarnContext(ctx, "notification_publish_failed",
				"notification_id", n.ID,
				"user_id", n.UserID,
				"kind", string(n.Kind),
				"error", err,
			)
		}
	}
	return n, nil
}

func (d *NotificationDispatcher) List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	items, err := d.repo.ListNotifications(ctx, userID, unreadOnly, defaultNotificationLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}
