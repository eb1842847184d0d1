package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO notifications (id, user_id, kind, title, message, reference_id, read, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, n.ID, n.UserID, string(n.Kind), n.Title, n.Message, n.ReferenceID, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `
SELECT id, user_id, kind, title, message, reference_id, read, created_at
FROM notifications
WHERE user_id = $1
`
	if unreadOnly {
		query += "AND read = FALSE\n"
	}
	query += "ORDER BY created_at DESC\nLIMIT $2"

	rows, err := r.db.QueryContext(ctx, query, userID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n    domain.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Message, &n.ReferenceID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = domain.NotificationKind(kind)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
