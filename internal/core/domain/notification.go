package domain

import "time"

type NotificationKind string

const (
	NotificationSearchCompleted NotificationKind = "search_completed"
	NotificationSearchFailed    NotificationKind = "search_failed"
	NotificationMonitoringAlert NotificationKind = "monitoring_alert"
)

type Notification struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ReferenceID string           `json:"reference_id,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
}
