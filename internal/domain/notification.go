package domain

import (
	"encoding/json"
	"time"
)

// NotificationType identifies the outcome a notification reports, e.g. BOOK_COMPLETED.
type NotificationType string

// NotificationTypeFor derives the notification type of a terminal transition.
func NotificationTypeFor(d Domain, status JobStatus) NotificationType {
	return NotificationType(string(d) + "_" + string(status))
}

// Notification is the durable record of a terminal job transition addressed to
// the job owner. Delivery over email or push happens outside this service.
type Notification struct {
	ID               string
	UserID           string
	JobID            string
	Type             NotificationType
	Title            string
	Message          string
	Metadata         json.RawMessage
	Read             bool
	DedupeKey        string
	DispatchedAt     *time.Time
	DispatchAttempts int
	CreatedAt        time.Time
}
