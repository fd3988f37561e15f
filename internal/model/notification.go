package model

import (
	"time"

	"github.com/jwalitptl/inbox-api/pkg/notifid"
	"github.com/jwalitptl/inbox-api/pkg/reltime"
)

// Notification is a single inbox entry owned by one user.
type Notification struct {
	ID         int64      `db:"notification_id"`
	UserID     int64      `db:"user_id"`
	Type       string     `db:"type"`
	Title      string     `db:"title"`
	Message    string     `db:"message"`
	IconURL    *string    `db:"icon_url"`
	ImageURL   *string    `db:"image_url"`
	ActionURL  *string    `db:"action_url"`
	TargetType *string    `db:"target_type"`
	TargetID   *string    `db:"target_id"`
	Metadata   Metadata   `db:"metadata"`
	IsRead     bool       `db:"is_read"`
	ReadAt     *time.Time `db:"read_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

// NotificationView is the client representation of a Notification.
type NotificationView struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Message      string   `json:"message"`
	Icon         *string  `json:"icon"`
	Image        *string  `json:"image"`
	Read         bool     `json:"read"`
	ReadAt       *string  `json:"readAt"`
	CreatedAt    string   `json:"createdAt"`
	RelativeTime string   `json:"relativeTime"`
	ActionURL    *string  `json:"actionUrl"`
	TargetType   *string  `json:"targetType"`
	TargetID     *string  `json:"targetId"`
	Metadata     Metadata `json:"metadata"`
}

// View renders n relative to now.
func (n *Notification) View(now time.Time) NotificationView {
	created := n.CreatedAt
	return NotificationView{
		ID:           notifid.Encode(n.ID),
		Type:         n.Type,
		Title:        n.Title,
		Message:      n.Message,
		Icon:         n.IconURL,
		Image:        n.ImageURL,
		Read:         n.IsRead,
		ReadAt:       reltime.TimestampPtr(n.ReadAt),
		CreatedAt:    reltime.Timestamp(n.CreatedAt),
		RelativeTime: reltime.Format(now, &created),
		ActionURL:    n.ActionURL,
		TargetType:   n.TargetType,
		TargetID:     n.TargetID,
		Metadata:     n.Metadata,
	}
}

// Views renders a slice of notifications.
func Views(items []*Notification, now time.Time) []NotificationView {
	out := make([]NotificationView, 0, len(items))
	for _, n := range items {
		out = append(out, n.View(now))
	}
	return out
}

// NewNotification carries the caller-supplied fields of a create request.
type NewNotification struct {
	Type       string
	Title      string
	Message    string
	IconURL    *string
	ImageURL   *string
	ActionURL  *string
	TargetType *string
	TargetID   *string
	Metadata   Metadata
}

// NotificationFilter narrows an inbox listing.
type NotificationFilter struct {
	Type       string
	UnreadOnly bool
	SortBy     string
	SortOrder  string
	Pagination
}

// HistoryFilter narrows a history listing. Dates are calendar days, both inclusive.
type HistoryFilter struct {
	Type      string
	StartDate *time.Time
	EndDate   *time.Time
	Pagination
}

// BatchFailure reports one id that could not be processed in a batch.
type BatchFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchReadResult is the outcome of a batch mark-read.
type BatchReadResult struct {
	SuccessCount int            `json:"successCount"`
	FailedCount  int            `json:"failedCount"`
	Failures     []BatchFailure `json:"failures"`
}

// ReadResult is the outcome of a single mark-read.
type ReadResult struct {
	NotificationID string  `json:"notificationId"`
	ReadAt         *string `json:"readAt"`
	AlreadyRead    bool    `json:"alreadyRead"`
}

// NotificationEvent is published when a notification changes state.
type NotificationEvent struct {
	Type           string    `json:"type"`
	UserID         int64     `json:"user_id"`
	NotificationID string    `json:"notification_id,omitempty"`
	Count          int64     `json:"count,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const (
	EventNotificationCreated = "notification.created"
	EventNotificationRead    = "notification.read"
	EventNotificationDeleted = "notification.deleted"
	EventInboxCleared        = "notification.cleared"
)
