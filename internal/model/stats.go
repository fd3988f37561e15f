package model

import (
	"time"
)

// TypeCount is one row of a per-type aggregate.
type TypeCount struct {
	Type  string `db:"type"`
	Count int64  `db:"count"`
}

// StatsSnapshot is the raw aggregate read from storage.
type StatsSnapshot struct {
	Total   int64
	Unread  int64
	ByType  []TypeCount
	Recent  []time.Time
	FirstAt *time.Time
	LastAt  *time.Time
}

// NotificationStats is the computed statistics block.
type NotificationStats struct {
	TotalNotifications        int64            `json:"totalNotifications"`
	UnreadCount               int64            `json:"unreadCount"`
	ReadCount                 int64            `json:"readCount"`
	ReadRate                  float64          `json:"readRate"`
	FormattedReadRate         string           `json:"formattedReadRate"`
	ByType                    map[string]int64 `json:"byType"`
	ByDay                     map[string]int64 `json:"byDay"`
	AverageDailyNotifications float64          `json:"averageDailyNotifications"`
	FirstNotificationAt       *string          `json:"firstNotificationAt"`
	LastNotificationAt        *string          `json:"lastNotificationAt"`
}
