package model

import (
	"time"
)

const (
	ChannelPush    = "push"
	ChannelEmail   = "email"
	ChannelDesktop = "desktop"
)

// Channels lists the supported delivery channels.
var Channels = []string{ChannelPush, ChannelEmail, ChannelDesktop}

// IsChannel reports whether c is a supported channel name.
func IsChannel(c string) bool {
	for _, ch := range Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// Subscription is a user's opt-in to one delivery channel.
type Subscription struct {
	UserID      int64     `db:"user_id" json:"-"`
	Channel     string    `db:"channel" json:"channel"`
	DeviceToken *string   `db:"device_token" json:"deviceToken,omitempty"`
	IsActive    bool      `db:"is_active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// SubscriptionResult acknowledges a subscribe or unsubscribe.
type SubscriptionResult struct {
	Channel   string `json:"channel"`
	Active    bool   `json:"active"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"-"`
}
