// Package reltime renders elapsed time as coarse human-readable buckets.
package reltime

import (
	"fmt"
	"time"
)

// Unknown is returned when there is no event time.
const Unknown = "unknown"

// Layout is the wire format for every timestamp the API emits.
const Layout = "2006-01-02T15:04:05Z"

// Format describes how long before now the event happened. It never reads
// the wall clock.
func Format(now time.Time, event *time.Time) string {
	if event == nil {
		return Unknown
	}

	elapsed := now.Sub(*event)
	seconds := int64(elapsed / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case seconds < 60:
		return "just now"
	case minutes < 60:
		return fmt.Sprintf("%d minutes ago", minutes)
	case hours < 24:
		return fmt.Sprintf("%d hours ago", hours)
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days/7 < 4:
		return fmt.Sprintf("%d weeks ago", days/7)
	case days/30 < 12:
		return fmt.Sprintf("%d months ago", days/30)
	default:
		return fmt.Sprintf("%d years ago", days/365)
	}
}

// Timestamp formats t in UTC using Layout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(Layout)
}

// TimestampPtr is Timestamp for optional values.
func TimestampPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := Timestamp(*t)
	return &s
}
