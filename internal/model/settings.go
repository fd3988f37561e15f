package model

import (
	"regexp"
	"time"

	"github.com/jwalitptl/inbox-api/pkg/reltime"
)

const (
	FrequencyImmediate = "immediate"
	FrequencyHourly    = "hourly"
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
)

// Frequencies lists the accepted delivery frequencies.
var Frequencies = []string{FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyWeekly}

var clockTime = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// IsClockTime reports whether s is a 24-hour "HH:MM" time.
func IsClockTime(s string) bool {
	return clockTime.MatchString(s)
}

func IsFrequency(s string) bool {
	for _, f := range Frequencies {
		if f == s {
			return true
		}
	}
	return false
}

// QuietHours is the daily window in which delivery is suppressed.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// NotificationTypes holds the per-type delivery toggles.
type NotificationTypes struct {
	DocumentShared      bool `json:"document_shared"`
	ReviewReminder      bool `json:"review_reminder"`
	AchievementUnlocked bool `json:"achievement_unlocked"`
	SystemUpdate        bool `json:"system_update"`
	Promotional         bool `json:"promotional"`
}

// Settings is a user's notification preferences.
type Settings struct {
	UserID     int64             `json:"-"`
	Email      bool              `json:"email"`
	Push       bool              `json:"push"`
	Desktop    bool              `json:"desktop"`
	Frequency  string            `json:"frequency"`
	QuietHours QuietHours        `json:"quietHours"`
	Types      NotificationTypes `json:"types"`
	UpdatedAt  *time.Time        `json:"-"`
}

// DefaultSettings returns the preferences of a user who never saved any.
func DefaultSettings(userID int64) *Settings {
	return &Settings{
		UserID:    userID,
		Email:     true,
		Push:      true,
		Desktop:   true,
		Frequency: FrequencyImmediate,
		QuietHours: QuietHours{
			Enabled: true,
			Start:   "22:00",
			End:     "08:00",
		},
		Types: NotificationTypes{
			DocumentShared:      true,
			ReviewReminder:      true,
			AchievementUnlocked: true,
			SystemUpdate:        true,
			Promotional:         false,
		},
	}
}

// SetChannel flips the boolean that mirrors a subscription channel.
func (s *Settings) SetChannel(channel string, enabled bool) {
	switch channel {
	case ChannelEmail:
		s.Email = enabled
	case ChannelPush:
		s.Push = enabled
	case ChannelDesktop:
		s.Desktop = enabled
	}
}

// QuietHoursPatch is a partial QuietHours; nil fields are left alone.
type QuietHoursPatch struct {
	Enabled *bool   `json:"enabled"`
	Start   *string `json:"start" binding:"omitempty,hhmm"`
	End     *string `json:"end" binding:"omitempty,hhmm"`
}

// NotificationTypesPatch is a partial NotificationTypes.
type NotificationTypesPatch struct {
	DocumentShared      *bool `json:"document_shared"`
	ReviewReminder      *bool `json:"review_reminder"`
	AchievementUnlocked *bool `json:"achievement_unlocked"`
	SystemUpdate        *bool `json:"system_update"`
	Promotional         *bool `json:"promotional"`
}

// SettingsPatch is a partial settings update.
type SettingsPatch struct {
	Email      *bool                   `json:"email"`
	Push       *bool                   `json:"push"`
	Desktop    *bool                   `json:"desktop"`
	Frequency  *string                 `json:"frequency" binding:"omitempty,oneof=immediate hourly daily weekly"`
	QuietHours *QuietHoursPatch        `json:"quietHours"`
	Types      *NotificationTypesPatch `json:"types"`
}

// Apply merges p into s field by field. Nested objects are merged, not replaced.
func (p *SettingsPatch) Apply(s *Settings) {
	setBool(&s.Email, p.Email)
	setBool(&s.Push, p.Push)
	setBool(&s.Desktop, p.Desktop)
	if p.Frequency != nil {
		s.Frequency = *p.Frequency
	}

	if q := p.QuietHours; q != nil {
		setBool(&s.QuietHours.Enabled, q.Enabled)
		if q.Start != nil {
			s.QuietHours.Start = *q.Start
		}
		if q.End != nil {
			s.QuietHours.End = *q.End
		}
	}

	if t := p.Types; t != nil {
		setBool(&s.Types.DocumentShared, t.DocumentShared)
		setBool(&s.Types.ReviewReminder, t.ReviewReminder)
		setBool(&s.Types.AchievementUnlocked, t.AchievementUnlocked)
		setBool(&s.Types.SystemUpdate, t.SystemUpdate)
		setBool(&s.Types.Promotional, t.Promotional)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// SettingsView is the canonical client representation of Settings.
type SettingsView struct {
	Email      bool              `json:"email"`
	Push       bool              `json:"push"`
	Desktop    bool              `json:"desktop"`
	Frequency  string            `json:"frequency"`
	QuietHours QuietHours        `json:"quietHours"`
	Types      NotificationTypes `json:"types"`
	UpdatedAt  *string           `json:"updatedAt"`
}

func (s *Settings) View() SettingsView {
	return SettingsView{
		Email:      s.Email,
		Push:       s.Push,
		Desktop:    s.Desktop,
		Frequency:  s.Frequency,
		QuietHours: s.QuietHours,
		Types:      s.Types,
		UpdatedAt:  reltime.TimestampPtr(s.UpdatedAt),
	}
}
