package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/internal/repository"
)

// channelColumns maps a subscription channel to its settings column.
var channelColumns = map[string]string{
	model.ChannelEmail:   "email_notifications",
	model.ChannelPush:    "push_notifications",
	model.ChannelDesktop: "desktop_notifications",
}

type settingsRow struct {
	UserID            int64     `db:"user_id"`
	Email             bool      `db:"email_notifications"`
	Push              bool      `db:"push_notifications"`
	Desktop           bool      `db:"desktop_notifications"`
	Frequency         string    `db:"notification_frequency"`
	QuietHoursEnabled bool      `db:"quiet_hours_enabled"`
	QuietHoursStart   string    `db:"quiet_hours_start"`
	QuietHoursEnd     string    `db:"quiet_hours_end"`
	Types             string    `db:"notification_types"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func newSettingsRow(s *model.Settings, at time.Time) (*settingsRow, error) {
	types, err := json.Marshal(s.Types)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification types: %w", err)
	}
	return &settingsRow{
		UserID:            s.UserID,
		Email:             s.Email,
		Push:              s.Push,
		Desktop:           s.Desktop,
		Frequency:         s.Frequency,
		QuietHoursEnabled: s.QuietHours.Enabled,
		QuietHoursStart:   s.QuietHours.Start,
		QuietHoursEnd:     s.QuietHours.End,
		Types:             string(types),
		CreatedAt:         at,
		UpdatedAt:         at,
	}, nil
}

// settings decodes the row over the defaults so keys missing from the stored
// type map keep their default value.
func (row *settingsRow) settings() *model.Settings {
	s := model.DefaultSettings(row.UserID)
	s.Email = row.Email
	s.Push = row.Push
	s.Desktop = row.Desktop
	s.Frequency = row.Frequency
	s.QuietHours = model.QuietHours{
		Enabled: row.QuietHoursEnabled,
		Start:   row.QuietHoursStart,
		End:     row.QuietHoursEnd,
	}
	if row.Types != "" {
		if err := json.Unmarshal([]byte(row.Types), &s.Types); err != nil {
			log.Warn().Err(err).Int64("user_id", row.UserID).Msg("stored notification types unreadable, using defaults")
			s.Types = model.DefaultSettings(row.UserID).Types
		}
	}
	updated := row.UpdatedAt.UTC()
	s.UpdatedAt = &updated
	return s
}

const upsertSettingsQuery = `
	INSERT INTO notification_settings (
		user_id, email_notifications, push_notifications, desktop_notifications,
		notification_frequency, quiet_hours_enabled, quiet_hours_start, quiet_hours_end,
		notification_types, created_at, updated_at
	) VALUES (
		:user_id, :email_notifications, :push_notifications, :desktop_notifications,
		:notification_frequency, :quiet_hours_enabled, :quiet_hours_start, :quiet_hours_end,
		:notification_types, :created_at, :updated_at
	)
	ON CONFLICT (user_id) DO UPDATE SET %s
`

type settingsRepository struct {
	BaseRepository
}

func NewSettingsRepository(base BaseRepository) repository.SettingsRepository {
	return &settingsRepository{base}
}

func (r *settingsRepository) Get(ctx context.Context, userID int64) (*model.Settings, error) {
	query := r.Rebind(`SELECT * FROM notification_settings WHERE user_id = ?`)

	var row settingsRow
	if err := r.GetDB().GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification settings: %w", err)
	}
	return row.settings(), nil
}

func (r *settingsRepository) Upsert(ctx context.Context, s *model.Settings) error {
	at := time.Now()
	if s.UpdatedAt != nil {
		at = *s.UpdatedAt
	}
	row, err := newSettingsRow(s, dbTime(at))
	if err != nil {
		return err
	}

	query := fmt.Sprintf(upsertSettingsQuery, `
		email_notifications = excluded.email_notifications,
		push_notifications = excluded.push_notifications,
		desktop_notifications = excluded.desktop_notifications,
		notification_frequency = excluded.notification_frequency,
		quiet_hours_enabled = excluded.quiet_hours_enabled,
		quiet_hours_start = excluded.quiet_hours_start,
		quiet_hours_end = excluded.quiet_hours_end,
		notification_types = excluded.notification_types,
		updated_at = excluded.updated_at`)

	if _, err := r.GetDB().NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save notification settings: %w", err)
	}
	return nil
}

// setChannelFlag updates only the column mirroring channel. A missing
// settings row is created from defaults first.
func setChannelFlag(ctx context.Context, tx *sqlx.Tx, userID int64, channel string, enabled bool, at time.Time) error {
	column, ok := channelColumns[channel]
	if !ok {
		return fmt.Errorf("unknown channel %q", channel)
	}

	s := model.DefaultSettings(userID)
	s.SetChannel(channel, enabled)
	row, err := newSettingsRow(s, dbTime(at))
	if err != nil {
		return err
	}

	query := fmt.Sprintf(upsertSettingsQuery,
		fmt.Sprintf("%s = excluded.%s, updated_at = excluded.updated_at", column, column))
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to update %s setting: %w", channel, err)
	}
	return nil
}
