package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/internal/repository"
)

const subscriptionColumns = `user_id, channel, device_token, is_active, created_at, updated_at`

type subscriptionRepository struct {
	BaseRepository
}

func NewSubscriptionRepository(base BaseRepository) repository.SubscriptionRepository {
	return &subscriptionRepository{base}
}

// Subscribe activates the channel and switches the matching settings flag on
// in one transaction. sub is refreshed from the stored row.
func (r *subscriptionRepository) Subscribe(ctx context.Context, sub *model.Subscription) error {
	at := dbTime(sub.UpdatedAt)

	upsert := r.Rebind(`
		INSERT INTO notification_subscriptions (
			user_id, channel, device_token, is_active, created_at, updated_at
		) VALUES (?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (user_id, channel) DO UPDATE SET
			device_token = excluded.device_token,
			is_active = TRUE,
			updated_at = excluded.updated_at
	`)
	selectQuery := r.Rebind(`SELECT ` + subscriptionColumns + ` FROM notification_subscriptions WHERE user_id = ? AND channel = ?`)

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, upsert, sub.UserID, sub.Channel, sub.DeviceToken, at, at); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := setChannelFlag(ctx, tx, sub.UserID, sub.Channel, true, at); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, sub, selectQuery, sub.UserID, sub.Channel); err != nil {
			return fmt.Errorf("failed to reload subscription: %w", err)
		}
		sub.CreatedAt = sub.CreatedAt.UTC()
		sub.UpdatedAt = sub.UpdatedAt.UTC()
		return nil
	})
}

// Unsubscribe reports false when there was no active subscription; nothing is
// written in that case.
func (r *subscriptionRepository) Unsubscribe(ctx context.Context, userID int64, channel string, at time.Time) (bool, error) {
	at = dbTime(at)
	query := r.Rebind(`
		UPDATE notification_subscriptions SET is_active = FALSE, updated_at = ?
		WHERE user_id = ? AND channel = ? AND is_active = TRUE
	`)

	var changed bool
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query, at, userID, channel)
		if err != nil {
			return fmt.Errorf("failed to deactivate subscription: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		changed = true
		return setChannelFlag(ctx, tx, userID, channel, false, at)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (r *subscriptionRepository) Get(ctx context.Context, userID int64, channel string) (*model.Subscription, error) {
	query := r.Rebind(`SELECT ` + subscriptionColumns + ` FROM notification_subscriptions WHERE user_id = ? AND channel = ?`)

	var sub model.Subscription
	if err := r.GetDB().GetContext(ctx, &sub, query, userID, channel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

func (r *subscriptionRepository) List(ctx context.Context, userID int64) ([]*model.Subscription, error) {
	query := r.Rebind(`SELECT ` + subscriptionColumns + ` FROM notification_subscriptions WHERE user_id = ? ORDER BY channel`)

	subs := []*model.Subscription{}
	if err := r.GetDB().SelectContext(ctx, &subs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	for _, s := range subs {
		s.CreatedAt = s.CreatedAt.UTC()
		s.UpdatedAt = s.UpdatedAt.UTC()
	}
	return subs, nil
}
