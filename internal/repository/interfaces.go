package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/inbox-api/internal/model"
)

// ErrNotFound is returned when no row matches. Rows owned by another user
// are reported the same way.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// NotificationRepository handles inbox entries. Every method is scoped to userID.
	NotificationRepository interface {
		Create(ctx context.Context, userID int64, n *model.NewNotification, createdAt time.Time) (*model.Notification, error)
		GetByID(ctx context.Context, userID, id int64) (*model.Notification, error)
		List(ctx context.Context, userID int64, filter model.NotificationFilter) ([]*model.Notification, int64, error)
		ListHistory(ctx context.Context, userID int64, filter model.HistoryFilter) ([]*model.Notification, int64, error)
		MarkRead(ctx context.Context, userID, id int64, at time.Time) (bool, error)
		Exists(ctx context.Context, userID, id int64) (bool, error)
		MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error)
		MarkManyRead(ctx context.Context, userID int64, ids []int64, at time.Time) (int64, error)
		Delete(ctx context.Context, userID, id int64) error
		DeleteAll(ctx context.Context, userID int64) (int64, error)
		CountUnread(ctx context.Context, userID int64) (int64, error)
		Stats(ctx context.Context, userID int64, since time.Time) (*model.StatsSnapshot, error)
	}

	// SettingsRepository persists per-user preferences.
	SettingsRepository interface {
		Get(ctx context.Context, userID int64) (*model.Settings, error)
		Upsert(ctx context.Context, settings *model.Settings) error
	}

	// SubscriptionRepository persists channel subscriptions and keeps the
	// matching settings flag in step within the same transaction.
	SubscriptionRepository interface {
		Subscribe(ctx context.Context, sub *model.Subscription) error
		Unsubscribe(ctx context.Context, userID int64, channel string, at time.Time) (bool, error)
		Get(ctx context.Context, userID int64, channel string) (*model.Subscription, error)
		List(ctx context.Context, userID int64) ([]*model.Subscription, error)
	}

	// SessionRepository looks up bearer tokens issued by the account service.
	SessionRepository interface {
		GetUserID(ctx context.Context, token string, now time.Time) (int64, error)
	}
)
