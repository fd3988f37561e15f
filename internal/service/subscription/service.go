package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/internal/repository"
	apperrors "github.com/jwalitptl/inbox-api/pkg/errors"
	"github.com/jwalitptl/inbox-api/pkg/reltime"
)

type Service struct {
	repo repository.SubscriptionRepository
	now  func() time.Time
}

func NewService(repo repository.SubscriptionRepository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// Subscribe activates channel for the user and turns the matching settings
// flag on. Push subscriptions need a device token.
func (s *Service) Subscribe(ctx context.Context, userID int64, channel string, deviceToken *string) (*model.SubscriptionResult, error) {
	channel, err := normalizeChannel(channel)
	if err != nil {
		return nil, err
	}

	var token *string
	if deviceToken != nil {
		if t := strings.TrimSpace(*deviceToken); t != "" {
			token = &t
		}
	}
	if channel == model.ChannelPush && token == nil {
		return nil, apperrors.Validation("device token is required for push notifications")
	}

	now := s.now().UTC().Truncate(time.Second)
	sub := &model.Subscription{
		UserID:      userID,
		Channel:     channel,
		DeviceToken: token,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Subscribe(ctx, sub); err != nil {
		return nil, s.storageError(ctx, "subscribe", userID, channel, err)
	}

	return &model.SubscriptionResult{
		Channel:   channel,
		Active:    true,
		Timestamp: reltime.Timestamp(now),
		Message:   fmt.Sprintf("subscribed to %s notifications", channel),
	}, nil
}

// Unsubscribe deactivates channel. Without an active subscription it
// succeeds with an "already unsubscribed" message and changes nothing.
func (s *Service) Unsubscribe(ctx context.Context, userID int64, channel string) (*model.SubscriptionResult, error) {
	channel, err := normalizeChannel(channel)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	changed, err := s.repo.Unsubscribe(ctx, userID, channel, now)
	if err != nil {
		return nil, s.storageError(ctx, "unsubscribe", userID, channel, err)
	}

	result := &model.SubscriptionResult{
		Channel:   channel,
		Active:    false,
		Timestamp: reltime.Timestamp(now),
		Message:   fmt.Sprintf("unsubscribed from %s notifications", channel),
	}
	if !changed {
		result.Message = fmt.Sprintf("already unsubscribed from %s notifications", channel)
	}
	return result, nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]*model.Subscription, error) {
	subs, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, s.storageError(ctx, "list_subscriptions", userID, "", err)
	}
	return subs, nil
}

func normalizeChannel(channel string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(channel))
	if c == "" {
		return "", apperrors.Validation("channel is required")
	}
	if !model.IsChannel(c) {
		return "", apperrors.Validation(fmt.Sprintf("unsupported channel %q, must be one of %s", channel, strings.Join(model.Channels, ", ")))
	}
	return c, nil
}

func (s *Service) storageError(ctx context.Context, op string, userID int64, channel string, err error) error {
	zerolog.Ctx(ctx).Error().
		Err(err).
		Str("operation", op).
		Str("channel", channel).
		Int64("user_id", userID).
		Msg("subscription storage failure")
	return apperrors.Internal(fmt.Errorf("%s: %w", op, err))
}
