package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/internal/repository"
	apperrors "github.com/jwalitptl/inbox-api/pkg/errors"
	"github.com/jwalitptl/inbox-api/pkg/messaging"
	"github.com/jwalitptl/inbox-api/pkg/metrics"
	"github.com/jwalitptl/inbox-api/pkg/notifid"
	"github.com/jwalitptl/inbox-api/pkg/reltime"
)

const (
	DefaultPageSize        = 20
	DefaultHistoryPageSize = 50
	MaxPageSize            = 100

	// ReasonMalformedID is reported for batch ids that fail to decode.
	ReasonMalformedID = "invalid notification id format"
)

type NotificationServicer interface {
	Create(ctx context.Context, userID int64, in *model.NewNotification) (*model.Notification, error)
	Get(ctx context.Context, userID int64, id string) (*model.Notification, error)
	List(ctx context.Context, userID int64, filter model.NotificationFilter) (*model.Page[*model.Notification], error)
	History(ctx context.Context, userID int64, filter model.HistoryFilter) (*model.Page[*model.Notification], error)
	MarkRead(ctx context.Context, userID int64, id string) (*model.ReadResult, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	MarkManyRead(ctx context.Context, userID int64, ids []string) (*model.BatchReadResult, error)
	Delete(ctx context.Context, userID int64, id string) error
	DeleteAll(ctx context.Context, userID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	SendTest(ctx context.Context, userID int64, in *model.NewNotification) (*model.Notification, error)
	Now() time.Time
}

type Service struct {
	repo      repository.NotificationRepository
	publisher messaging.Publisher
	channel   string
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

// WithPublisher sends lifecycle events to channel.
func WithPublisher(p messaging.Publisher, channel string) Option {
	return func(s *Service) {
		s.publisher = p
		s.channel = channel
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.NotificationRepository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: messaging.NopBroker{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock, truncated to the precision that is stored.
func (s *Service) Now() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Service) Create(ctx context.Context, userID int64, in *model.NewNotification) (*model.Notification, error) {
	in.Type = strings.TrimSpace(in.Type)
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)

	switch {
	case in.Type == "":
		return nil, apperrors.Validation("notification type is required")
	case in.Title == "":
		return nil, apperrors.Validation("notification title is required")
	case in.Message == "":
		return nil, apperrors.Validation("notification message is required")
	}

	return s.insert(ctx, userID, in)
}

func (s *Service) insert(ctx context.Context, userID int64, in *model.NewNotification) (*model.Notification, error) {
	n, err := s.repo.Create(ctx, userID, in, s.Now())
	if err != nil {
		return nil, s.storageError(ctx, "create", userID, err)
	}

	s.metrics.Created(n.Type)
	s.publish(ctx, &model.NotificationEvent{
		Type:           model.EventNotificationCreated,
		UserID:         userID,
		NotificationID: notifid.Encode(n.ID),
		OccurredAt:     n.CreatedAt,
	})
	return n, nil
}

func (s *Service) Get(ctx context.Context, userID int64, id string) (*model.Notification, error) {
	key, err := decodeID(id)
	if err != nil {
		return nil, err
	}

	n, err := s.repo.GetByID(ctx, userID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("notification", nil)
		}
		return nil, s.storageError(ctx, "get", userID, err)
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, userID int64, filter model.NotificationFilter) (*model.Page[*model.Notification], error) {
	filter.Pagination = filter.Pagination.Normalize(DefaultPageSize, MaxPageSize)
	filter.Type = strings.TrimSpace(filter.Type)

	items, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, s.storageError(ctx, "list", userID, err)
	}
	return &model.Page[*model.Notification]{Items: items, Total: total, Pagination: filter.Pagination}, nil
}

func (s *Service) History(ctx context.Context, userID int64, filter model.HistoryFilter) (*model.Page[*model.Notification], error) {
	filter.Pagination = filter.Pagination.Normalize(DefaultHistoryPageSize, MaxPageSize)
	filter.Type = strings.TrimSpace(filter.Type)
	if strings.EqualFold(filter.Type, "all") {
		filter.Type = ""
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, apperrors.Validation("endDate must not be before startDate")
	}

	items, total, err := s.repo.ListHistory(ctx, userID, filter)
	if err != nil {
		return nil, s.storageError(ctx, "history", userID, err)
	}
	return &model.Page[*model.Notification]{Items: items, Total: total, Pagination: filter.Pagination}, nil
}

// MarkRead is idempotent. A notification that was already read is reported
// with AlreadyRead set and no timestamp; its stored read time is unchanged.
func (s *Service) MarkRead(ctx context.Context, userID int64, id string) (*model.ReadResult, error) {
	key, err := decodeID(id)
	if err != nil {
		return nil, err
	}

	at := s.Now()
	flipped, err := s.repo.MarkRead(ctx, userID, key, at)
	if err != nil {
		return nil, s.storageError(ctx, "mark_read", userID, err)
	}

	result := &model.ReadResult{NotificationID: notifid.Encode(key)}
	if flipped {
		result.ReadAt = reltime.TimestampPtr(&at)
		s.metrics.Read("single", 1)
		s.publish(ctx, &model.NotificationEvent{
			Type:           model.EventNotificationRead,
			UserID:         userID,
			NotificationID: result.NotificationID,
			Count:          1,
			OccurredAt:     at,
		})
		return result, nil
	}

	exists, err := s.repo.Exists(ctx, userID, key)
	if err != nil {
		return nil, s.storageError(ctx, "mark_read", userID, err)
	}
	if !exists {
		return nil, apperrors.NotFound("notification", nil)
	}
	result.AlreadyRead = true
	return result, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	at := s.Now()
	count, err := s.repo.MarkAllRead(ctx, userID, at)
	if err != nil {
		return 0, s.storageError(ctx, "mark_all_read", userID, err)
	}

	s.metrics.Read("all", count)
	if count > 0 {
		s.publish(ctx, &model.NotificationEvent{
			Type:       model.EventNotificationRead,
			UserID:     userID,
			Count:      count,
			OccurredAt: at,
		})
	}
	return count, nil
}

// MarkManyRead decodes each id on its own. Ids that fail to decode are
// reported as failures; the rest are flipped with a single update.
func (s *Service) MarkManyRead(ctx context.Context, userID int64, ids []string) (*model.BatchReadResult, error) {
	if len(ids) == 0 {
		return nil, apperrors.Validation("notificationIds must be a non-empty list")
	}

	result := &model.BatchReadResult{Failures: []model.BatchFailure{}}
	keys := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		key, err := notifid.Decode(id)
		if err != nil {
			result.Failures = append(result.Failures, model.BatchFailure{ID: id, Reason: ReasonMalformedID})
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	result.FailedCount = len(result.Failures)

	if len(keys) == 0 {
		return result, nil
	}

	at := s.Now()
	count, err := s.repo.MarkManyRead(ctx, userID, keys, at)
	if err != nil {
		return nil, s.storageError(ctx, "mark_many_read", userID, err)
	}
	result.SuccessCount = int(count)

	s.metrics.Read("batch", count)
	if count > 0 {
		s.publish(ctx, &model.NotificationEvent{
			Type:       model.EventNotificationRead,
			UserID:     userID,
			Count:      count,
			OccurredAt: at,
		})
	}
	return result, nil
}

func (s *Service) Delete(ctx context.Context, userID int64, id string) error {
	key, err := decodeID(id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID, key); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("notification", nil)
		}
		return s.storageError(ctx, "delete", userID, err)
	}

	s.metrics.Deleted("single", 1)
	s.publish(ctx, &model.NotificationEvent{
		Type:           model.EventNotificationDeleted,
		UserID:         userID,
		NotificationID: notifid.Encode(key),
		Count:          1,
		OccurredAt:     s.Now(),
	})
	return nil
}

func (s *Service) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	count, err := s.repo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, s.storageError(ctx, "delete_all", userID, err)
	}

	s.metrics.Deleted("all", count)
	if count > 0 {
		s.publish(ctx, &model.NotificationEvent{
			Type:       model.EventInboxCleared,
			UserID:     userID,
			Count:      count,
			OccurredAt: s.Now(),
		})
	}
	return count, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, s.storageError(ctx, "unread_count", userID, err)
	}
	return count, nil
}

// SendTest creates a notification for the caller. Blank fields of in are
// filled with test defaults.
func (s *Service) SendTest(ctx context.Context, userID int64, in *model.NewNotification) (*model.Notification, error) {
	if in == nil {
		in = &model.NewNotification{}
	}
	now := reltime.Timestamp(s.Now())

	defaultString(&in.Type, "test")
	defaultString(&in.Title, "Test notification")
	defaultString(&in.Message, "This is a test notification sent at "+now)
	defaultPtr(&in.IconURL, "/icons/test.png")
	defaultPtr(&in.ActionURL, "/test")
	defaultPtr(&in.TargetType, "test")
	defaultPtr(&in.TargetID, "test_123")

	if len(in.Metadata) == 0 {
		meta, err := model.NewMetadata(testMetadata{Test: true, TestTime: now, Purpose: "testing notification system"})
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		in.Metadata = meta
	}

	return s.insert(ctx, userID, in)
}

type testMetadata struct {
	Test     bool   `json:"test"`
	TestTime string `json:"testTime"`
	Purpose  string `json:"purpose"`
}

func defaultString(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
		return
	}
	*dst = strings.TrimSpace(*dst)
}

func defaultPtr(dst **string, def string) {
	if *dst == nil || strings.TrimSpace(**dst) == "" {
		*dst = &def
	}
}

func decodeID(id string) (int64, error) {
	key, err := notifid.Decode(id)
	if err != nil {
		return 0, apperrors.MalformedID(id, err)
	}
	return key, nil
}

func (s *Service) storageError(ctx context.Context, op string, userID int64, err error) error {
	zerolog.Ctx(ctx).Error().
		Err(err).
		Str("operation", op).
		Int64("user_id", userID).
		Msg("notification storage failure")
	s.metrics.StorageError(op)
	return apperrors.Internal(fmt.Errorf("%s: %w", op, err))
}

// publish is best effort; a broker failure never fails the request.
func (s *Service) publish(ctx context.Context, event *model.NotificationEvent) {
	if s.publisher == nil || s.channel == "" {
		return
	}
	err := s.publisher.Publish(ctx, s.channel, event)
	s.metrics.Event(event.Type, err)
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("event", event.Type).
			Int64("user_id", event.UserID).
			Msg("failed to publish notification event")
	}
}
