package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/internal/repository"
	apperrors "github.com/jwalitptl/inbox-api/pkg/errors"
	"github.com/jwalitptl/inbox-api/pkg/reltime"
)

// Window is the trailing period covered by the per-day counts.
const Window = 7 * 24 * time.Hour

const dayLayout = "2006-01-02"

type Service struct {
	repo repository.NotificationRepository
	now  func() time.Time
}

func NewService(repo repository.NotificationRepository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// Compute aggregates the user's inbox at query time.
func (s *Service) Compute(ctx context.Context, userID int64) (*model.NotificationStats, error) {
	now := s.now().UTC()
	snap, err := s.repo.Stats(ctx, userID, now.Add(-Window))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("failed to compute notification stats")
		return nil, apperrors.Internal(fmt.Errorf("stats: %w", err))
	}
	return Aggregate(snap, now), nil
}

// Aggregate turns a storage snapshot into the stats block.
func Aggregate(snap *model.StatsSnapshot, now time.Time) *model.NotificationStats {
	out := &model.NotificationStats{
		TotalNotifications:  snap.Total,
		UnreadCount:         snap.Unread,
		ReadCount:           snap.Total - snap.Unread,
		ByType:              make(map[string]int64, len(snap.ByType)),
		ByDay:               map[string]int64{},
		FirstNotificationAt: reltime.TimestampPtr(snap.FirstAt),
		LastNotificationAt:  reltime.TimestampPtr(snap.LastAt),
	}

	if snap.Total > 0 {
		out.ReadRate = math.Round(float64(out.ReadCount)/float64(snap.Total)*1000) / 10
	}
	out.FormattedReadRate = fmt.Sprintf("%.1f%%", out.ReadRate)

	for _, tc := range snap.ByType {
		out.ByType[tc.Type] = tc.Count
	}

	since := now.Add(-Window)
	for _, at := range snap.Recent {
		if at.Before(since) || at.After(now) {
			continue
		}
		out.ByDay[at.UTC().Format(dayLayout)]++
	}

	if snap.Total > 0 && snap.FirstAt != nil {
		days := int64(now.Sub(*snap.FirstAt) / (24 * time.Hour))
		if days < 1 {
			days = 1
		}
		out.AverageDailyNotifications = float64(snap.Total) / float64(days)
	}
	return out
}
