package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/inbox-api/internal/model"
	"github.com/jwalitptl/inbox-api/internal/repository"
	apperrors "github.com/jwalitptl/inbox-api/pkg/errors"
)

type Service struct {
	repo repository.SettingsRepository
	now  func() time.Time
}

func NewService(repo repository.SettingsRepository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// Get returns the stored settings, or the defaults when the user never saved
// any. Defaults are not persisted.
func (s *Service) Get(ctx context.Context, userID int64) (*model.Settings, error) {
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.DefaultSettings(userID), nil
		}
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("failed to load notification settings")
		return nil, apperrors.Internal(fmt.Errorf("get settings: %w", err))
	}
	return stored, nil
}

// Update merges patch over the current settings and saves the result.
func (s *Service) Update(ctx context.Context, userID int64, patch *model.SettingsPatch) (*model.Settings, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	patch.Apply(current)
	updated := s.now().UTC().Truncate(time.Second)
	current.UpdatedAt = &updated

	if err := s.repo.Upsert(ctx, current); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("failed to save notification settings")
		return nil, apperrors.Internal(fmt.Errorf("update settings: %w", err))
	}
	return current, nil
}

func validatePatch(p *model.SettingsPatch) error {
	if p == nil {
		return apperrors.Validation("settings body is required")
	}
	if p.Frequency != nil && !model.IsFrequency(*p.Frequency) {
		return apperrors.Validation(fmt.Sprintf("frequency must be one of %v", model.Frequencies))
	}
	if q := p.QuietHours; q != nil {
		if q.Start != nil && !model.IsClockTime(*q.Start) {
			return apperrors.Validation("quietHours.start must be HH:MM")
		}
		if q.End != nil && !model.IsClockTime(*q.End) {
			return apperrors.Validation("quietHours.end must be HH:MM")
		}
	}
	return nil
}
