package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/inbox-api/internal/repository/sqlstore"
	"github.com/jwalitptl/inbox-api/internal/service/settings"
	"github.com/jwalitptl/inbox-api/internal/testutil"
	apperrors "github.com/jwalitptl/inbox-api/pkg/errors"
)

type fixture struct {
	subs     *Service
	settings *settings.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	base := sqlstore.NewBaseRepository(db)
	clock := testutil.NewClock(time.Date(2024, 2, 29, 18, 0, 0, 0, time.UTC))
	return &fixture{
		subs:     NewService(sqlstore.NewSubscriptionRepository(base), clock.Now),
		settings: settings.NewService(sqlstore.NewSettingsRepository(base), clock.Now),
	}
}

func TestService_SubscribeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.subs.Subscribe(ctx, 1, "sms", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.subs.Subscribe(ctx, 1, "", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.subs.Subscribe(ctx, 1, "push", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.subs.Subscribe(ctx, 1, "push", testutil.Str("   "))
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestService_SubscribeKeepsSettingsInStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.subs.Unsubscribe(ctx, 1, "EMAIL")
	require.NoError(t, err)
	assert.Equal(t, "email", result.Channel)
	assert.Contains(t, result.Message, "already unsubscribed")

	s, err := f.settings.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s.Email)
	assert.Nil(t, s.UpdatedAt)

	result, err = f.subs.Subscribe(ctx, 1, " Push ", testutil.Str("device-abc"))
	require.NoError(t, err)
	assert.Equal(t, "push", result.Channel)
	assert.True(t, result.Active)
	assert.Equal(t, "2024-02-29T18:00:00Z", result.Timestamp)

	result, err = f.subs.Unsubscribe(ctx, 1, "push")
	require.NoError(t, err)
	assert.False(t, result.Active)
	assert.NotContains(t, result.Message, "already")

	s, err = f.settings.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, s.Push)
	assert.True(t, s.Email)
	assert.True(t, s.Desktop)

	_, err = f.subs.Subscribe(ctx, 1, "push", testutil.Str("device-xyz"))
	require.NoError(t, err)
	s, err = f.settings.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s.Push)

	subs, err := f.subs.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "push", subs[0].Channel)
	assert.True(t, subs[0].IsActive)
	require.NotNil(t, subs[0].DeviceToken)
	assert.Equal(t, "device-xyz", *subs[0].DeviceToken)
}

func TestService_ListEmpty(t *testing.T) {
	f := newFixture(t)

	subs, err := f.subs.List(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
