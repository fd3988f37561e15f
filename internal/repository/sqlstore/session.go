package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/inbox-api/internal/repository"
)

type sessionRepository struct {
	BaseRepository
}

func NewSessionRepository(base BaseRepository) repository.SessionRepository {
	return &sessionRepository{base}
}

// GetUserID returns the owner of an unexpired access token.
func (r *sessionRepository) GetUserID(ctx context.Context, token string, now time.Time) (int64, error) {
	query := r.Rebind(`SELECT user_id FROM user_sessions WHERE access_token = ? AND expires_at > ?`)

	var userID int64
	if err := r.GetDB().GetContext(ctx, &userID, query, token, dbTime(now)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("failed to look up session: %w", err)
	}
	return userID, nil
}
