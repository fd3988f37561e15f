// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/inbox-api/internal/repository/sqlstore"
)

// NewDB returns a migrated in-memory sqlite database closed at test end.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlstore.NewDB(sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sqlstore.Migrate(db, sqlstore.DriverSQLite))
	return db
}

// InsertSession stores an access token for userID.
func InsertSession(t *testing.T, db *sqlx.DB, token string, userID int64, expiresAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		db.Rebind(`INSERT INTO user_sessions (access_token, user_id, expires_at) VALUES (?, ?, ?)`),
		token, userID, expiresAt.UTC().Truncate(time.Second),
	)
	require.NoError(t, err)
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Str returns a pointer to s.
func Str(s string) *string {
	return &s
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
