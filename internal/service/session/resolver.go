// Package session resolves bearer credentials to user ids.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/inbox-api/internal/repository"
	"github.com/jwalitptl/inbox-api/pkg/auth"
)

// ErrExpired means the credential was presented but does not map to a live session.
var ErrExpired = errors.New("session expired or unknown")

// Resolver maps a bearer token to the id of the user that owns it.
type Resolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, token string) (int64, error)

func (f ResolverFunc) Resolve(ctx context.Context, token string) (int64, error) {
	return f(ctx, token)
}

// SQLResolver reads the user_sessions table shared with the account service.
type SQLResolver struct {
	sessions repository.SessionRepository
	now      func() time.Time
}

func NewSQLResolver(sessions repository.SessionRepository, now func() time.Time) *SQLResolver {
	if now == nil {
		now = time.Now
	}
	return &SQLResolver{sessions: sessions, now: now}
}

func (r *SQLResolver) Resolve(ctx context.Context, token string) (int64, error) {
	userID, err := r.sessions.GetUserID(ctx, token, r.now())
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrExpired
	}
	return userID, err
}

// Getter is the subset of a redis client the resolver needs.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisResolver looks tokens up under prefix+token; the key TTL is the session lifetime.
type RedisResolver struct {
	client Getter
	prefix string
}

func NewRedisResolver(client Getter, prefix string) *RedisResolver {
	return &RedisResolver{client: client, prefix: prefix}
}

func (r *RedisResolver) Resolve(ctx context.Context, token string) (int64, error) {
	val, err := r.client.Get(ctx, r.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrExpired
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up session: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, ErrExpired
	}
	return userID, nil
}

// JWTResolver accepts self-contained access tokens.
type JWTResolver struct {
	jwt *auth.JWTService
}

func NewJWTResolver(svc *auth.JWTService) *JWTResolver {
	return &JWTResolver{jwt: svc}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (int64, error) {
	userID, err := r.jwt.ValidateToken(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrExpired, err)
	}
	return userID, nil
}
